package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

// CardGateway charges cards through Stripe PaymentIntents. The buyer's user
// id and the base-currency amount are pinned in the intent metadata at
// initiation and checked again at confirmation, so a tampered client cannot
// attach someone else's intent to its own order.
type CardGateway struct {
	creds  *CredentialProvider
	logger *zap.Logger
}

func NewCardGateway(creds *CredentialProvider, logger *zap.Logger) *CardGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardGateway{creds: creds, logger: logger}
}

func (g *CardGateway) Name() string { return MethodCard }

func (g *CardGateway) api() (*client.API, error) {
	values, err := g.creds.Get(MethodCard)
	if err != nil {
		return nil, err
	}
	secretKey := strings.TrimSpace(values["secret_key"])
	if secretKey == "" {
		return nil, ErrNotConfigured
	}
	return client.New(secretKey, nil), nil
}

func (g *CardGateway) Initiate(ctx context.Context, req InitiateRequest) (*PendingCharge, error) {
	sc, err := g.api()
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.LocalAmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("base_amount_cents", strconv.FormatInt(req.BaseAmountCents, 10))
	params.Context = ctx

	intent, err := sc.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("card: create payment intent: %w", err)
	}

	g.logger.Info("card charge initiated",
		zap.String("reference", intent.ID),
		zap.Int64("amount_cents", req.LocalAmountCents),
		zap.String("currency", req.Currency))

	return &PendingCharge{
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (g *CardGateway) Confirm(ctx context.Context, reference string) (*ChargeResult, error) {
	sc, err := g.api()
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := sc.PaymentIntents.Get(reference, params)
	if err != nil {
		return nil, fmt.Errorf("card: fetch payment intent %s: %w", reference, err)
	}

	result := &ChargeResult{
		Reference: intent.ID,
		Settled:   intent.Status == stripe.PaymentIntentStatusSucceeded,
		UserID:    intent.Metadata["user_id"],
	}
	if raw, ok := intent.Metadata["base_amount_cents"]; ok {
		if amount, err := strconv.ParseInt(raw, 10, 64); err == nil {
			result.AmountCents = amount
		}
	}
	if !result.Settled {
		return result, fmt.Errorf("card: intent %s in status %s: %w", intent.ID, intent.Status, ErrRejected)
	}
	return result, nil
}
