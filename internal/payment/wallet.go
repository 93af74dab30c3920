package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WalletGateway charges through the PayPal Orders v2 REST API. There is no
// official Go SDK, so the two calls we need (create order, fetch order) are
// issued directly.
type WalletGateway struct {
	creds      *CredentialProvider
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWalletGateway(creds *CredentialProvider, logger *zap.Logger) *WalletGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletGateway{
		creds:      creds,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (g *WalletGateway) Name() string { return MethodWallet }

type walletConfig struct {
	baseURL      string
	clientID     string
	clientSecret string
}

func (g *WalletGateway) config() (*walletConfig, error) {
	values, err := g.creds.Get(MethodWallet)
	if err != nil {
		return nil, err
	}
	cfg := &walletConfig{
		baseURL:      strings.TrimRight(values["base_url"], "/"),
		clientID:     strings.TrimSpace(values["client_id"]),
		clientSecret: strings.TrimSpace(values["client_secret"]),
	}
	if cfg.clientID == "" || cfg.clientSecret == "" {
		return nil, ErrNotConfigured
	}
	if cfg.baseURL == "" {
		cfg.baseURL = "https://api-m.sandbox.paypal.com"
	}
	return cfg, nil
}

func (g *WalletGateway) accessToken(ctx context.Context, cfg *walletConfig) (string, error) {
	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/oauth2/token", body)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(cfg.clientID, cfg.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wallet: token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wallet: token request returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("wallet: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("wallet: empty access token")
	}
	return payload.AccessToken, nil
}

func (g *WalletGateway) Initiate(ctx context.Context, req InitiateRequest) (*PendingCharge, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	token, err := g.accessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	order := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id": req.UserID,
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         formatCents(req.LocalAmountCents),
			},
		}},
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v2/checkout/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wallet: create order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("wallet: create order returned status %d: %s", resp.StatusCode, raw)
	}

	var created struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("wallet: decode order response: %w", err)
	}

	pending := &PendingCharge{Reference: created.ID}
	for _, link := range created.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			pending.RedirectURL = link.Href
			break
		}
	}

	g.logger.Info("wallet charge initiated",
		zap.String("reference", created.ID),
		zap.Int64("amount_cents", req.LocalAmountCents),
		zap.String("currency", req.Currency))
	return pending, nil
}

func (g *WalletGateway) Confirm(ctx context.Context, reference string) (*ChargeResult, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	token, err := g.accessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v2/checkout/orders/"+reference+"/capture", strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wallet: capture order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wallet: capture order %s returned status %d: %w", reference, resp.StatusCode, ErrRejected)
	}

	var captured struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&captured); err != nil {
		return nil, fmt.Errorf("wallet: decode capture response: %w", err)
	}

	result := &ChargeResult{
		Reference: captured.ID,
		Settled:   captured.Status == "COMPLETED",
	}
	if len(captured.PurchaseUnits) > 0 {
		result.UserID = captured.PurchaseUnits[0].CustomID
	}
	if !result.Settled {
		return result, fmt.Errorf("wallet: order %s in status %s: %w", captured.ID, captured.Status, ErrRejected)
	}
	return result, nil
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
