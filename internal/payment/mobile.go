package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MobileGateway charges through the M-Pesa Daraja STK push API. The push is
// asynchronous on the buyer's handset, so Initiate returns the checkout
// request id and Confirm polls the query endpoint for the outcome.
type MobileGateway struct {
	creds      *CredentialProvider
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewMobileGateway(creds *CredentialProvider, logger *zap.Logger) *MobileGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MobileGateway{
		creds:      creds,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

func (g *MobileGateway) Name() string { return MethodMobile }

type mobileConfig struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
}

func (g *MobileGateway) config() (*mobileConfig, error) {
	values, err := g.creds.Get(MethodMobile)
	if err != nil {
		return nil, err
	}
	cfg := &mobileConfig{
		baseURL:        strings.TrimRight(values["base_url"], "/"),
		consumerKey:    strings.TrimSpace(values["consumer_key"]),
		consumerSecret: strings.TrimSpace(values["consumer_secret"]),
		shortCode:      strings.TrimSpace(values["short_code"]),
		passkey:        strings.TrimSpace(values["passkey"]),
		callbackURL:    strings.TrimSpace(values["callback_url"]),
	}
	if cfg.consumerKey == "" || cfg.consumerSecret == "" || cfg.shortCode == "" || cfg.passkey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.baseURL == "" {
		cfg.baseURL = "https://sandbox.safaricom.co.ke"
	}
	return cfg, nil
}

func (g *MobileGateway) accessToken(ctx context.Context, cfg *mobileConfig) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(cfg.consumerKey, cfg.consumerSecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mobile: token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mobile: token request returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("mobile: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("mobile: empty access token")
	}
	return payload.AccessToken, nil
}

func (g *MobileGateway) Initiate(ctx context.Context, req InitiateRequest) (*PendingCharge, error) {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, fmt.Errorf("mobile: phone number is required")
	}
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	token, err := g.accessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timestamp := g.now().UTC().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(cfg.shortCode + cfg.passkey + timestamp))

	// Daraja takes whole shillings, no cents. Round up so the push never
	// undercharges the order, and log the remainder for reconciliation.
	amount := wholeUnits(req.LocalAmountCents)
	if rem := req.LocalAmountCents % 100; rem != 0 {
		g.logger.Warn("stk amount rounded up to whole units",
			zap.Int64("local_amount_cents", req.LocalAmountCents),
			zap.Int64("overcharge_cents", 100-rem))
	}

	push := map[string]any{
		"BusinessShortCode": cfg.shortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            req.PhoneNumber,
		"PartyB":            cfg.shortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       cfg.callbackURL,
		"AccountReference":  req.UserID,
		"TransactionDesc":   req.Description,
	}
	payload, err := json.Marshal(push)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mobile: stk push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mobile: stk push returned status %d", resp.StatusCode)
	}

	var pushed struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pushed); err != nil {
		return nil, fmt.Errorf("mobile: decode stk push response: %w", err)
	}
	if pushed.ResponseCode != "0" || pushed.CheckoutRequestID == "" {
		return nil, fmt.Errorf("mobile: stk push not accepted (code %q)", pushed.ResponseCode)
	}

	g.logger.Info("mobile charge initiated",
		zap.String("reference", pushed.CheckoutRequestID),
		zap.Int64("amount_cents", req.LocalAmountCents))
	return &PendingCharge{Reference: pushed.CheckoutRequestID}, nil
}

// wholeUnits converts cents to whole currency units, rounding up.
func wholeUnits(cents int64) int64 {
	return (cents + 99) / 100
}

func (g *MobileGateway) Confirm(ctx context.Context, reference string) (*ChargeResult, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	token, err := g.accessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timestamp := g.now().UTC().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(cfg.shortCode + cfg.passkey + timestamp))

	query := map[string]any{
		"BusinessShortCode": cfg.shortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": reference,
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/mpesa/stkpushquery/v1/query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mobile: stk query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mobile: stk query returned status %d", resp.StatusCode)
	}

	var queried struct {
		ResultCode string `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queried); err != nil {
		return nil, fmt.Errorf("mobile: decode stk query response: %w", err)
	}

	result := &ChargeResult{
		Reference: reference,
		Settled:   queried.ResultCode == "0",
	}
	if !result.Settled {
		return result, fmt.Errorf("mobile: charge %s not settled (%s): %w", reference, queried.ResultDesc, ErrRejected)
	}
	return result, nil
}
