package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shopcenter/backend/internal/currency"
	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/ledger"
	"shopcenter/backend/internal/payment"
	"shopcenter/backend/internal/service"
	"shopcenter/backend/internal/store/memory"
)

func newTestAPI(t *testing.T, gateways ...payment.Gateway) *API {
	t.Helper()

	repo := memory.NewSeeded()
	ldg := ledger.New(repo, nil)
	rates := currency.NewService("USD", "", time.Minute, nil, nil)
	creds := payment.NewCredentialProvider(repo, nil, nil)
	svc := service.New(repo, ldg, rates, payment.NewRegistry(gateways...), creds, nil, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", nil)
}

// loginAs obtains an access token through the login endpoint.
func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	return payload.AccessToken
}

// fetchCSRFToken calls the CSRF token endpoint and returns the token string.
func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response failed: %v", err)
	}
	tok := payload["csrf_token"]
	if strings.TrimSpace(tok) == "" {
		t.Fatalf("expected non-empty csrf_token in response")
	}
	return tok
}

// doJSON issues an authenticated JSON request with a valid CSRF token.
func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListAndCreate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Title:      "Desk Lamp",
		Category:   "home",
		PriceCents: 3499,
		Stock:      25,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleProducts_CreateForbiddenForCustomer(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "customer", "customer123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Title:      "Desk Lamp",
		Category:   "home",
		PriceCents: 3499,
		Stock:      25,
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandlePOSCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "shopkeeper", "keeper123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/pos/checkout", token, domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-mug-01", Qty: 2}},
		PaymentMethod: domain.PaymentCash,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	var saleResp domain.SaleResponse
	if err := json.NewDecoder(res.Body).Decode(&saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if saleResp.Sale.TotalCents != 2500 {
		t.Fatalf("expected total 2500, got %d", saleResp.Sale.TotalCents)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/pos/returns", token, domain.ReturnRequest{
		OriginalSaleID: saleResp.Sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-mug-01", Qty: 1}},
		Reason:         "chipped rim",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("return expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandlePOSCheckout_InsufficientStockIsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "shopkeeper", "keeper123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/pos/checkout", token, domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-hoodie-01", Qty: 9999}},
		PaymentMethod: domain.PaymentCash,
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleCheckoutIntent_UnconfiguredGatewayIsServiceUnavailable(t *testing.T) {
	api := newTestAPI(t) // no gateways registered
	token := loginAs(t, api, "customer", "customer123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/checkout/intent", token, domain.PaymentIntentRequest{
		Lines:  []domain.CartLine{{ProductID: "prd-mug-01", Qty: 1}},
		Method: "card",
	})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleCouponValidate_UnknownCodeIsUnprocessable(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "customer", "customer123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/coupons/validate", token, map[string]string{"code": "NOSUCH"})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/coupons/validate", token, map[string]string{"code": "WELCOME10"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleCartPreview(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "customer", "customer123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/cart/preview", token, domain.CartPreviewRequest{
		Lines:      []domain.POSCartLine{{ProductID: "prd-tshirt-01", Qty: 3}},
		CouponCode: "FLAT5",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var preview domain.CartPreviewResponse
	if err := json.NewDecoder(res.Body).Decode(&preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if preview.TotalCents != 3*1999-500 {
		t.Fatalf("expected total 5497, got %d", preview.TotalCents)
	}
	if preview.Currency != "USD" {
		t.Fatalf("expected base currency USD, got %s", preview.Currency)
	}
}

func TestHandleReconciliations_AdminOnly(t *testing.T) {
	api := newTestAPI(t)

	keeper := loginAs(t, api, "shopkeeper", "keeper123")
	res := doJSON(t, api, http.MethodGet, "/api/v1/reconciliations", keeper, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for shopkeeper, got %d", res.Code)
	}

	admin := loginAs(t, api, "admin", "admin123")
	res = doJSON(t, api, http.MethodGet, "/api/v1/reconciliations", admin, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestHandleGatewayCredentials_Update(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPut, "/api/v1/payments/credentials/card", admin, domain.CredentialUpdateRequest{
		Values: map[string]string{"secret_key": "sk_test_rotated"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPut, "/api/v1/payments/credentials/card", admin, domain.CredentialUpdateRequest{})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty credential set, got %d", res.Code)
	}
}
