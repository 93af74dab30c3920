package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopcenter/backend/internal/currency"
	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/ledger"
	"shopcenter/backend/internal/payment"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/store/memory"
)

// fakeGateway settles every charge for the configured user unless told
// otherwise.
type fakeGateway struct {
	name        string
	userID      string
	settled     bool
	amountCents int64
	initiated   int
	confirmed   int
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.PendingCharge, error) {
	g.initiated++
	return &payment.PendingCharge{Reference: "chg_" + g.name, ClientSecret: "secret_" + g.name}, nil
}

func (g *fakeGateway) Confirm(_ context.Context, reference string) (*payment.ChargeResult, error) {
	g.confirmed++
	return &payment.ChargeResult{Reference: reference, Settled: g.settled, UserID: g.userID, AmountCents: g.amountCents}, nil
}

func newTestService(gateways ...payment.Gateway) (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	ldg := ledger.New(repo, nil)
	rates := currency.NewService("USD", "", time.Minute, nil, nil)
	creds := payment.NewCredentialProvider(repo, nil, nil)
	svc := New(repo, ldg, rates, payment.NewRegistry(gateways...), creds, nil, nil)
	return svc, repo
}

func customerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "usr-cust", Username: "customer", Role: domain.RoleCustomer,
	})
}

func keeperCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "usr-keeper", Username: "shopkeeper", Role: domain.RoleShopkeeper,
	})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "usr-admin", Username: "admin", Role: domain.RoleAdmin,
	})
}

func productStock(t *testing.T, repo *memory.Store, id string) int {
	t.Helper()
	product, err := repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

func TestPreviewCartPricesWithoutCommitting(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.PreviewCart(customerCtx(), domain.CartPreviewRequest{
		Lines: []domain.POSCartLine{
			{ProductID: "prd-tshirt-01", Qty: 2},
			{ProductID: "prd-mug-01", Qty: 1},
		},
		CouponCode: "WELCOME10",
	})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	wantSubtotal := int64(2*1999 + 1250)
	if resp.SubtotalCents != wantSubtotal {
		t.Fatalf("expected subtotal %d, got %d", wantSubtotal, resp.SubtotalCents)
	}
	if resp.CouponDiscountCents != 525 { // round(0.10 * 5248)
		t.Fatalf("expected coupon discount 525, got %d", resp.CouponDiscountCents)
	}
	if resp.TotalCents != wantSubtotal-525 {
		t.Fatalf("expected total %d, got %d", wantSubtotal-525, resp.TotalCents)
	}

	if got := productStock(t, repo, "prd-tshirt-01"); got != 120 {
		t.Fatalf("preview must not reserve stock, got %d", got)
	}
}

func TestPreviewCartUnknownCurrencyFallsBackToBase(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.PreviewCart(customerCtx(), domain.CartPreviewRequest{
		Lines:    []domain.POSCartLine{{ProductID: "prd-mug-01", Qty: 1}},
		Currency: "EUR", // no rate feed configured
	})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if !resp.BaseCurrencyOnly {
		t.Fatalf("expected base-currency-only flag when no rate is available")
	}
	if resp.Currency != "USD" || resp.LocalTotalCents != resp.TotalCents {
		t.Fatalf("fallback must quote the base currency: %+v", resp)
	}
}

func TestCreatePaymentIntentUnknownMethod(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreatePaymentIntent(customerCtx(), domain.PaymentIntentRequest{
		Lines:  []domain.CartLine{{ProductID: "prd-mug-01", Qty: 1}},
		Method: "card",
	})
	if !errors.Is(err, payment.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCreatePaymentIntentOpensCharge(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: true}
	svc, _ := newTestService(gw)

	resp, err := svc.CreatePaymentIntent(customerCtx(), domain.PaymentIntentRequest{
		Lines:      []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 3}},
		Method:     "card",
		CouponCode: "FLAT5",
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	if resp.Reference != "chg_card" || resp.ClientSecret == "" {
		t.Fatalf("unexpected pending charge: %+v", resp)
	}
	if resp.BaseAmountCents != 3*1999-500 {
		t.Fatalf("intent amount must include the coupon discount, got %d", resp.BaseAmountCents)
	}
	if gw.initiated != 1 {
		t.Fatalf("expected one gateway initiate, got %d", gw.initiated)
	}
}

func TestConfirmOnlineOrderCommitsStockAndRedeemsCoupon(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: true}
	svc, repo := newTestService(gw)
	ctx := customerCtx()

	order, err := svc.ConfirmOnlineOrder(ctx, domain.OnlineCheckoutRequest{
		Reference:  "chg_card",
		Method:     "card",
		Lines:      []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 2}},
		CouponCode: "WELCOME10",
	})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Status)
	}
	if order.PaymentReference != "chg_card" {
		t.Fatalf("expected payment reference on order, got %q", order.PaymentReference)
	}
	if order.TotalCents != 3998-400 { // round(0.10 * 3998) = 400
		t.Fatalf("expected total 3598, got %d", order.TotalCents)
	}
	if got := productStock(t, repo, "prd-tshirt-01"); got != 118 {
		t.Fatalf("expected stock 118 after commit, got %d", got)
	}

	coupon, err := repo.GetCouponByCode(context.Background(), "WELCOME10")
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if coupon.UsedCount != 1 {
		t.Fatalf("coupon must be redeemed exactly once, got %d", coupon.UsedCount)
	}
}

func TestConfirmOnlineOrderRejectsReplayedReference(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: true}
	svc, repo := newTestService(gw)
	ctx := customerCtx()
	req := domain.OnlineCheckoutRequest{
		Reference: "chg_card",
		Method:    "card",
		Lines:     []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 2}},
	}

	if _, err := svc.ConfirmOnlineOrder(ctx, req); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if got := productStock(t, repo, "prd-tshirt-01"); got != 118 {
		t.Fatalf("expected stock 118 after first confirm, got %d", got)
	}

	_, err := svc.ConfirmOnlineOrder(ctx, req)
	if !errors.Is(err, payment.ErrRejected) {
		t.Fatalf("expected ErrRejected for a reused reference, got %v", err)
	}
	if got := productStock(t, repo, "prd-tshirt-01"); got != 118 {
		t.Fatalf("replayed reference must not decrement stock again, got %d", got)
	}

	orders, err := repo.ListOrders(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("one capture backs exactly one order, got %d", len(orders))
	}
}

func TestConfirmOnlineOrderRejectsAmountMismatch(t *testing.T) {
	// Gateway reports a captured amount smaller than the re-priced cart.
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: true, amountCents: 1999}
	svc, repo := newTestService(gw)

	_, err := svc.ConfirmOnlineOrder(customerCtx(), domain.OnlineCheckoutRequest{
		Reference: "chg_card",
		Method:    "card",
		Lines:     []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 2}},
	})
	if !errors.Is(err, payment.ErrRejected) {
		t.Fatalf("expected ErrRejected on amount mismatch, got %v", err)
	}
	if got := productStock(t, repo, "prd-tshirt-01"); got != 120 {
		t.Fatalf("mismatched capture must not touch stock, got %d", got)
	}
}

func TestConfirmOnlineOrderAcceptsMatchingCapturedAmount(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: true, amountCents: 3998}
	svc, _ := newTestService(gw)

	order, err := svc.ConfirmOnlineOrder(customerCtx(), domain.OnlineCheckoutRequest{
		Reference: "chg_card",
		Method:    "card",
		Lines:     []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if order.TotalCents != 3998 {
		t.Fatalf("expected total 3998, got %d", order.TotalCents)
	}
}

func TestConfirmOnlineOrderRejectsUnsettledCharge(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: false}
	svc, repo := newTestService(gw)

	_, err := svc.ConfirmOnlineOrder(customerCtx(), domain.OnlineCheckoutRequest{
		Reference: "chg_card",
		Method:    "card",
		Lines:     []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 2}},
	})
	if !errors.Is(err, payment.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got := productStock(t, repo, "prd-tshirt-01"); got != 120 {
		t.Fatalf("rejected charge must not touch stock, got %d", got)
	}
}

func TestConfirmOnlineOrderRejectsForeignCharge(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-somebody-else", settled: true}
	svc, _ := newTestService(gw)

	_, err := svc.ConfirmOnlineOrder(customerCtx(), domain.OnlineCheckoutRequest{
		Reference: "chg_card",
		Method:    "card",
		Lines:     []domain.CartLine{{ProductID: "prd-tshirt-01", Qty: 1}},
	})
	if !errors.Is(err, payment.ErrRejected) {
		t.Fatalf("expected ErrRejected for a charge belonging to another buyer, got %v", err)
	}
}

func TestConfirmOnlineOrderQueuesReconciliationOnPostPaymentFailure(t *testing.T) {
	gw := &fakeGateway{name: "card", userID: "usr-cust", settled: true}
	svc, repo := newTestService(gw)
	ctx := customerCtx()

	// Drain the stock after pricing would succeed: quantity above stock
	// makes the reservation fail only at commit time, after the gateway
	// already captured the charge.
	_, err := svc.ConfirmOnlineOrder(ctx, domain.OnlineCheckoutRequest{
		Reference: "chg_card",
		Method:    "card",
		Lines:     []domain.CartLine{{ProductID: "prd-hoodie-01", Qty: 999}},
	})
	if !errors.Is(err, ErrPostPaymentCommit) {
		t.Fatalf("expected ErrPostPaymentCommit, got %v", err)
	}

	entries, listErr := repo.ListReconciliations(context.Background(), domain.ReconciliationOpen, 0)
	if listErr != nil {
		t.Fatalf("list reconciliations: %v", listErr)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one open reconciliation entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.PaymentReference != "chg_card" || entry.UserID != "usr-cust" {
		t.Fatalf("reconciliation entry must carry the captured charge: %+v", entry)
	}
	if entry.AmountCents != 999*4999 {
		t.Fatalf("expected captured amount recorded, got %d", entry.AmountCents)
	}

	coupon, _ := repo.GetCouponByCode(context.Background(), "WELCOME10")
	if coupon.UsedCount != 0 {
		t.Fatalf("failed commit must not redeem coupons, got %d", coupon.UsedCount)
	}
}

func TestPOSCheckoutCommitsSale(t *testing.T) {
	svc, repo := newTestService()
	ctx := keeperCtx()

	sale, err := svc.POSCheckout(ctx, domain.POSCheckoutRequest{
		Lines: []domain.POSCartLine{
			{ProductID: "prd-mug-01", Qty: 2, Discount: &domain.ItemDiscount{Type: domain.DiscountPercent, Value: 10}},
			{ProductID: "prd-pen-01", Qty: 1},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("pos checkout failed: %v", err)
	}

	if sale.OperatorID != "usr-keeper" {
		t.Fatalf("expected operator recorded, got %q", sale.OperatorID)
	}
	wantTotal := int64(2500-250) + 499
	if sale.TotalCents != wantTotal {
		t.Fatalf("expected total %d, got %d", wantTotal, sale.TotalCents)
	}
	if got := productStock(t, repo, "prd-mug-01"); got != 198 {
		t.Fatalf("expected mug stock 198, got %d", got)
	}
}

func TestPOSCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.POSCheckout(keeperCtx(), domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-mug-01", Qty: 1}},
		PaymentMethod: "barter",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPOSCheckoutRequiresStaff(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.POSCheckout(customerCtx(), domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-mug-01", Qty: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customers at the counter, got %v", err)
	}
}

func TestProcessReturnRestocksAndLinks(t *testing.T) {
	svc, repo := newTestService()
	ctx := keeperCtx()

	sale, err := svc.POSCheckout(ctx, domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-bottle-01", Qty: 3}},
		PaymentMethod: domain.PaymentCard,
	})
	if err != nil {
		t.Fatalf("pos checkout failed: %v", err)
	}

	ret, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-bottle-01", Qty: 2}},
		Reason:         "leaking lid",
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.TotalCents != -2*2899 {
		t.Fatalf("expected refund -5798 at the original price, got %d", ret.TotalCents)
	}
	if ret.PaymentMethod != domain.PaymentCard {
		t.Fatalf("return must carry the original payment method, got %q", ret.PaymentMethod)
	}
	if got := productStock(t, repo, "prd-bottle-01"); got != 89 {
		t.Fatalf("expected stock 89 after return, got %d", got)
	}
}

func TestListSalesScopesShopkeeperToOwnSales(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.POSCheckout(keeperCtx(), domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-mug-01", Qty: 1}},
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("keeper checkout failed: %v", err)
	}
	if _, err := svc.POSCheckout(adminCtx(), domain.POSCheckoutRequest{
		Lines:         []domain.POSCartLine{{ProductID: "prd-mug-01", Qty: 1}},
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("admin checkout failed: %v", err)
	}

	keeperSales, err := svc.ListSales(keeperCtx(), 0)
	if err != nil {
		t.Fatalf("keeper list failed: %v", err)
	}
	if len(keeperSales) != 1 || keeperSales[0].OperatorID != "usr-keeper" {
		t.Fatalf("shopkeeper must only see own sales, got %+v", keeperSales)
	}

	adminSales, err := svc.ListSales(adminCtx(), 0)
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	if len(adminSales) != 2 {
		t.Fatalf("admin must see all sales, got %d", len(adminSales))
	}
}

func TestValidateCouponRejections(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)
	for _, coupon := range []domain.Coupon{
		{Code: "INACTIVE", Type: domain.DiscountFixed, Value: 100, Active: false},
		{Code: "NOTYET", Type: domain.DiscountFixed, Value: 100, Active: true, ValidFrom: &future},
		{Code: "EXPIRED", Type: domain.DiscountFixed, Value: 100, Active: true, ValidTo: &past},
		{Code: "USEDUP", Type: domain.DiscountFixed, Value: 100, Active: true, UsageLimit: 1, UsedCount: 1},
	} {
		if _, err := repo.CreateCoupon(ctx, coupon); err != nil {
			t.Fatalf("seed coupon %s: %v", coupon.Code, err)
		}
	}

	for _, code := range []string{"NOSUCH", "INACTIVE", "NOTYET", "EXPIRED", "USEDUP"} {
		if _, err := svc.ValidateCoupon(ctx, code, now); !errors.Is(err, store.ErrCouponRejected) {
			t.Fatalf("expected ErrCouponRejected for %s, got %v", code, err)
		}
	}

	coupon, err := svc.ValidateCoupon(ctx, "welcome10", now)
	if err != nil {
		t.Fatalf("expected WELCOME10 to validate, got %v", err)
	}
	if coupon.UsedCount != 0 {
		t.Fatalf("validation must not consume a redemption, got %d", coupon.UsedCount)
	}
}
