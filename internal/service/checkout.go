package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/payment"
	"shopcenter/backend/internal/pricing"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/xid"
)

// pricedCart is the shared outcome of pricing a cart: preview, payment
// intent, online confirm and POS checkout all run through priceCart so the
// amount a buyer previews, the amount charged, and the amount recorded can
// never diverge.
type pricedCart struct {
	lines          []domain.PreviewLine
	subtotalCents  int64
	coupon         *domain.Coupon
	couponOffCents int64
	totalCents     int64
}

func (s *Service) priceCart(ctx context.Context, lines []domain.POSCartLine, couponCode string) (*pricedCart, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrValidation)
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, fmt.Errorf("%w: missing product id", store.ErrValidation)
		}
		if line.Qty < 0 {
			return nil, fmt.Errorf("%w: negative quantity for product %s", store.ErrValidation, line.ProductID)
		}
		ids = append(ids, line.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	cart := &pricedCart{lines: make([]domain.PreviewLine, 0, len(lines))}
	subtotals := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.Qty == 0 {
			continue
		}
		product, exists := products[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}

		subtotal := pricing.ItemSubtotal(product.PriceCents, line.Qty, line.Discount)
		subtotals = append(subtotals, subtotal)
		cart.lines = append(cart.lines, domain.PreviewLine{
			ProductID:      product.ID,
			Name:           product.Title,
			UnitPriceCents: product.PriceCents,
			Qty:            line.Qty,
			SubtotalCents:  subtotal,
		})
		cart.subtotalCents += subtotal
	}
	if len(cart.lines) == 0 {
		return nil, fmt.Errorf("%w: no purchasable quantities", store.ErrValidation)
	}

	if couponCode != "" {
		coupon, err := s.ValidateCoupon(ctx, couponCode, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		cart.coupon = coupon
		cart.couponOffCents = pricing.CouponDiscount(cart.subtotalCents, coupon)
	}
	cart.totalCents = pricing.GrandTotal(subtotals, cart.couponOffCents)
	return cart, nil
}

// PreviewCart prices a cart without committing anything. Any signed-in role
// may preview.
func (s *Service) PreviewCart(ctx context.Context, req domain.CartPreviewRequest) (domain.CartPreviewResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.CartPreviewResponse{}, fmt.Errorf("%w: no actor", ErrForbidden)
	}

	cart, err := s.priceCart(ctx, req.Lines, req.CouponCode)
	if err != nil {
		return domain.CartPreviewResponse{}, err
	}

	resp := domain.CartPreviewResponse{
		Lines:               cart.lines,
		SubtotalCents:       cart.subtotalCents,
		CouponDiscountCents: cart.couponOffCents,
		TotalCents:          cart.totalCents,
		Currency:            s.rates.BaseCurrency(),
		LocalTotalCents:     cart.totalCents,
	}
	if req.Currency != "" && req.Currency != s.rates.BaseCurrency() {
		rate, fellBack := s.rates.GetRate(ctx, req.Currency)
		if !fellBack {
			resp.Currency = req.Currency
			resp.LocalTotalCents = pricing.Convert(cart.totalCents, rate)
		} else {
			resp.BaseCurrencyOnly = true
		}
	}
	return resp, nil
}

// CreatePaymentIntent prices the cart server-side and opens a pending
// charge in the buyer's display currency. Stock is NOT reserved here; the
// reservation happens at confirm time.
func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (domain.PaymentIntentResponse, error) {
	actor, err := requireRole(ctx, domain.RoleCustomer, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}

	cart, err := s.priceCart(ctx, asPOSLines(req.Lines), req.CouponCode)
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}

	gateway, err := s.gateways.Lookup(req.Method)
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}

	currencyCode := s.rates.BaseCurrency()
	localAmount := cart.totalCents
	baseOnly := false
	if req.Currency != "" && req.Currency != s.rates.BaseCurrency() {
		rate, fellBack := s.rates.GetRate(ctx, req.Currency)
		if fellBack {
			baseOnly = true
		} else {
			currencyCode = req.Currency
			localAmount = pricing.Convert(cart.totalCents, rate)
		}
	}

	pendingCharge, err := gateway.Initiate(ctx, payment.InitiateRequest{
		UserID:           actor.UserID,
		BaseAmountCents:  cart.totalCents,
		LocalAmountCents: localAmount,
		Currency:         currencyCode,
		Description:      fmt.Sprintf("online order, %d items", len(cart.lines)),
		PhoneNumber:      req.PhoneNumber,
	})
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}

	return domain.PaymentIntentResponse{
		Reference:        pendingCharge.Reference,
		ClientSecret:     pendingCharge.ClientSecret,
		RedirectURL:      pendingCharge.RedirectURL,
		BaseAmountCents:  cart.totalCents,
		LocalAmountCents: localAmount,
		Currency:         currencyCode,
		BaseCurrencyOnly: baseOnly,
	}, nil
}

// ConfirmOnlineOrder finishes the online flow: verify the captured charge
// belongs to the requesting buyer and succeeded, re-price the cart from the
// catalog, commit stock + order, redeem the coupon, notify. A stock race
// discovered after capture queues a reconciliation entry and surfaces
// ErrPostPaymentCommit; the captured payment is never silently dropped.
func (s *Service) ConfirmOnlineOrder(ctx context.Context, req domain.OnlineCheckoutRequest) (domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleCustomer, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return domain.Order{}, err
	}
	if req.Reference == "" {
		return domain.Order{}, fmt.Errorf("%w: missing payment reference", store.ErrValidation)
	}

	cart, err := s.priceCart(ctx, asPOSLines(req.Lines), req.CouponCode)
	if err != nil {
		return domain.Order{}, err
	}

	gateway, err := s.gateways.Lookup(req.Method)
	if err != nil {
		return domain.Order{}, err
	}
	charge, err := gateway.Confirm(ctx, req.Reference)
	if err != nil {
		return domain.Order{}, err
	}
	if charge.UserID != "" && charge.UserID != actor.UserID {
		return domain.Order{}, fmt.Errorf("%w: charge belongs to a different buyer", payment.ErrRejected)
	}
	if !charge.Settled {
		return domain.Order{}, fmt.Errorf("%w: charge not settled", payment.ErrRejected)
	}
	if charge.AmountCents > 0 && charge.AmountCents != cart.totalCents {
		return domain.Order{}, fmt.Errorf("%w: captured amount %d does not match cart total %d",
			payment.ErrRejected, charge.AmountCents, cart.totalCents)
	}

	// A captured reference backs exactly one order. The store rejects
	// duplicates on write as well, so a racing confirm cannot slip past
	// this lookup.
	if _, err := s.repo.GetOrderByPaymentReference(ctx, charge.Reference); err == nil {
		return domain.Order{}, fmt.Errorf("%w: payment reference %s already used", payment.ErrRejected, charge.Reference)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Order{}, err
	}

	currencyCode := s.rates.BaseCurrency()
	localAmount := cart.totalCents
	baseOnly := false
	if req.Currency != "" && req.Currency != s.rates.BaseCurrency() {
		rate, fellBack := s.rates.GetRate(ctx, req.Currency)
		if fellBack {
			baseOnly = true
		} else {
			currencyCode = req.Currency
			localAmount = pricing.Convert(cart.totalCents, rate)
		}
	}

	items := make([]domain.OrderLine, 0, len(cart.lines))
	for _, line := range cart.lines {
		items = append(items, domain.OrderLine{
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
		})
	}

	order := domain.Order{
		ID:               xid.New("ord"),
		UserID:           actor.UserID,
		Items:            items,
		TotalCents:       cart.totalCents,
		Currency:         currencyCode,
		LocalAmountCents: localAmount,
		BaseAmountCents:  cart.totalCents,
		BaseCurrencyOnly: baseOnly,
		CouponCode:       couponCode(cart.coupon),
		Status:           domain.OrderStatusPaid,
		PaymentReference: charge.Reference,
		ShippingAddress:  req.ShippingAddress,
		CreatedAt:        time.Now().UTC(),
	}

	created, err := s.ledger.CommitOrder(ctx, order)
	if err != nil {
		s.queueReconciliation(ctx, actor.UserID, charge.Reference, cart.totalCents, currencyCode, err)
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPostPaymentCommit, err)
	}

	if cart.coupon != nil {
		if err := s.repo.RedeemCoupon(ctx, cart.coupon.Code); err != nil {
			s.logger.Warn("coupon redemption failed after commit",
				zap.String("code", cart.coupon.Code),
				zap.String("order_id", created.ID),
				zap.Error(err))
		}
	}

	go s.notifier.OrderConfirmed(context.WithoutCancel(ctx), *created)

	s.logger.Info("online order committed",
		zap.String("order_id", created.ID),
		zap.String("user_id", actor.UserID),
		zap.Int64("total_cents", created.TotalCents),
		zap.String("currency", created.Currency))
	return *created, nil
}

// POSCheckout commits a counter sale: price with item discounts and coupon,
// reserve stock, record the sale. No gateway round trip; the payment method
// is recorded as a fact.
func (s *Service) POSCheckout(ctx context.Context, req domain.POSCheckoutRequest) (domain.Sale, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return domain.Sale{}, err
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, req.PaymentMethod)
	}

	cart, err := s.priceCart(ctx, req.Lines, req.CouponCode)
	if err != nil {
		return domain.Sale{}, err
	}

	items := make([]domain.SaleLine, 0, len(cart.lines))
	for _, line := range cart.lines {
		items = append(items, domain.SaleLine{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
			SubtotalCents:  line.SubtotalCents,
		})
	}

	sale := domain.Sale{
		ID:            xid.New("sal"),
		OperatorID:    actor.UserID,
		Items:         items,
		TotalCents:    cart.totalCents,
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.ledger.CommitSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	if cart.coupon != nil {
		if err := s.repo.RedeemCoupon(ctx, cart.coupon.Code); err != nil {
			s.logger.Warn("coupon redemption failed after commit",
				zap.String("code", cart.coupon.Code),
				zap.String("sale_id", created.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("pos sale committed",
		zap.String("sale_id", created.ID),
		zap.String("operator", actor.Username),
		zap.Int64("total_cents", created.TotalCents))
	return *created, nil
}

// ProcessReturn refunds quantities from a previous counter sale.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.Sale, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return domain.Sale{}, err
	}

	created, err := s.ledger.ProcessReturn(ctx, actor.UserID, req)
	if err != nil {
		return domain.Sale{}, err
	}

	go s.notifier.ReturnProcessed(context.WithoutCancel(ctx), *created)

	s.logger.Info("return processed",
		zap.String("sale_id", created.ID),
		zap.String("original_sale_id", created.OriginalSaleID),
		zap.Int64("refund_cents", -created.TotalCents))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role != domain.RoleAdmin && sale.OperatorID != actor.UserID {
		return domain.Sale{}, fmt.Errorf("%w: not your sale", ErrForbidden)
	}
	return *sale, nil
}

// ListSales returns recent sales; shopkeepers see only their own.
func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return nil, err
	}

	operatorID := ""
	if actor.Role != domain.RoleAdmin {
		operatorID = actor.UserID
	}
	return s.repo.ListSales(ctx, operatorID, limit)
}

func (s *Service) queueReconciliation(ctx context.Context, userID string, reference string, amountCents int64, currencyCode string, cause error) {
	entry := domain.ReconciliationEntry{
		ID:               xid.New("rec"),
		UserID:           userID,
		PaymentReference: reference,
		AmountCents:      amountCents,
		Currency:         currencyCode,
		Reason:           cause.Error(),
		Status:           domain.ReconciliationOpen,
		CreatedAt:        time.Now().UTC(),
	}
	if _, err := s.repo.CreateReconciliation(ctx, entry); err != nil {
		// Worst case: both the commit and the queue write failed. The error
		// log is the last resort trail for the captured payment.
		s.logger.Error("reconciliation queue write failed",
			zap.String("payment_reference", reference),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err))
		return
	}
	s.logger.Error("payment captured but commit failed, queued for reconciliation",
		zap.String("payment_reference", reference),
		zap.String("user_id", userID),
		zap.Int64("amount_cents", amountCents),
		zap.Error(cause))
}

func asPOSLines(lines []domain.CartLine) []domain.POSCartLine {
	out := make([]domain.POSCartLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.POSCartLine{ProductID: line.ProductID, Qty: line.Qty})
	}
	return out
}

func couponCode(coupon *domain.Coupon) string {
	if coupon == nil {
		return ""
	}
	return coupon.Code
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentWallet, domain.PaymentMobile:
		return true
	}
	return false
}
