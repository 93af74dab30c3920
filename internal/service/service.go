package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopcenter/backend/internal/currency"
	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/ledger"
	"shopcenter/backend/internal/notify"
	"shopcenter/backend/internal/payment"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/xid"
)

var (
	// ErrForbidden reports a role check failure.
	ErrForbidden = errors.New("forbidden")
	// ErrPostPaymentCommit reports the serious case: the gateway captured
	// the payment but the order commit then failed. Money has moved, goods
	// have not been promised; a reconciliation entry has been queued.
	ErrPostPaymentCommit = errors.New("payment captured but order commit failed")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	ledger   *ledger.Ledger
	rates    *currency.Service
	gateways *payment.Registry
	creds    *payment.CredentialProvider
	notifier notify.Notifier
	logger   *zap.Logger
}

func New(repo store.Repository, ldg *ledger.Ledger, rates *currency.Service, gateways *payment.Registry, creds *payment.CredentialProvider, notifier notify.Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		ledger:   ldg,
		rates:    rates,
		gateways: gateways,
		creds:    creds,
		notifier: notifier,
		logger:   logger,
	}
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no actor", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s required", ErrForbidden, strings.Join(roles, " or "))
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Product{}, err
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Category = strings.TrimSpace(req.Category)
	if req.Title == "" || req.Category == "" || req.PriceCents < 1 || req.Stock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	if req.Stock > 0 {
		s.logInventory(ctx, created.ID, actor.UserID, req.Stock, "initial stock")
	}
	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("by", actor.Username))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	next := *existing
	if req.Title != nil {
		next.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		next.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		next.PriceCents = *req.PriceCents
	}
	if next.Title == "" || next.Category == "" || next.PriceCents < 1 {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateProduct(ctx, next)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product updated",
		zap.String("product_id", id),
		zap.String("by", actor.Username))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted",
		zap.String("product_id", id),
		zap.String("by", actor.Username))
	return nil
}

// SetStock overwrites a product's stock level outside the ledger path
// (receiving, stocktake corrections). The signed delta lands in the
// inventory log so stock history stays auditable.
func (s *Service) SetStock(ctx context.Context, productID string, req domain.StockSetRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleShopkeeper)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock must not be negative", store.ErrValidation)
	}

	previous, err := s.repo.SetStock(ctx, productID, req.Stock)
	if err != nil {
		return domain.Product{}, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}
	s.logInventory(ctx, productID, actor.UserID, req.Stock-previous, reason)

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListInventoryLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListInventoryLogs(ctx, productID, limit)
}

func (s *Service) logInventory(ctx context.Context, productID string, userID string, change int, reason string) {
	if change == 0 {
		return
	}
	err := s.repo.CreateInventoryLog(ctx, domain.InventoryLog{
		ID:        xid.New("inv"),
		ProductID: productID,
		UserID:    userID,
		Change:    change,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("inventory log write failed",
			zap.String("product_id", productID),
			zap.Error(err))
	}
}

func (s *Service) CreateCoupon(ctx context.Context, req domain.CouponCreateRequest) (domain.Coupon, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Coupon{}, err
	}

	coupon := domain.Coupon{
		Code:       strings.ToUpper(strings.TrimSpace(req.Code)),
		Type:       req.Type,
		Value:      req.Value,
		UsageLimit: req.UsageLimit,
		Active:     true,
	}
	var err error
	if coupon.ValidFrom, err = parseOptionalTime(req.ValidFrom); err != nil {
		return domain.Coupon{}, fmt.Errorf("%w: bad valid_from", store.ErrValidation)
	}
	if coupon.ValidTo, err = parseOptionalTime(req.ValidTo); err != nil {
		return domain.Coupon{}, fmt.Errorf("%w: bad valid_to", store.ErrValidation)
	}

	created, err := s.repo.CreateCoupon(ctx, coupon)
	if err != nil {
		return domain.Coupon{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCoupon(ctx context.Context, code string, req domain.CouponUpdateRequest) (domain.Coupon, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Coupon{}, err
	}

	existing, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}

	next := *existing
	if req.Value != nil {
		next.Value = *req.Value
	}
	if req.UsageLimit != nil {
		next.UsageLimit = *req.UsageLimit
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	if req.ValidFrom != nil {
		if next.ValidFrom, err = parseOptionalTime(*req.ValidFrom); err != nil {
			return domain.Coupon{}, fmt.Errorf("%w: bad valid_from", store.ErrValidation)
		}
	}
	if req.ValidTo != nil {
		if next.ValidTo, err = parseOptionalTime(*req.ValidTo); err != nil {
			return domain.Coupon{}, fmt.Errorf("%w: bad valid_to", store.ErrValidation)
		}
	}

	updated, err := s.repo.UpdateCoupon(ctx, next)
	if err != nil {
		return domain.Coupon{}, err
	}
	return *updated, nil
}

func (s *Service) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListCoupons(ctx)
}

// ValidateCoupon checks a coupon without consuming a redemption. Every
// rejection reason is a wrapped store.ErrCouponRejected so callers can treat
// them uniformly.
func (s *Service) ValidateCoupon(ctx context.Context, code string, now time.Time) (*domain.Coupon, error) {
	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown code", store.ErrCouponRejected)
		}
		return nil, err
	}
	if !coupon.Active {
		return nil, fmt.Errorf("%w: inactive", store.ErrCouponRejected)
	}
	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return nil, fmt.Errorf("%w: not yet valid", store.ErrCouponRejected)
	}
	if coupon.ValidTo != nil && now.After(*coupon.ValidTo) {
		return nil, fmt.Errorf("%w: expired", store.ErrCouponRejected)
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return nil, fmt.Errorf("%w: usage limit reached", store.ErrCouponRejected)
	}
	return coupon, nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}
