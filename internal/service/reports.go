package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
)

// ZReport aggregates one day of counter activity: gross sales, refunds, net
// revenue, and the take per payment method. Read-only projection over the
// sales records; never part of the write path.
func (s *Service) ZReport(ctx context.Context, date string) (domain.ZReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleShopkeeper); err != nil {
		return domain.ZReport{}, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return domain.ZReport{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}
	from := day.UTC()
	to := from.Add(24 * time.Hour)

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.ZReport{}, err
	}

	report := domain.ZReport{
		Date:             date,
		PaymentBreakdown: make(map[string]int64),
	}
	for _, sale := range sales {
		report.NetSalesCents += sale.NetAmountCents()
		report.PaymentBreakdown[sale.PaymentMethod] += sale.NetAmountCents()
		if sale.IsReturn {
			report.TotalReturnsCents += -sale.TotalCents
			report.ReturnsCount++
		} else {
			report.TotalSalesCents += sale.TotalCents
			report.SalesCount++
		}
	}
	return report, nil
}

// SalesSummary groups net revenue over a window by day, staff, product, or
// payment method.
func (s *Service) SalesSummary(ctx context.Context, groupBy string, from time.Time, to time.Time) ([]domain.SalesSummaryRow, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty window", store.ErrValidation)
	}

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64)
	counts := make(map[string]int)
	add := func(key string, cents int64) {
		totals[key] += cents
		counts[key]++
	}

	for _, sale := range sales {
		switch groupBy {
		case "day":
			add(sale.CreatedAt.UTC().Format("2006-01-02"), sale.NetAmountCents())
		case "staff":
			add(sale.OperatorID, sale.NetAmountCents())
		case "method":
			add(sale.PaymentMethod, sale.NetAmountCents())
		case "product":
			for _, item := range sale.Items {
				totals[item.ProductID] += item.SubtotalCents
				counts[item.ProductID] += item.Qty
			}
		default:
			return nil, fmt.Errorf("%w: unknown group %q", store.ErrValidation, groupBy)
		}
	}

	rows := make([]domain.SalesSummaryRow, 0, len(totals))
	for key, cents := range totals {
		rows = append(rows, domain.SalesSummaryRow{Key: key, TotalCents: cents, Count: counts[key]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func (s *Service) ListReconciliations(ctx context.Context, status string, limit int) ([]domain.ReconciliationEntry, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListReconciliations(ctx, status, limit)
}

func (s *Service) ResolveReconciliation(ctx context.Context, id string, req domain.ReconciliationResolveRequest) (domain.ReconciliationEntry, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.ReconciliationEntry{}, err
	}

	resolved, err := s.repo.ResolveReconciliation(ctx, id, actor.Username, req.Note, time.Now().UTC())
	if err != nil {
		return domain.ReconciliationEntry{}, err
	}

	s.logger.Info("reconciliation resolved",
		zap.String("id", id),
		zap.String("by", actor.Username))
	return *resolved, nil
}

// UpdateGatewayCredential stores a gateway's credential set and reloads the
// provider snapshot so the rotation is live before the call returns.
func (s *Service) UpdateGatewayCredential(ctx context.Context, gateway string, req domain.CredentialUpdateRequest) error {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if len(req.Values) == 0 {
		return fmt.Errorf("%w: empty credential set", store.ErrValidation)
	}

	if err := s.creds.Update(ctx, gateway, req.Values); err != nil {
		return err
	}

	s.logger.Info("gateway credentials updated",
		zap.String("gateway", gateway),
		zap.String("by", actor.Username))
	return nil
}

func (s *Service) SupportedCurrencies(ctx context.Context) []string {
	return s.rates.ListSupported(ctx)
}
