// Package ledger owns the invariant that stock movements and their
// transaction records stay consistent: a committed sale or order has
// exactly its quantities deducted, a failed commit deducts nothing, and a
// return never exceeds what the original sale actually sold.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/xid"
)

type Ledger struct {
	repo   store.Repository
	logger *zap.Logger
}

func New(repo store.Repository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, logger: logger}
}

// buildBatch validates and normalizes raw quantity lines into a reservation
// batch. Zero-quantity lines are dropped, negative quantities are rejected,
// and duplicate product ids are merged so the store sees one line per
// product.
func buildBatch(lines []store.StockLine) ([]store.StockLine, error) {
	merged := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, fmt.Errorf("%w: missing product id", store.ErrValidation)
		}
		if line.Qty < 0 {
			return nil, fmt.Errorf("%w: negative quantity for product %s", store.ErrValidation, line.ProductID)
		}
		if line.Qty == 0 {
			continue
		}
		if _, seen := merged[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		merged[line.ProductID] += line.Qty
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no quantities to reserve", store.ErrValidation)
	}

	batch := make([]store.StockLine, 0, len(order))
	for _, id := range order {
		batch = append(batch, store.StockLine{ProductID: id, Qty: merged[id]})
	}
	return batch, nil
}

// Reserve deducts stock for every line as one atomic batch.
func (l *Ledger) Reserve(ctx context.Context, lines []store.StockLine) ([]store.StockLine, error) {
	batch, err := buildBatch(lines)
	if err != nil {
		return nil, err
	}
	if err := l.repo.ReserveStock(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// CommitOrder reserves stock for the order's lines and writes the order
// record. If the record write fails after the reservation succeeded, the
// reservation is rolled back so no stock is held by a phantom order.
func (l *Ledger) CommitOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	lines := make([]store.StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, store.StockLine{ProductID: item.ProductID, Qty: item.Qty})
	}
	batch, err := l.Reserve(ctx, lines)
	if err != nil {
		return nil, err
	}

	created, err := l.repo.CreateOrder(ctx, order)
	if err != nil {
		l.compensate(ctx, batch, "order", order.ID)
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return created, nil
}

// CommitSale reserves stock for the sale's lines and writes the sale
// record. Counter sales are final on success.
func (l *Ledger) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	lines := make([]store.StockLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, store.StockLine{ProductID: item.ProductID, Qty: item.Qty})
	}
	batch, err := l.Reserve(ctx, lines)
	if err != nil {
		return nil, err
	}

	created, err := l.repo.CreateSale(ctx, sale)
	if err != nil {
		l.compensate(ctx, batch, "sale", sale.ID)
		return nil, fmt.Errorf("commit sale: %w", err)
	}
	return created, nil
}

// ProcessReturn restocks the returned quantities and writes a linked
// negative sale record. Every returned line must refer to a product in the
// original sale, priced at the price originally charged, and the returned
// quantity is bounded by the original quantity minus everything already
// returned against the same sale.
func (l *Ledger) ProcessReturn(ctx context.Context, operatorID string, req domain.ReturnRequest) (*domain.Sale, error) {
	original, err := l.repo.GetSaleByID(ctx, req.OriginalSaleID)
	if err != nil {
		return nil, err
	}
	if original.IsReturn {
		return nil, fmt.Errorf("%w: sale %s is itself a return", store.ErrValidation, original.ID)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: no return lines", store.ErrValidation)
	}

	soldQty := make(map[string]int, len(original.Items))
	soldPrice := make(map[string]int64, len(original.Items))
	soldName := make(map[string]string, len(original.Items))
	for _, item := range original.Items {
		soldQty[item.ProductID] += item.Qty
		soldPrice[item.ProductID] = item.UnitPriceCents
		soldName[item.ProductID] = item.Name
	}

	returned, err := l.repo.GetReturnedQtyBySale(ctx, original.ID)
	if err != nil {
		return nil, err
	}

	saleLines := make([]domain.SaleLine, 0, len(req.Lines))
	restock := make([]store.StockLine, 0, len(req.Lines))
	returning := make(map[string]int, len(req.Lines))
	var total int64
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrInvalidReturnQuantity, line.ProductID)
		}
		sold, ok := soldQty[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s was not part of sale %s", store.ErrInvalidReturnQuantity, line.ProductID, original.ID)
		}
		// Lines in the same request count against the bound together,
		// so duplicates cannot each pass it on their own.
		remaining := sold - returned[line.ProductID] - returning[line.ProductID]
		if line.Qty > remaining {
			return nil, fmt.Errorf("%w: product %s has %d returnable", store.ErrInvalidReturnQuantity, line.ProductID, remaining)
		}
		returning[line.ProductID] += line.Qty

		subtotal := -soldPrice[line.ProductID] * int64(line.Qty)
		saleLines = append(saleLines, domain.SaleLine{
			ProductID:      line.ProductID,
			Name:           soldName[line.ProductID],
			UnitPriceCents: soldPrice[line.ProductID],
			Qty:            -line.Qty,
			SubtotalCents:  subtotal,
		})
		restock = append(restock, store.StockLine{ProductID: line.ProductID, Qty: line.Qty})
		total += subtotal
	}

	if err := l.repo.RestoreStock(ctx, restock); err != nil {
		return nil, fmt.Errorf("restock return: %w", err)
	}

	ret := domain.Sale{
		ID:             xid.New("sal"),
		OperatorID:     operatorID,
		Items:          saleLines,
		TotalCents:     total,
		PaymentMethod:  original.PaymentMethod,
		IsReturn:       true,
		OriginalSaleID: original.ID,
		Reason:         req.Reason,
		CreatedAt:      time.Now().UTC(),
	}
	created, err := l.repo.CreateSale(ctx, ret)
	if err != nil {
		// Undo the restock so stock does not drift above the books.
		undo := make([]store.StockLine, len(restock))
		copy(undo, restock)
		if rbErr := l.repo.ReserveStock(ctx, undo); rbErr != nil {
			l.logger.Error("return rollback failed, stock needs manual correction",
				zap.String("original_sale_id", original.ID),
				zap.Error(rbErr))
		}
		return nil, fmt.Errorf("record return: %w", err)
	}
	return created, nil
}

func (l *Ledger) compensate(ctx context.Context, batch []store.StockLine, kind string, id string) {
	if err := l.repo.RestoreStock(ctx, batch); err != nil {
		l.logger.Error("stock compensation failed, stock needs manual correction",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err))
		return
	}
	l.logger.Warn("record write failed, reservation rolled back",
		zap.String("kind", kind),
		zap.String("id", id))
}
