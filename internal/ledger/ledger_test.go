package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/store/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	repo := memory.NewEmpty()
	ctx := context.Background()

	for _, p := range []domain.Product{
		{ID: "prd-a", Title: "Product A", Category: "test", PriceCents: 2000, Stock: 10},
		{ID: "prd-b", Title: "Product B", Category: "test", PriceCents: 1500, Stock: 5},
	} {
		if _, err := repo.CreateProduct(ctx, p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
	return New(repo, nil), repo
}

func stockOf(t *testing.T, repo *memory.Store, id string) int {
	t.Helper()
	product, err := repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

func TestReserveIsAllOrNothing(t *testing.T) {
	ldg, repo := newTestLedger(t)
	ctx := context.Background()

	_, err := ldg.Reserve(ctx, []store.StockLine{
		{ProductID: "prd-a", Qty: 3},
		{ProductID: "prd-b", Qty: 6}, // only 5 in stock
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, repo, "prd-a"); got != 10 {
		t.Fatalf("prd-a stock must be untouched after failed batch, got %d", got)
	}
	if got := stockOf(t, repo, "prd-b"); got != 5 {
		t.Fatalf("prd-b stock must be untouched after failed batch, got %d", got)
	}
}

func TestReserveNormalizesLines(t *testing.T) {
	ldg, repo := newTestLedger(t)
	ctx := context.Background()

	batch, err := ldg.Reserve(ctx, []store.StockLine{
		{ProductID: "prd-a", Qty: 2},
		{ProductID: "prd-b", Qty: 0}, // dropped
		{ProductID: "prd-a", Qty: 3}, // merged
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if len(batch) != 1 || batch[0].ProductID != "prd-a" || batch[0].Qty != 5 {
		t.Fatalf("expected single merged line prd-a x5, got %+v", batch)
	}
	if got := stockOf(t, repo, "prd-a"); got != 5 {
		t.Fatalf("expected prd-a stock 5, got %d", got)
	}
	if got := stockOf(t, repo, "prd-b"); got != 5 {
		t.Fatalf("zero-qty line must not touch prd-b, got %d", got)
	}
}

func TestReserveRejectsNegativeAndEmpty(t *testing.T) {
	ldg, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ldg.Reserve(ctx, []store.StockLine{{ProductID: "prd-a", Qty: -1}})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative qty, got %v", err)
	}

	_, err = ldg.Reserve(ctx, []store.StockLine{{ProductID: "prd-a", Qty: 0}})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for all-zero batch, got %v", err)
	}
}

func TestConcurrentReserveHasExactlyOneWinner(t *testing.T) {
	repo := memory.NewEmpty()
	ctx := context.Background()
	if _, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prd-last", Title: "Last One", Category: "test", PriceCents: 999, Stock: 1,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	ldg := New(repo, nil)

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ldg.Reserve(ctx, []store.StockLine{{ProductID: "prd-last", Qty: 1}}); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner for the last unit, got %d", won)
	}
	if got := stockOf(t, repo, "prd-last"); got != 0 {
		t.Fatalf("expected stock 0 after the race, got %d", got)
	}
}

func TestCommitSaleThenReturnBoundedBySoldQuantity(t *testing.T) {
	ldg, repo := newTestLedger(t)
	ctx := context.Background()

	sale, err := ldg.CommitSale(ctx, domain.Sale{
		ID:         "sal-1",
		OperatorID: "usr-keeper",
		Items: []domain.SaleLine{
			{ProductID: "prd-a", Name: "Product A", UnitPriceCents: 2000, Qty: 3, SubtotalCents: 6000},
		},
		TotalCents:    6000,
		PaymentMethod: domain.PaymentCash,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if got := stockOf(t, repo, "prd-a"); got != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", got)
	}

	// More than sold.
	_, err = ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-a", Qty: 4}},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected ErrInvalidReturnQuantity, got %v", err)
	}

	// Product not in the sale.
	_, err = ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-b", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected ErrInvalidReturnQuantity for foreign product, got %v", err)
	}

	ret, err := ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-a", Qty: 2}},
		Reason:         "damaged",
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if !ret.IsReturn || ret.OriginalSaleID != sale.ID {
		t.Fatalf("return record not linked: %+v", ret)
	}
	if ret.TotalCents != -4000 {
		t.Fatalf("expected return total -4000, got %d", ret.TotalCents)
	}
	if ret.Items[0].Qty != -2 || ret.Items[0].UnitPriceCents != 2000 {
		t.Fatalf("return line must carry negative qty at the original price: %+v", ret.Items[0])
	}
	if got := stockOf(t, repo, "prd-a"); got != 9 {
		t.Fatalf("expected stock 9 after return, got %d", got)
	}
}

func TestReturnBoundTracksPriorReturns(t *testing.T) {
	ldg, _ := newTestLedger(t)
	ctx := context.Background()

	sale, err := ldg.CommitSale(ctx, domain.Sale{
		ID:         "sal-2",
		OperatorID: "usr-keeper",
		Items: []domain.SaleLine{
			{ProductID: "prd-a", Name: "Product A", UnitPriceCents: 2000, Qty: 3, SubtotalCents: 6000},
		},
		TotalCents:    6000,
		PaymentMethod: domain.PaymentCard,
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	if _, err := ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-a", Qty: 2}},
	}); err != nil {
		t.Fatalf("first return failed: %v", err)
	}

	_, err = ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-a", Qty: 2}},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected second return to exceed the remaining quantity, got %v", err)
	}

	if _, err := ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-a", Qty: 1}},
	}); err != nil {
		t.Fatalf("returning the final unit failed: %v", err)
	}
}

func TestReturnBoundCountsDuplicateLinesTogether(t *testing.T) {
	ldg, repo := newTestLedger(t)
	ctx := context.Background()

	sale, err := ldg.CommitSale(ctx, domain.Sale{
		ID:         "sal-4",
		OperatorID: "usr-keeper",
		Items: []domain.SaleLine{
			{ProductID: "prd-a", Name: "Product A", UnitPriceCents: 2000, Qty: 2, SubtotalCents: 4000},
		},
		TotalCents:    4000,
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	// Two lines for the same product, each within bound on its own but
	// doubling the sold quantity when combined.
	_, err = ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines: []domain.ReturnLine{
			{ProductID: "prd-a", Qty: 2},
			{ProductID: "prd-a", Qty: 2},
		},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected duplicate lines to exceed the sold quantity, got %v", err)
	}
	if got := stockOf(t, repo, "prd-a"); got != 8 {
		t.Fatalf("stock must be untouched after rejected return, got %d", got)
	}

	// Split lines that stay within bound together are still fine.
	ret, err := ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines: []domain.ReturnLine{
			{ProductID: "prd-a", Qty: 1},
			{ProductID: "prd-a", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("split return within bound failed: %v", err)
	}
	if ret.TotalCents != -4000 {
		t.Fatalf("expected refund total -4000, got %d", ret.TotalCents)
	}
	if got := stockOf(t, repo, "prd-a"); got != 10 {
		t.Fatalf("expected stock back at 10, got %d", got)
	}

	// Everything is returned now, so one more unit must be rejected.
	_, err = ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-a", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected nothing left to return, got %v", err)
	}
}

func TestReturnOfAReturnIsRejected(t *testing.T) {
	ldg, _ := newTestLedger(t)
	ctx := context.Background()

	sale, err := ldg.CommitSale(ctx, domain.Sale{
		ID:         "sal-3",
		OperatorID: "usr-keeper",
		Items: []domain.SaleLine{
			{ProductID: "prd-b", Name: "Product B", UnitPriceCents: 1500, Qty: 1, SubtotalCents: 1500},
		},
		TotalCents:    1500,
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	ret, err := ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: sale.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-b", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}

	_, err = ldg.ProcessReturn(ctx, "usr-keeper", domain.ReturnRequest{
		OriginalSaleID: ret.ID,
		Lines:          []domain.ReturnLine{{ProductID: "prd-b", Qty: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation when returning a return, got %v", err)
	}
}

func TestCommitOrderRollsBackStockWhenRecordWriteFails(t *testing.T) {
	ldg, repo := newTestLedger(t)
	ctx := context.Background()

	// An order without a user id fails store validation after the
	// reservation went through, forcing the compensation path.
	_, err := ldg.CommitOrder(ctx, domain.Order{
		ID: "ord-bad",
		Items: []domain.OrderLine{
			{ProductID: "prd-a", Qty: 4, UnitPriceCents: 2000},
		},
		TotalCents: 8000,
	})
	if err == nil {
		t.Fatalf("expected commit to fail without a user id")
	}
	if got := stockOf(t, repo, "prd-a"); got != 10 {
		t.Fatalf("expected reservation rolled back to stock 10, got %d", got)
	}
}
