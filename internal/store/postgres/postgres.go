package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, category, price_cents, stock, sales_count, created_at, updated_at
		FROM products
		ORDER BY category, title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.PriceCents, &p.Stock, &p.SalesCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Title == "" || product.Category == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, title, description, category, price_cents, stock, sales_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$7)
	`, product.ID, product.Title, product.Description, product.Category, product.PriceCents, product.Stock, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, price_cents, stock, sales_count, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.PriceCents, &p.Stock, &p.SalesCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, category, price_cents, stock, sales_count, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.PriceCents, &p.Stock, &p.SalesCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Title == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET title = $2, description = $3, category = $4, price_cents = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Title, product.Description, product.Category, product.PriceCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetStock(ctx context.Context, productID string, stock int) (int, error) {
	if stock < 0 {
		return 0, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var previous int
	err = tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, stock); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return previous, nil
}

func (s *Store) ReserveStock(ctx context.Context, lines []store.StockLine) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, sales_count = sales_count + $2, updated_at = now()
			WHERE id = $1 AND stock >= $2
		`, line.ProductID, line.Qty)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
			}
			return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, line.ProductID)
		}
	}

	return tx.Commit()
}

func (s *Store) RestoreStock(ctx context.Context, lines []store.StockLine) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Qty)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
	}

	return tx.Commit()
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.UserID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, items, total_cents, currency, local_amount_cents, base_amount_cents,
			base_currency_only, coupon_code, status, payment_reference, shipping_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, order.ID, order.UserID, itemsJSON, order.TotalCents, order.Currency, order.LocalAmountCents,
		order.BaseAmountCents, order.BaseCurrencyOnly, order.CouponCode, order.Status,
		order.PaymentReference, addressJSON, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := order
	return &created, nil
}

const orderColumns = `id, user_id, items, total_cents, currency, local_amount_cents, base_amount_cents,
	base_currency_only, coupon_code, status, payment_reference, shipping_address, created_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (*domain.Order, error) {
	var order domain.Order
	var itemsRaw, addressRaw []byte
	err := row.Scan(&order.ID, &order.UserID, &itemsRaw, &order.TotalCents, &order.Currency,
		&order.LocalAmountCents, &order.BaseAmountCents, &order.BaseCurrencyOnly, &order.CouponCode,
		&order.Status, &order.PaymentReference, &addressRaw, &order.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
		return nil, err
	}
	if len(addressRaw) > 0 {
		_ = json.Unmarshal(addressRaw, &order.ShippingAddress)
	}
	return &order, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) GetOrderByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	if reference == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1 ORDER BY created_at LIMIT 1`, reference)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, 0, 2)
	if userID != "" {
		query += ` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, userID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

const saleColumns = `id, operator_id, items, total_cents, payment_method, is_return, original_sale_id, reason, created_at`

func scanSale(row interface{ Scan(dest ...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var itemsRaw []byte
	var originalSaleID, reason sql.NullString
	err := row.Scan(&sale.ID, &sale.OperatorID, &itemsRaw, &sale.TotalCents, &sale.PaymentMethod,
		&sale.IsReturn, &originalSaleID, &reason, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &sale.Items); err != nil {
		return nil, err
	}
	sale.OriginalSaleID = originalSaleID.String
	sale.Reason = reason.String
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, operator_id, items, total_cents, payment_method, is_return, original_sale_id, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9)
	`, sale.ID, sale.OperatorID, itemsJSON, sale.TotalCents, sale.PaymentMethod, sale.IsReturn,
		sale.OriginalSaleID, sale.Reason, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, operatorID string, limit int) ([]domain.Sale, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	args := make([]any, 0, 2)
	if operatorID != "" {
		query += ` WHERE operator_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, operatorID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT items
		FROM sales
		WHERE is_return = true AND original_sale_id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[string]int)
	for rows.Next() {
		var itemsRaw []byte
		if err := rows.Scan(&itemsRaw); err != nil {
			return nil, err
		}
		var items []domain.SaleLine
		if err := json.Unmarshal(itemsRaw, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			returned[item.ProductID] += -item.Qty
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returned, nil
}

const couponColumns = `code, type, value, usage_limit, used_count, valid_from, valid_to, active, created_at`

func scanCoupon(row interface{ Scan(dest ...any) error }) (*domain.Coupon, error) {
	var coupon domain.Coupon
	var validFrom, validTo sql.NullTime
	err := row.Scan(&coupon.Code, &coupon.Type, &coupon.Value, &coupon.UsageLimit, &coupon.UsedCount,
		&validFrom, &validTo, &coupon.Active, &coupon.CreatedAt)
	if err != nil {
		return nil, err
	}
	if validFrom.Valid {
		t := validFrom.Time
		coupon.ValidFrom = &t
	}
	if validTo.Valid {
		t := validTo.Time
		coupon.ValidTo = &t
	}
	return &coupon, nil
}

func (s *Store) CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" || coupon.Value <= 0 {
		return nil, store.ErrValidation
	}
	if coupon.Type != domain.DiscountPercent && coupon.Type != domain.DiscountFixed {
		return nil, store.ErrValidation
	}
	if coupon.Type == domain.DiscountPercent && coupon.Value > 100 {
		return nil, store.ErrValidation
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (code, type, value, usage_limit, used_count, valid_from, valid_to, active, created_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8)
	`, coupon.Code, coupon.Type, coupon.Value, coupon.UsageLimit, coupon.ValidFrom, coupon.ValidTo,
		coupon.Active, coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := coupon
	return &created, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		strings.ToUpper(strings.TrimSpace(code)))
	coupon, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func (s *Store) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0, 32)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return coupons, nil
}

func (s *Store) UpdateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Value <= 0 || (coupon.Type == domain.DiscountPercent && coupon.Value > 100) {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons
		SET type = $2, value = $3, usage_limit = $4, valid_from = $5, valid_to = $6, active = $7
		WHERE code = $1
	`, coupon.Code, coupon.Type, coupon.Value, coupon.UsageLimit, coupon.ValidFrom, coupon.ValidTo, coupon.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCouponByCode(ctx, coupon.Code)
}

func (s *Store) RedeemCoupon(ctx context.Context, code string) error {
	key := strings.ToUpper(strings.TrimSpace(code))
	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)
	`, key)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM coupons WHERE code = $1)`, key).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: usage limit reached", store.ErrCouponRejected)
	}
	return nil
}

func (s *Store) CreateInventoryLog(ctx context.Context, entry domain.InventoryLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("inv")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_logs (id, product_id, user_id, change, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.UserID, entry.Change, entry.Reason, entry.CreatedAt)
	return err
}

func (s *Store) ListInventoryLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, product_id, user_id, change, reason, created_at FROM inventory_logs`
	args := make([]any, 0, 2)
	if productID != "" {
		query += ` WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, productID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.InventoryLog, 0, limit)
	for rows.Next() {
		var entry domain.InventoryLog
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.UserID, &entry.Change, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateReconciliation(ctx context.Context, entry domain.ReconciliationEntry) (*domain.ReconciliationEntry, error) {
	if entry.PaymentReference == "" {
		return nil, store.ErrValidation
	}
	if entry.ID == "" {
		entry.ID = xid.New("rec")
	}
	if entry.Status == "" {
		entry.Status = domain.ReconciliationOpen
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliations (id, user_id, payment_reference, amount_cents, currency, reason, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.UserID, entry.PaymentReference, entry.AmountCents, entry.Currency, entry.Reason,
		entry.Status, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := entry
	return &created, nil
}

func (s *Store) ListReconciliations(ctx context.Context, status string, limit int) ([]domain.ReconciliationEntry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, user_id, payment_reference, amount_cents, currency, reason, status,
			COALESCE(note, ''), COALESCE(resolved_by, ''), resolved_at, created_at
		FROM reconciliations`
	args := make([]any, 0, 2)
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ReconciliationEntry, 0, limit)
	for rows.Next() {
		var entry domain.ReconciliationEntry
		var resolvedAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.PaymentReference, &entry.AmountCents,
			&entry.Currency, &entry.Reason, &entry.Status, &entry.Note, &entry.ResolvedBy,
			&resolvedAt, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			entry.ResolvedAt = &t
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ResolveReconciliation(ctx context.Context, id string, resolvedBy string, note string, at time.Time) (*domain.ReconciliationEntry, error) {
	var entry domain.ReconciliationEntry
	var resolvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		UPDATE reconciliations
		SET status = $2, resolved_by = $3, note = $4, resolved_at = $5
		WHERE id = $1 AND status = $6
		RETURNING id, user_id, payment_reference, amount_cents, currency, reason, status,
			COALESCE(note, ''), COALESCE(resolved_by, ''), resolved_at, created_at
	`, id, domain.ReconciliationResolved, resolvedBy, note, at, domain.ReconciliationOpen).
		Scan(&entry.ID, &entry.UserID, &entry.PaymentReference, &entry.AmountCents, &entry.Currency,
			&entry.Reason, &entry.Status, &entry.Note, &entry.ResolvedBy, &resolvedAt, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, lookupErr := s.getReconciliationByID(ctx, id); lookupErr == nil {
				return nil, fmt.Errorf("%w: already resolved", store.ErrValidation)
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		entry.ResolvedAt = &t
	}
	return &entry, nil
}

func (s *Store) getReconciliationByID(ctx context.Context, id string) (*domain.ReconciliationEntry, error) {
	var entry domain.ReconciliationEntry
	err := s.db.QueryRowContext(ctx, `SELECT id, status FROM reconciliations WHERE id = $1`, id).
		Scan(&entry.ID, &entry.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) UpsertGatewayCredential(ctx context.Context, cred domain.GatewayCredential) error {
	if cred.Gateway == "" || len(cred.Values) == 0 {
		return store.ErrValidation
	}
	valuesJSON, err := json.Marshal(cred.Values)
	if err != nil {
		return err
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gateway_credentials (gateway, payload, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (gateway)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, cred.Gateway, valuesJSON, cred.UpdatedAt)
	return err
}

func (s *Store) GetGatewayCredential(ctx context.Context, gateway string) (*domain.GatewayCredential, error) {
	var cred domain.GatewayCredential
	var valuesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT gateway, payload, updated_at FROM gateway_credentials WHERE gateway = $1
	`, gateway).Scan(&cred.Gateway, &valuesRaw, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(valuesRaw, &cred.Values); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Store) ListGatewayCredentials(ctx context.Context) ([]domain.GatewayCredential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gateway, payload, updated_at FROM gateway_credentials ORDER BY gateway`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := make([]domain.GatewayCredential, 0, 8)
	for rows.Next() {
		var cred domain.GatewayCredential
		var valuesRaw []byte
		if err := rows.Scan(&cred.Gateway, &valuesRaw, &cred.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(valuesRaw, &cred.Values); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, password, role, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
