package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ordersByID      map[string]domain.Order
	salesByID       map[string]domain.Sale
	couponsByCode   map[string]domain.Coupon
	inventoryLogs   []domain.InventoryLog
	reconciliations map[string]domain.ReconciliationEntry
	credentials     map[string]domain.GatewayCredential
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_SHOPKEEPER_PASSWORD and
// SEED_CUSTOMER_PASSWORD; hardcoded dev defaults with a warning otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	keeperPwd := envOr("SEED_SHOPKEEPER_PASSWORD", "keeper123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SHOPKEEPER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SHOPKEEPER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"shopkeeper", keeperPwd, domain.RoleShopkeeper},
		{"customer", customerPwd, domain.RoleCustomer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        xid.New("usr"),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-tshirt-01", Title: "Classic Cotton T-Shirt", Description: "Plain crew-neck tee", Category: "apparel", PriceCents: 1999, Stock: 120},
		{ID: "prd-hoodie-01", Title: "Zip Hoodie", Description: "Fleece-lined zip hoodie", Category: "apparel", PriceCents: 4999, Stock: 60},
		{ID: "prd-mug-01", Title: "Ceramic Mug 350ml", Description: "Dishwasher safe", Category: "kitchen", PriceCents: 1250, Stock: 200},
		{ID: "prd-bottle-01", Title: "Steel Water Bottle", Description: "Insulated 750ml", Category: "kitchen", PriceCents: 2899, Stock: 90},
		{ID: "prd-notebook-01", Title: "Hardcover Notebook A5", Description: "192 ruled pages", Category: "stationery", PriceCents: 899, Stock: 300},
		{ID: "prd-pen-01", Title: "Gel Pen 3-Pack", Description: "0.5mm black ink", Category: "stationery", PriceCents: 499, Stock: 400},
		{ID: "prd-cap-01", Title: "Baseball Cap", Description: "Adjustable strap", Category: "apparel", PriceCents: 1799, Stock: 75},
		{ID: "prd-tote-01", Title: "Canvas Tote Bag", Description: "Heavy duty canvas", Category: "accessories", PriceCents: 1499, Stock: 150},
		{ID: "prd-charger-01", Title: "USB-C Wall Charger", Description: "30W fast charge", Category: "electronics", PriceCents: 2499, Stock: 110},
		{ID: "prd-cable-01", Title: "USB-C Cable 2m", Description: "Braided", Category: "electronics", PriceCents: 999, Stock: 250},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	coupons := map[string]domain.Coupon{
		"WELCOME10": {Code: "WELCOME10", Type: domain.DiscountPercent, Value: 10, UsageLimit: 100, Active: true, CreatedAt: now},
		"FLAT5":     {Code: "FLAT5", Type: domain.DiscountFixed, Value: 500, UsageLimit: 50, Active: true, CreatedAt: now},
	}

	return &Store{
		products:        productMap,
		ordersByID:      make(map[string]domain.Order),
		salesByID:       make(map[string]domain.Sale),
		couponsByCode:   coupons,
		inventoryLogs:   make([]domain.InventoryLog, 0, 64),
		reconciliations: make(map[string]domain.ReconciliationEntry),
		credentials:     make(map[string]domain.GatewayCredential),
		usersByUsername: seedUsers(),
	}
}

// NewEmpty returns a store with no seed data. Used by tests that want full
// control over the catalog.
func NewEmpty() *Store {
	s := NewSeeded()
	s.products = make(map[string]domain.Product)
	s.couponsByCode = make(map[string]domain.Coupon)
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Title, b.Title)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Title == "" || product.Category == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := s.products[id]; exists {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Title == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.Stock = existing.Stock
	product.SalesCount = existing.SalesCount
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) SetStock(_ context.Context, productID string, stock int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stock < 0 {
		return 0, store.ErrValidation
	}
	product, exists := s.products[productID]
	if !exists {
		return 0, store.ErrNotFound
	}

	previous := product.Stock
	product.Stock = stock
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return previous, nil
}

func (s *Store) ReserveStock(_ context.Context, lines []store.StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check the whole batch before touching anything.
	for _, line := range lines {
		product, exists := s.products[line.ProductID]
		if !exists {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		if product.Stock < line.Qty {
			return fmt.Errorf("%w: product %s has %d in stock, need %d",
				store.ErrInsufficientStock, line.ProductID, product.Stock, line.Qty)
		}
	}

	now := time.Now().UTC()
	for _, line := range lines {
		product := s.products[line.ProductID]
		product.Stock -= line.Qty
		product.SalesCount += line.Qty
		product.UpdatedAt = now
		s.products[line.ProductID] = product
	}
	return nil
}

func (s *Store) RestoreStock(_ context.Context, lines []store.StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		if _, exists := s.products[line.ProductID]; !exists {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
	}

	now := time.Now().UTC()
	for _, line := range lines {
		product := s.products[line.ProductID]
		product.Stock += line.Qty
		product.UpdatedAt = now
		s.products[line.ProductID] = product
	}
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.UserID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrValidation
	}
	if order.PaymentReference != "" {
		for _, existing := range s.ordersByID {
			if existing.PaymentReference == order.PaymentReference {
				return nil, fmt.Errorf("%w: payment reference %s already recorded", store.ErrValidation, order.PaymentReference)
			}
		}
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	order.Items = slices.Clone(order.Items)
	s.ordersByID[order.ID] = order
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) GetOrderByPaymentReference(_ context.Context, reference string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if reference == "" {
		return nil, store.ErrNotFound
	}
	for _, order := range s.ordersByID {
		if order.PaymentReference == reference {
			copyOrder := cloneOrder(order)
			return &copyOrder, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListOrders(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if userID != "" && order.UserID != userID {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}

	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	order.Status = status
	s.ordersByID[id] = order
	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrValidation
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	sale.Items = slices.Clone(sale.Items)
	s.salesByID[sale.ID] = sale
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, operatorID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if operatorID != "" && sale.OperatorID != operatorID {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}

	sortSalesNewestFirst(sales)
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	sortSalesNewestFirst(sales)
	return sales, nil
}

func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returned := make(map[string]int)
	for _, sale := range s.salesByID {
		if !sale.IsReturn || sale.OriginalSaleID != saleID {
			continue
		}
		for _, item := range sale.Items {
			returned[item.ProductID] += -item.Qty
		}
	}
	return returned, nil
}

func (s *Store) CreateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	if _, exists := s.couponsByCode[coupon.Code]; exists {
		return nil, store.ErrValidation
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	s.couponsByCode[coupon.Code] = coupon
	created := coupon
	return &created, nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupon, exists := s.couponsByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCoupon := coupon
	return &copyCoupon, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupons := make([]domain.Coupon, 0, len(s.couponsByCode))
	for _, coupon := range s.couponsByCode {
		coupons = append(coupons, coupon)
	}
	slices.SortFunc(coupons, func(a, b domain.Coupon) int {
		return cmpString(a.Code, b.Code)
	})
	return coupons, nil
}

func (s *Store) UpdateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	existing, exists := s.couponsByCode[coupon.Code]
	if !exists {
		return nil, store.ErrNotFound
	}
	if coupon.Value <= 0 || (coupon.Type == domain.DiscountPercent && coupon.Value > 100) {
		return nil, store.ErrValidation
	}

	coupon.UsedCount = existing.UsedCount
	coupon.CreatedAt = existing.CreatedAt
	s.couponsByCode[coupon.Code] = coupon
	updated := coupon
	return &updated, nil
}

func (s *Store) RedeemCoupon(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(strings.TrimSpace(code))
	coupon, exists := s.couponsByCode[key]
	if !exists {
		return store.ErrNotFound
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return fmt.Errorf("%w: usage limit reached", store.ErrCouponRejected)
	}

	coupon.UsedCount++
	s.couponsByCode[key] = coupon
	return nil
}

func (s *Store) CreateInventoryLog(_ context.Context, entry domain.InventoryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("inv")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.inventoryLogs = append(s.inventoryLogs, entry)
	return nil
}

func (s *Store) ListInventoryLogs(_ context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.InventoryLog, 0, len(s.inventoryLogs))
	for _, entry := range s.inventoryLogs {
		if productID != "" && entry.ProductID != productID {
			continue
		}
		logs = append(logs, entry)
	}

	slices.SortFunc(logs, func(a, b domain.InventoryLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateReconciliation(_ context.Context, entry domain.ReconciliationEntry) (*domain.ReconciliationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.reconciliations[entry.ID] = entry
	created := entry
	return &created, nil
}

func (s *Store) ListReconciliations(_ context.Context, status string, limit int) ([]domain.ReconciliationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.ReconciliationEntry, 0, len(s.reconciliations))
	for _, entry := range s.reconciliations {
		if status != "" && entry.Status != status {
			continue
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b domain.ReconciliationEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) ResolveReconciliation(_ context.Context, id string, resolvedBy string, note string, at time.Time) (*domain.ReconciliationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.reconciliations[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if entry.Status == domain.ReconciliationResolved {
		return nil, fmt.Errorf("%w: already resolved", store.ErrValidation)
	}

	entry.Status = domain.ReconciliationResolved
	entry.ResolvedBy = resolvedBy
	entry.Note = note
	resolvedAt := at
	entry.ResolvedAt = &resolvedAt
	s.reconciliations[id] = entry
	resolved := entry
	return &resolved, nil
}

func (s *Store) UpsertGatewayCredential(_ context.Context, cred domain.GatewayCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.Gateway == "" || len(cred.Values) == 0 {
		return store.ErrValidation
	}
	values := make(map[string]string, len(cred.Values))
	for k, v := range cred.Values {
		values[k] = v
	}
	cred.Values = values
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = time.Now().UTC()
	}
	s.credentials[cred.Gateway] = cred
	return nil
}

func (s *Store) GetGatewayCredential(_ context.Context, gateway string) (*domain.GatewayCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, exists := s.credentials[gateway]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCred := cloneCredential(cred)
	return &copyCred, nil
}

func (s *Store) ListGatewayCredentials(_ context.Context) ([]domain.GatewayCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]domain.GatewayCredential, 0, len(s.credentials))
	for _, cred := range s.credentials {
		creds = append(creds, cloneCredential(cred))
	}
	slices.SortFunc(creds, func(a, b domain.GatewayCredential) int {
		return cmpString(a.Gateway, b.Gateway)
	})
	return creds, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	return order
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Items = slices.Clone(sale.Items)
	return sale
}

func cloneCredential(cred domain.GatewayCredential) domain.GatewayCredential {
	values := make(map[string]string, len(cred.Values))
	for k, v := range cred.Values {
		values[k] = v
	}
	cred.Values = values
	return cred
}

func sortSalesNewestFirst(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
