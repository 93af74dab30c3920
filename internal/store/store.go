package store

import (
	"context"
	"errors"
	"time"

	"shopcenter/backend/internal/domain"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("invalid input")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidReturnQuantity = errors.New("invalid return quantity")
	ErrCouponRejected        = errors.New("coupon rejected")
)

// StockLine is one product+quantity entry in a reservation or restore batch.
type StockLine struct {
	ProductID string
	Qty       int
}

// Repository is the persistence contract shared by the in-memory and
// postgres stores. ReserveStock is the ledger's critical primitive: the
// stock check and decrement must be a single atomic unit per batch, and a
// failed batch must leave every product untouched.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// SetStock overwrites a product's stock and returns the previous value so
	// the caller can record the signed change in the inventory log.
	SetStock(ctx context.Context, productID string, stock int) (int, error)

	// ReserveStock conditionally decrements stock for every line, all or
	// nothing, and bumps each product's sales count. Fails with
	// ErrInsufficientStock (wrapped with the offending product id) without
	// touching any line if any single line exceeds available stock.
	ReserveStock(ctx context.Context, lines []StockLine) error
	// RestoreStock increments stock for every line (returns and
	// compensating rollback after a failed record write).
	RestoreStock(ctx context.Context, lines []StockLine) error

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, operatorID string, limit int) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	// GetReturnedQtyBySale sums previously returned quantities per product
	// across all return sales linked to the given original sale.
	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)

	CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	UpdateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	// RedeemCoupon atomically increments the coupon's used count, failing
	// with ErrCouponRejected if the usage limit is already reached.
	RedeemCoupon(ctx context.Context, code string) error

	CreateInventoryLog(ctx context.Context, entry domain.InventoryLog) error
	ListInventoryLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error)

	CreateReconciliation(ctx context.Context, entry domain.ReconciliationEntry) (*domain.ReconciliationEntry, error)
	ListReconciliations(ctx context.Context, status string, limit int) ([]domain.ReconciliationEntry, error)
	ResolveReconciliation(ctx context.Context, id string, resolvedBy string, note string, at time.Time) (*domain.ReconciliationEntry, error)

	UpsertGatewayCredential(ctx context.Context, cred domain.GatewayCredential) error
	GetGatewayCredential(ctx context.Context, gateway string) (*domain.GatewayCredential, error)
	ListGatewayCredentials(ctx context.Context) ([]domain.GatewayCredential, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
