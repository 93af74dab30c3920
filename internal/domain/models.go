package domain

import "time"

type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	SalesCount  int       `json:"sales_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

type ProductUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
}

type StockSetRequest struct {
	Stock  int    `json:"stock"`
	Reason string `json:"reason"`
}

// Address holds free-form structured shipping fields; none are validated
// beyond presence checks in the checkout flow.
type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// OrderLine is an immutable snapshot of a purchased item: the unit price is
// the catalog price at the time of purchase, never the client-supplied price.
type OrderLine struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Order struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Items            []OrderLine `json:"items"`
	TotalCents       int64       `json:"total_cents"`
	Currency         string      `json:"currency"`
	LocalAmountCents int64       `json:"local_amount_cents"`
	BaseAmountCents  int64       `json:"base_amount_cents"`
	BaseCurrencyOnly bool        `json:"base_currency_only"`
	CouponCode       string      `json:"coupon_code,omitempty"`
	Status           string      `json:"status"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	ShippingAddress  Address     `json:"shipping_address"`
	CreatedAt        time.Time   `json:"created_at"`
}

// SaleLine snapshots name and unit price so historical receipts stay accurate
// after catalog edits or deletes. Qty and SubtotalCents are negative on
// return sales, by convention.
type SaleLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Sale struct {
	ID             string     `json:"id"`
	OperatorID     string     `json:"operator_id"`
	Items          []SaleLine `json:"items"`
	TotalCents     int64      `json:"total_cents"`
	PaymentMethod  string     `json:"payment_method"`
	IsReturn       bool       `json:"is_return"`
	OriginalSaleID string     `json:"original_sale_id,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NetAmountCents returns the signed contribution of this sale to net revenue.
// Returns carry negative totals, so summing NetAmountCents across all sales
// yields net revenue without conditional logic.
func (s Sale) NetAmountCents() int64 {
	return s.TotalCents
}

type Coupon struct {
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Value      int64      `json:"value"`
	UsageLimit int        `json:"usage_limit"`
	UsedCount  int        `json:"used_count"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

type CouponCreateRequest struct {
	Code       string `json:"code"`
	Type       string `json:"type"`
	Value      int64  `json:"value"`
	UsageLimit int    `json:"usage_limit"`
	ValidFrom  string `json:"valid_from,omitempty"`
	ValidTo    string `json:"valid_to,omitempty"`
}

type CouponUpdateRequest struct {
	Value      *int64  `json:"value,omitempty"`
	UsageLimit *int    `json:"usage_limit,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	ValidFrom  *string `json:"valid_from,omitempty"`
	ValidTo    *string `json:"valid_to,omitempty"`
}

// InventoryLog records every stock change that did not come from the ledger's
// own sale/order/return path, so "why did stock change" is always answerable.
type InventoryLog struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Change    int       `json:"change"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ReconciliationEntry is the operator-visible exception queue for payments
// that were captured but whose order commit failed afterwards.
type ReconciliationEntry struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	PaymentReference string     `json:"payment_reference"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	Reason           string     `json:"reason"`
	Status           string     `json:"status"`
	Note             string     `json:"note,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type GatewayCredential struct {
	Gateway   string            `json:"gateway"`
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type CredentialUpdateRequest struct {
	Values map[string]string `json:"values"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ItemDiscount struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
}

type POSCartLine struct {
	ProductID string        `json:"product_id"`
	Qty       int           `json:"qty"`
	Discount  *ItemDiscount `json:"discount,omitempty"`
}

type POSCheckoutRequest struct {
	Lines         []POSCartLine `json:"lines"`
	CouponCode    string        `json:"coupon_code,omitempty"`
	PaymentMethod string        `json:"payment_method"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type CartPreviewRequest struct {
	Lines      []POSCartLine `json:"lines"`
	CouponCode string        `json:"coupon_code,omitempty"`
	Currency   string        `json:"currency,omitempty"`
}

type PreviewLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type CartPreviewResponse struct {
	Lines               []PreviewLine `json:"lines"`
	SubtotalCents       int64         `json:"subtotal_cents"`
	CouponDiscountCents int64         `json:"coupon_discount_cents"`
	TotalCents          int64         `json:"total_cents"`
	Currency            string        `json:"currency"`
	LocalTotalCents     int64         `json:"local_total_cents"`
	BaseCurrencyOnly    bool          `json:"base_currency_only"`
}

type PaymentIntentRequest struct {
	Lines       []CartLine `json:"lines"`
	Method      string     `json:"method"`
	Currency    string     `json:"currency,omitempty"`
	CouponCode  string     `json:"coupon_code,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
}

type PaymentIntentResponse struct {
	Reference        string `json:"reference"`
	ClientSecret     string `json:"client_secret,omitempty"`
	RedirectURL      string `json:"redirect_url,omitempty"`
	BaseAmountCents  int64  `json:"base_amount_cents"`
	LocalAmountCents int64  `json:"local_amount_cents"`
	Currency         string `json:"currency"`
	BaseCurrencyOnly bool   `json:"base_currency_only"`
}

type OnlineCheckoutRequest struct {
	Reference       string     `json:"reference"`
	Method          string     `json:"method"`
	Lines           []CartLine `json:"lines"`
	CouponCode      string     `json:"coupon_code,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	ShippingAddress Address    `json:"shipping_address"`
}

type OrderResponse struct {
	Order Order `json:"order"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type ReturnLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ReturnRequest struct {
	OriginalSaleID string       `json:"original_sale_id"`
	Lines          []ReturnLine `json:"lines"`
	Reason         string       `json:"reason"`
}

type ReconciliationResolveRequest struct {
	Note string `json:"note"`
}

type ZReport struct {
	Date              string           `json:"date"`
	TotalSalesCents   int64            `json:"total_sales_cents"`
	TotalReturnsCents int64            `json:"total_returns_cents"`
	NetSalesCents     int64            `json:"net_sales_cents"`
	PaymentBreakdown  map[string]int64 `json:"payment_breakdown"`
	SalesCount        int              `json:"sales_count"`
	ReturnsCount      int              `json:"returns_count"`
}

type SalesSummaryRow struct {
	Key        string `json:"key"`
	TotalCents int64  `json:"total_cents"`
	Count      int    `json:"count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentWallet = "wallet"
	PaymentMobile = "mobile"
)

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

const (
	ReconciliationOpen     = "open"
	ReconciliationResolved = "resolved"
)

const (
	RoleAdmin      = "admin"
	RoleShopkeeper = "shopkeeper"
	RoleCustomer   = "customer"
)
