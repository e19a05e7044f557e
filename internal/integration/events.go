package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one priced line of a business document.
type Item struct {
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
}

// SaleEvent is an issued sales invoice. Without a customer it is a cash sale
// settled through Method.
type SaleEvent struct {
	TenantID    int64           `json:"-"`
	ActorID     int64           `json:"-"`
	Reference   string          `json:"reference" validate:"required,max=128"`
	Date        time.Time       `json:"-"`
	DueDate     *time.Time      `json:"-"`
	CustomerID  *int64          `json:"customer_id" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Items       []Item          `json:"items" validate:"required,min=1,dive"`
	Tax         decimal.Decimal `json:"tax"`
	Method      string          `json:"method" validate:"omitempty,oneof=CASH BANK TRANSFER"`
}

// PurchaseEvent is a received supplier invoice.
type PurchaseEvent struct {
	TenantID    int64      `json:"-"`
	ActorID     int64      `json:"-"`
	Reference   string     `json:"reference" validate:"required,max=128"`
	Date        time.Time  `json:"-"`
	DueDate     *time.Time `json:"-"`
	SupplierID  int64      `json:"supplier_id" validate:"required,gt=0"`
	Description string     `json:"description" validate:"max=500"`
	Items       []Item     `json:"items" validate:"required,min=1,dive"`
	Inventory   bool       `json:"inventory"`
}

// ExpenseEvent is an expense paid immediately.
type ExpenseEvent struct {
	TenantID    int64           `json:"-"`
	ActorID     int64           `json:"-"`
	Reference   string          `json:"reference" validate:"required,max=128"`
	Date        time.Time       `json:"-"`
	AccountID   *int64          `json:"account_id" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"omitempty,oneof=CASH BANK TRANSFER"`
	Payroll     bool            `json:"payroll"`
}

// StockAdjustmentEvent is a counted stock difference valued at unit cost.
// Positive quantities are gains, negative ones losses.
type StockAdjustmentEvent struct {
	TenantID  int64           `json:"-"`
	ActorID   int64           `json:"-"`
	Reference string          `json:"reference" validate:"required,max=128"`
	Date      time.Time       `json:"-"`
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Memo      string          `json:"memo" validate:"max=255"`
}
