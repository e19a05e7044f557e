package mappings

import "time"

// Modules and keys resolved by the ledger and its integrations.
const (
	ModuleAR       = "AR"
	ModuleAP       = "AP"
	ModuleCash     = "CASH"
	ModuleSales    = "SALES"
	ModulePurchase = "PURCHASE"
	ModuleStock    = "STOCK"

	KeyControl    = "control"
	KeyDefault    = "default"
	KeyRevenue    = "revenue"
	KeyTax        = "tax"
	KeyExpense    = "expense"
	KeyInventory  = "inventory"
	KeyAdjustment = "adjustment"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	TenantID  int64     `json:"tenant_id"`
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
