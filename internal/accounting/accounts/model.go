package accounts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide returns the conventional balance side for the type.
func (t AccountType) NormalSide() shared.Side {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return shared.SideDebit
	}
	return shared.SideCredit
}

// Well-known categories used to locate control accounts.
const (
	CategoryReceivable = "AR"
	CategoryPayable    = "AP"
	CategoryCash       = "CASH"
)

// Account models a chart of accounts node. OpeningBalance and Balance are
// stored as raw debit-minus-credit amounts.
type Account struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	NormalSide     shared.Side     `json:"normal_side"`
	ParentID       *int64          `json:"parent_id,omitempty"`
	Level          int             `json:"level"`
	IsHeader       bool            `json:"is_header"`
	Category       string          `json:"category,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NormalBalance presents the running balance on the account's normal side.
func (a Account) NormalBalance() decimal.Decimal {
	return shared.SignedBalance(a.side(), a.Balance)
}

func (a Account) side() shared.Side {
	if a.NormalSide != "" {
		return a.NormalSide
	}
	return a.Type.NormalSide()
}

// Postable returns an error when the account cannot receive ledger lines.
func (a Account) Postable() error {
	if a.IsHeader {
		return shared.ErrHeaderAccount
	}
	if !a.IsActive {
		return shared.ErrAccountInactive
	}
	return nil
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	TenantID       int64           `json:"-"`
	ActorID        int64           `json:"-"`
	Code           string          `json:"code" validate:"required,max=32"`
	Name           string          `json:"name" validate:"required,max=160"`
	Type           AccountType     `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	NormalSide     shared.Side     `json:"normal_side" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentID       *int64          `json:"parent_id"`
	IsHeader       bool            `json:"is_header"`
	Category       string          `json:"category" validate:"max=32"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// TreeFilter narrows the chart of accounts listing.
type TreeFilter struct {
	Type       AccountType
	Flatten    bool
	ActiveOnly bool
}

// TreeRow is one account in depth-first display order. TotalBalance is the
// raw balance summed over descendants, shown on the row's normal side, so a
// contra account reduces its parent's total.
type TreeRow struct {
	Account
	Depth        int             `json:"depth"`
	HasChildren  bool            `json:"has_children"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}
