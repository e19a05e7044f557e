package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TransactionType classifies the business event behind a posting.
type TransactionType string

const (
	TypeSale          TransactionType = "SALE"
	TypePurchase      TransactionType = "PURCHASE"
	TypeExpense       TransactionType = "EXPENSE"
	TypePayroll       TransactionType = "PAYROLL"
	TypeManualJournal TransactionType = "MANUAL_JOURNAL"
	TypePaymentIn     TransactionType = "PAYMENT_IN"
	TypePaymentOut    TransactionType = "PAYMENT_OUT"
	TypeStockMovement TransactionType = "STOCK_MOVEMENT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeSale, TypePurchase, TypeExpense, TypePayroll, TypeManualJournal,
		TypePaymentIn, TypePaymentOut, TypeStockMovement:
		return true
	}
	return false
}

// PaymentStatus tracks settlement of SALE and PURCHASE transactions.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// VoucherStatus enumerates voucher lifecycle values.
type VoucherStatus string

const (
	VoucherPosted    VoucherStatus = "POSTED"
	VoucherCancelled VoucherStatus = "CANCELLED"
)

// Transaction is the business-level record of a posting.
type Transaction struct {
	ID             int64             `json:"id"`
	TenantID       int64             `json:"tenant_id"`
	Number         string            `json:"number"`
	Date           time.Time         `json:"date"`
	Type           TransactionType   `json:"type"`
	Description    string            `json:"description"`
	Reference      string            `json:"reference,omitempty"`
	Total          decimal.Decimal   `json:"total"`
	PaymentStatus  PaymentStatus     `json:"payment_status"`
	IsPosted       bool              `json:"is_posted"`
	PostedAt       *time.Time        `json:"posted_at,omitempty"`
	IsVoid         bool              `json:"is_void"`
	VoidedAt       *time.Time        `json:"voided_at,omitempty"`
	VoidedBy       *int64            `json:"voided_by,omitempty"`
	VoidReason     string            `json:"void_reason,omitempty"`
	CounterpartyID *int64            `json:"counterparty_id,omitempty"`
	CreatedBy      int64             `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
	Lines          []TransactionLine `json:"lines,omitempty"`
}

// TransactionLine is a display item; it carries no ledger effect.
type TransactionLine struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     *int64          `json:"account_id,omitempty"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Discount      decimal.Decimal `json:"discount"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// Voucher is the balanced accounting document behind a transaction.
type Voucher struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	TransactionID int64           `json:"transaction_id"`
	Number        string          `json:"number"`
	Date          time.Time       `json:"date"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	Status        VoucherStatus   `json:"status"`
	IsPosted      bool            `json:"is_posted"`
	Lines         []VoucherLine   `json:"lines"`
}

// VoucherLine stores a debit or credit amount for an account.
type VoucherLine struct {
	ID        int64           `json:"id"`
	VoucherID int64           `json:"voucher_id"`
	Seq       int             `json:"seq"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
}

// GLEntry links a voucher to its accounting period.
type GLEntry struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	VoucherID int64     `json:"voucher_id"`
	PeriodID  int64     `json:"period_id"`
	Date      time.Time `json:"date"`
	IsPosted  bool      `json:"is_posted"`
	Lines     []GLLine  `json:"lines"`
}

// GLLine is the authoritative ledger line read by balances and reports.
type GLLine struct {
	ID        int64           `json:"id"`
	EntryID   int64           `json:"entry_id"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
}

// Effect returns the line's raw effect on its account balance.
func (l GLLine) Effect() decimal.Decimal {
	return shared.PostingEffect(l.Debit, l.Credit)
}

// Posting is the full record chain produced by one posting.
type Posting struct {
	Transaction Transaction `json:"transaction"`
	Voucher     Voucher     `json:"voucher"`
	Entry       GLEntry     `json:"entry"`
}

// PostingLineInput describes a ledger line for a posting request.
type PostingLineInput struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo" validate:"max=255"`
}

// ItemInput describes a display item (qty x unit price - discount).
type ItemInput struct {
	AccountID   *int64          `json:"account_id"`
	Description string          `json:"description" validate:"max=255"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
}

// Subtotal returns the item's extended amount.
func (i ItemInput) Subtotal() decimal.Decimal {
	return shared.Round2(i.Quantity.Mul(i.UnitPrice).Sub(i.Discount))
}

// CounterpartyRef attaches a customer or supplier to a posting.
type CounterpartyRef struct {
	ID      int64      `json:"id" validate:"required,gt=0"`
	DueDate *time.Time `json:"due_date"`
}

// PostingInput groups fields required to post a transaction.
type PostingInput struct {
	TenantID     int64              `json:"-"`
	ActorID      int64              `json:"-"`
	Number       string             `json:"number" validate:"required,max=64"`
	Date         time.Time          `json:"date" validate:"required"`
	Type         TransactionType    `json:"type" validate:"required"`
	Description  string             `json:"description" validate:"max=500"`
	Reference    string             `json:"reference" validate:"max=128"`
	Lines        []PostingLineInput `json:"lines" validate:"dive"`
	Items        []ItemInput        `json:"items" validate:"dive"`
	Counterparty *CounterpartyRef   `json:"counterparty"`
}

// Totals sums the debit and credit sides of the input lines.
func (in PostingInput) Totals() (debit, credit decimal.Decimal) {
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Validate ensures posting input meets minimum criteria. It runs before any
// storage is touched.
func (in PostingInput) Validate() error {
	if in.TenantID <= 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Number) == "" {
		return fmt.Errorf("%w: transaction number required", shared.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", shared.ErrValidation, in.Type)
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range in.Lines {
		if line.AccountID <= 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrValidation, idx+1)
		}
		if !shared.CentPrecise(line.Debit) || !shared.CentPrecise(line.Credit) {
			return fmt.Errorf("%w: line %d amount finer than a cent", shared.ErrValidation, idx+1)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d must carry exactly one of debit or credit", shared.ErrValidation, idx+1)
		}
	}
	debit, credit := in.Totals()
	if !shared.Balanced(debit, credit) {
		return fmt.Errorf("%w (debit %s, credit %s)", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	if in.Counterparty != nil && in.Counterparty.ID <= 0 {
		return fmt.Errorf("%w: counterparty id required", shared.ErrValidation)
	}
	return nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	TenantID      int64  `json:"-"`
	ActorID       int64  `json:"-"`
	TransactionID int64  `json:"-"`
	Reason        string `json:"reason" validate:"max=500"`
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	Type        TransactionType
	From        *time.Time
	To          *time.Time
	IncludeVoid bool
}

// VoucherImbalance reports a posted voucher whose lines do not balance.
type VoucherImbalance struct {
	VoucherID   int64           `json:"voucher_id"`
	Number      string          `json:"number"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// BalanceDrift reports an account whose running balance disagrees with
// opening balance plus posted ledger lines.
type BalanceDrift struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Stored    decimal.Decimal `json:"stored"`
	Expected  decimal.Decimal `json:"expected"`
}

// IntegrityReport is the outcome of CheckIntegrity.
type IntegrityReport struct {
	TenantID   int64              `json:"tenant_id"`
	CheckedAt  time.Time          `json:"checked_at"`
	Unbalanced []VoucherImbalance `json:"unbalanced"`
	Drift      []BalanceDrift     `json:"drift"`
}

// OK reports whether no problems were found.
func (r IntegrityReport) OK() bool {
	return len(r.Unbalanced) == 0 && len(r.Drift) == 0
}
