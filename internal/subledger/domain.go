package subledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// CounterpartyKind separates customers from suppliers.
type CounterpartyKind string

const (
	KindCustomer CounterpartyKind = "CUSTOMER"
	KindSupplier CounterpartyKind = "SUPPLIER"
)

// DocumentKind separates receivables from payables.
type DocumentKind string

const (
	Receivable DocumentKind = "RECEIVABLE"
	Payable    DocumentKind = "PAYABLE"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	return k == Receivable || k == Payable
}

// CounterpartyKind returns the counterparty kind a document must reference.
func (k DocumentKind) CounterpartyKind() CounterpartyKind {
	if k == Payable {
		return KindSupplier
	}
	return KindCustomer
}

// DocumentStatus enumerates settlement states.
type DocumentStatus string

const (
	StatusUnpaid  DocumentStatus = "UNPAID"
	StatusPartial DocumentStatus = "PARTIAL"
	StatusPaid    DocumentStatus = "PAID"
	StatusVoid    DocumentStatus = "VOID"
)

// Open reports whether the document still expects payments.
func (s DocumentStatus) Open() bool {
	return s == StatusUnpaid || s == StatusPartial
}

// PaymentMethod enumerates settlement channels.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodBank     PaymentMethod = "BANK"
	MethodTransfer PaymentMethod = "TRANSFER"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBank, MethodTransfer:
		return true
	}
	return false
}

// Counterparty is a customer or supplier.
type Counterparty struct {
	ID        int64            `json:"id"`
	TenantID  int64            `json:"tenant_id"`
	Kind      CounterpartyKind `json:"kind"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
}

// Document is a receivable or payable mirrored from a SALE or PURCHASE.
type Document struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	Kind           DocumentKind    `json:"kind"`
	TransactionID  int64           `json:"transaction_id"`
	CounterpartyID int64           `json:"counterparty_id"`
	Number         string          `json:"number"`
	Amount         decimal.Decimal `json:"amount"`
	Paid           decimal.Decimal `json:"paid"`
	Remaining      decimal.Decimal `json:"remaining"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	Status         DocumentStatus  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Payment settles part or all of a document.
type Payment struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	DocumentID    int64           `json:"document_id"`
	TransactionID int64           `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Method        PaymentMethod   `json:"method"`
	Reference     string          `json:"reference,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	VoidedAt      *time.Time      `json:"voided_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DocumentDetail is a document with its payments.
type DocumentDetail struct {
	Document
	Payments []Payment `json:"payments"`
}

// CounterpartyInput creates a counterparty.
type CounterpartyInput struct {
	TenantID int64            `json:"-"`
	ActorID  int64            `json:"-"`
	Kind     CounterpartyKind `json:"kind" validate:"required,oneof=CUSTOMER SUPPLIER"`
	Name     string           `json:"name" validate:"required,max=160"`
}

// PaymentInput records a payment against a document.
type PaymentInput struct {
	TenantID   int64
	ActorID    int64
	DocumentID int64
	Amount     decimal.Decimal
	Date       time.Time
	Method     PaymentMethod
	Reference  string
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Kind           DocumentKind
	Status         DocumentStatus
	CounterpartyID int64
}

// AgingRow holds open amounts of one counterparty by days past due.
type AgingRow struct {
	CounterpartyID int64           `json:"counterparty_id"`
	Name           string          `json:"name"`
	Current        decimal.Decimal `json:"current"`
	Days1To30      decimal.Decimal `json:"days_1_30"`
	Days31To60     decimal.Decimal `json:"days_31_60"`
	Days61To90     decimal.Decimal `json:"days_61_90"`
	Over90         decimal.Decimal `json:"over_90"`
	Total          decimal.Decimal `json:"total"`
}

// AgingReport buckets open documents as of a date.
type AgingReport struct {
	Kind   DocumentKind `json:"kind"`
	AsOf   time.Time    `json:"as_of"`
	Rows   []AgingRow   `json:"rows"`
	Totals AgingRow     `json:"totals"`
}
