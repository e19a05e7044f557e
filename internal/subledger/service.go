// Package subledger mirrors sales and purchases into receivables and
// payables and settles them with ledger-posted payments.
package subledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TxRepository is the ledger unit of work extended with subledger rows.
type TxRepository interface {
	accounting.TxRepository

	GetCounterparty(ctx context.Context, tenantID, id int64) (Counterparty, error)
	InsertDocument(ctx context.Context, d Document) (Document, error)
	LockDocument(ctx context.Context, tenantID, id int64) (Document, error)
	LockDocumentByTransaction(ctx context.Context, tenantID, transactionID int64) (Document, error)
	UpdateDocument(ctx context.Context, d Document) error
	CountPayments(ctx context.Context, tenantID, documentID int64) (int, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	PaymentByTransaction(ctx context.Context, tenantID, transactionID int64) (Payment, error)
	VoidPayment(ctx context.Context, tenantID, id int64, at time.Time) error
}

// TxPort opens subledger-capable units of work.
type TxPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Store serves reads and counterparty maintenance outside a unit of work.
type Store interface {
	InsertCounterparty(ctx context.Context, c Counterparty) (Counterparty, error)
	ListCounterparties(ctx context.Context, tenantID int64, kind CounterpartyKind) ([]Counterparty, error)
	FindDocument(ctx context.Context, tenantID, id int64) (Document, error)
	ListDocuments(ctx context.Context, tenantID int64, filter DocumentFilter) ([]Document, error)
	ListPayments(ctx context.Context, tenantID, documentID int64) ([]Payment, error)
}

type ledgerPort struct {
	port TxPort
}

// LedgerPort adapts port so the posting engine runs its units of work on
// subledger-capable transactions, letting the subledger hooks join them.
func LedgerPort(port TxPort) accounting.RepositoryPort {
	return ledgerPort{port: port}
}

func (p ledgerPort) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return p.port.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, tx)
	})
}

// ErrUnsupportedTx indicates the engine was wired to a repository without
// subledger support.
var ErrUnsupportedTx = fmt.Errorf("%w: ledger transaction lacks subledger support", shared.ErrIntegrity)

// Service manages counterparties, documents and payments.
type Service struct {
	tx     TxPort
	store  Store
	ledger *accounting.Service
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the subledger service and registers its post and
// void hooks on ledger.
func NewService(tx TxPort, store Store, ledger *accounting.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{tx: tx, store: store, ledger: ledger, logger: logger, now: time.Now}
	ledger.OnPost(s.onPost)
	ledger.OnVoid(s.onVoid)
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func documentKindFor(t accounting.TransactionType) (DocumentKind, bool) {
	switch t {
	case accounting.TypeSale:
		return Receivable, true
	case accounting.TypePurchase:
		return Payable, true
	}
	return "", false
}

// onPost creates the receivable or payable for a SALE or PURCHASE posted
// with a counterparty.
func (s *Service) onPost(ctx context.Context, tx accounting.TxRepository, posted accounting.Posting, in accounting.PostingInput) error {
	kind, ok := documentKindFor(posted.Transaction.Type)
	if !ok || in.Counterparty == nil {
		return nil
	}
	stx, ok := tx.(TxRepository)
	if !ok {
		return ErrUnsupportedTx
	}
	cp, err := stx.GetCounterparty(ctx, in.TenantID, in.Counterparty.ID)
	if err != nil {
		return err
	}
	if cp.Kind != kind.CounterpartyKind() {
		return fmt.Errorf("%w: %s %d", shared.ErrCounterpartyNotFound, strings.ToLower(string(kind.CounterpartyKind())), cp.ID)
	}
	due := posted.Transaction.Date
	if in.Counterparty.DueDate != nil {
		due = *in.Counterparty.DueDate
	}
	_, err = stx.InsertDocument(ctx, Document{
		TenantID:       in.TenantID,
		Kind:           kind,
		TransactionID:  posted.Transaction.ID,
		CounterpartyID: cp.ID,
		Number:         posted.Transaction.Number,
		Amount:         posted.Transaction.Total,
		Remaining:      posted.Transaction.Total,
		IssueDate:      posted.Transaction.Date,
		DueDate:        due,
		Status:         StatusUnpaid,
	})
	return err
}

// onVoid keeps documents consistent with a voided transaction. Voiding a
// payment's transaction restores the document; voiding a document's
// transaction is refused while payments exist.
func (s *Service) onVoid(ctx context.Context, tx accounting.TxRepository, txn accounting.Transaction) error {
	stx, ok := tx.(TxRepository)
	if !ok {
		return ErrUnsupportedTx
	}
	if txn.Type == accounting.TypePaymentIn || txn.Type == accounting.TypePaymentOut {
		return s.reversePayment(ctx, stx, txn)
	}
	doc, err := stx.LockDocumentByTransaction(ctx, txn.TenantID, txn.ID)
	if errors.Is(err, shared.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	count, err := stx.CountPayments(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s has %d payment(s)", shared.ErrHasPayments, doc.Number, count)
	}
	doc.Status = StatusVoid
	doc.Remaining = decimal.Zero
	return stx.UpdateDocument(ctx, doc)
}

func (s *Service) reversePayment(ctx context.Context, tx TxRepository, txn accounting.Transaction) error {
	payment, err := tx.PaymentByTransaction(ctx, txn.TenantID, txn.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	doc, err := tx.LockDocument(ctx, payment.TenantID, payment.DocumentID)
	if err != nil {
		return err
	}
	if doc.Status == StatusVoid {
		return fmt.Errorf("%w: %s", shared.ErrDocumentVoid, doc.Number)
	}
	doc.Paid = doc.Paid.Sub(payment.Amount)
	settle(&doc)
	if err := tx.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	if err := tx.SetPaymentStatus(ctx, doc.TenantID, doc.TransactionID, accounting.PaymentStatus(doc.Status)); err != nil {
		return err
	}
	return tx.VoidPayment(ctx, payment.TenantID, payment.ID, s.now())
}

// settle recomputes remaining and status from paid.
func settle(doc *Document) {
	doc.Remaining = doc.Amount.Sub(doc.Paid)
	switch {
	case !doc.Remaining.IsPositive():
		doc.Status = StatusPaid
	case doc.Paid.IsPositive():
		doc.Status = StatusPartial
	default:
		doc.Status = StatusUnpaid
	}
}

// RecordPayment settles part of a document and posts the cash movement in
// the same unit of work.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Payment, error) {
	in.Method = PaymentMethod(strings.ToUpper(string(in.Method)))
	if in.Method == "" {
		in.Method = MethodCash
	}
	switch {
	case in.TenantID <= 0 || in.DocumentID <= 0:
		return Payment{}, fmt.Errorf("%w: tenant and document required", shared.ErrValidation)
	case !in.Amount.IsPositive():
		return Payment{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	case !shared.CentPrecise(in.Amount):
		return Payment{}, fmt.Errorf("%w: payment amount finer than a cent", shared.ErrValidation)
	case in.Date.IsZero():
		return Payment{}, fmt.Errorf("%w: payment date required", shared.ErrValidation)
	case !in.Method.Valid():
		return Payment{}, fmt.Errorf("%w: unknown payment method %q", shared.ErrValidation, in.Method)
	}
	amount := shared.Round2(in.Amount)

	start := s.now()
	var (
		payment Payment
		posted  accounting.Posting
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LockDocument(ctx, in.TenantID, in.DocumentID)
		if err != nil {
			return err
		}
		if doc.Status == StatusVoid {
			return fmt.Errorf("%w: %s", shared.ErrDocumentVoid, doc.Number)
		}
		if amount.GreaterThan(doc.Remaining) {
			return fmt.Errorf("%w: %s remaining %s, payment %s", shared.ErrOverpayment, doc.Number,
				doc.Remaining.StringFixed(2), amount.StringFixed(2))
		}
		doc.Paid = doc.Paid.Add(amount)
		settle(&doc)
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.SetPaymentStatus(ctx, doc.TenantID, doc.TransactionID, accounting.PaymentStatus(doc.Status)); err != nil {
			return err
		}

		cash, err := mappings.ResolveCash(ctx, tx, tx, in.TenantID, string(in.Method))
		if err != nil {
			return err
		}
		posting := accounting.PostingInput{
			TenantID:    in.TenantID,
			ActorID:     in.ActorID,
			Number:      paymentNumber(in),
			Date:        in.Date,
			Description: fmt.Sprintf("Payment %s", doc.Number),
			Reference:   in.Reference,
		}
		if doc.Kind == Receivable {
			control, err := mappings.ResolveControl(ctx, tx, tx, in.TenantID, mappings.ModuleAR)
			if err != nil {
				return err
			}
			posting.Type = accounting.TypePaymentIn
			posting.Lines = []accounting.PostingLineInput{
				{AccountID: cash, Debit: amount, Memo: string(in.Method)},
				{AccountID: control, Credit: amount, Memo: doc.Number},
			}
		} else {
			control, err := mappings.ResolveControl(ctx, tx, tx, in.TenantID, mappings.ModuleAP)
			if err != nil {
				return err
			}
			posting.Type = accounting.TypePaymentOut
			posting.Lines = []accounting.PostingLineInput{
				{AccountID: control, Debit: amount, Memo: doc.Number},
				{AccountID: cash, Credit: amount, Memo: string(in.Method)},
			}
		}
		posted, err = s.ledger.PostInTx(ctx, tx, posting)
		if err != nil {
			return err
		}
		payment, err = tx.InsertPayment(ctx, Payment{
			TenantID:      in.TenantID,
			DocumentID:    doc.ID,
			TransactionID: posted.Transaction.ID,
			Amount:        amount,
			Date:          in.Date,
			Method:        in.Method,
			Reference:     in.Reference,
			CreatedBy:     in.ActorID,
		})
		return err
	})
	s.ledger.Observe(accounting.ActionPayment, start, err)
	if err != nil {
		return Payment{}, shared.Integrity("record payment", err)
	}
	s.ledger.AfterCommit(ctx, accounting.ActionPayment, posted.Transaction, in.ActorID, map[string]any{
		"document_id": in.DocumentID,
		"payment_id":  payment.ID,
		"amount":      amount.StringFixed(2),
		"method":      string(in.Method),
	})
	return payment, nil
}

func paymentNumber(in PaymentInput) string {
	key := strings.TrimSpace(in.Reference)
	if key == "" {
		key = uuid.NewString()
	}
	return accounting.DerivedNumber("PAY", in.TenantID, in.DocumentID, key)
}

// CreateCounterparty registers a customer or supplier.
func (s *Service) CreateCounterparty(ctx context.Context, in CounterpartyInput) (Counterparty, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Kind = CounterpartyKind(strings.ToUpper(string(in.Kind)))
	if in.TenantID <= 0 || in.Name == "" {
		return Counterparty{}, fmt.Errorf("%w: tenant and name required", shared.ErrValidation)
	}
	if in.Kind != KindCustomer && in.Kind != KindSupplier {
		return Counterparty{}, fmt.Errorf("%w: unknown counterparty kind %q", shared.ErrValidation, in.Kind)
	}
	return s.store.InsertCounterparty(ctx, Counterparty{TenantID: in.TenantID, Kind: in.Kind, Name: in.Name})
}

// ListCounterparties returns the tenant's counterparties, optionally by kind.
func (s *Service) ListCounterparties(ctx context.Context, tenantID int64, kind CounterpartyKind) ([]Counterparty, error) {
	return s.store.ListCounterparties(ctx, tenantID, kind)
}

// GetDocument returns a document with its payments.
func (s *Service) GetDocument(ctx context.Context, tenantID, id int64) (DocumentDetail, error) {
	doc, err := s.store.FindDocument(ctx, tenantID, id)
	if err != nil {
		return DocumentDetail{}, err
	}
	payments, err := s.store.ListPayments(ctx, tenantID, id)
	if err != nil {
		return DocumentDetail{}, err
	}
	if payments == nil {
		payments = []Payment{}
	}
	return DocumentDetail{Document: doc, Payments: payments}, nil
}

// ListDocuments returns documents matching filter.
func (s *Service) ListDocuments(ctx context.Context, tenantID int64, filter DocumentFilter) ([]Document, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, filter.Kind)
	}
	return s.store.ListDocuments(ctx, tenantID, filter)
}

// Aging buckets the tenant's open documents of kind as of asOf. Paid
// amounts are rebuilt from payments dated on or before asOf; voided
// documents and payments are left out entirely.
func (s *Service) Aging(ctx context.Context, tenantID int64, kind DocumentKind, asOf time.Time) (AgingReport, error) {
	if !kind.Valid() {
		return AgingReport{}, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	docs, err := s.store.ListDocuments(ctx, tenantID, DocumentFilter{Kind: kind})
	if err != nil {
		return AgingReport{}, err
	}
	parties, err := s.store.ListCounterparties(ctx, tenantID, kind.CounterpartyKind())
	if err != nil {
		return AgingReport{}, err
	}
	names := make(map[int64]string, len(parties))
	for _, p := range parties {
		names[p.ID] = p.Name
	}
	open := docs[:0:0]
	for _, d := range docs {
		if d.IssueDate.After(asOf) || d.Status == StatusVoid {
			continue
		}
		if d.Paid.IsPositive() {
			payments, err := s.store.ListPayments(ctx, tenantID, d.ID)
			if err != nil {
				return AgingReport{}, err
			}
			d.Paid = PaidAsOf(payments, asOf)
			settle(&d)
		}
		open = append(open, d)
	}
	return BuildAging(kind, asOf, open, names), nil
}
