package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Audit and metric action names.
const (
	ActionPost    = "transaction.post"
	ActionVoid    = "transaction.void"
	ActionPayment = "payment.record"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// QueryPort serves read-only lookups outside a unit of work.
type QueryPort interface {
	FindTransaction(ctx context.Context, tenantID, id int64) (Posting, error)
	ListTransactions(ctx context.Context, tenantID int64, filter ListFilter, limit, offset int) ([]Transaction, int, error)
	UnbalancedVouchers(ctx context.Context, tenantID int64) ([]VoucherImbalance, error)
	BalanceDrift(ctx context.Context, tenantID int64) ([]BalanceDrift, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log core.AuditLog) error
}

// MetricsPort observes unit-of-work outcomes.
type MetricsPort interface {
	ObservePosting(action, outcome string, elapsed time.Duration)
}

// Invalidator drops cached reports for a tenant.
type Invalidator interface {
	Bump(ctx context.Context, tenantID int64) error
}

// PostHook runs inside the posting transaction after the ledger rows exist.
type PostHook func(ctx context.Context, tx TxRepository, posted Posting, in PostingInput) error

// VoidHook runs inside the void transaction before balances are reversed.
type VoidHook func(ctx context.Context, tx TxRepository, txn Transaction) error

// Service coordinates posting and voiding ledger transactions.
type Service struct {
	repo      RepositoryPort
	query     QueryPort
	audit     AuditPort
	metrics   MetricsPort
	cache     Invalidator
	logger    *slog.Logger
	policy    periods.Policy
	postHooks []PostHook
	voidHooks []VoidHook
	now       func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, query QueryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		query:  query,
		audit:  audit,
		logger: logger,
		policy: periods.PolicyAutoCreate,
		now:    time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithPolicy sets how missing periods are handled.
func (s *Service) WithPolicy(policy periods.Policy) {
	if policy != "" {
		s.policy = policy
	}
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// WithInvalidator attaches the report cache invalidator.
func (s *Service) WithInvalidator(c Invalidator) {
	s.cache = c
}

// OnPost registers a hook run inside every posting transaction.
func (s *Service) OnPost(hook PostHook) {
	if hook != nil {
		s.postHooks = append(s.postHooks, hook)
	}
}

// OnVoid registers a hook run inside every void transaction.
func (s *Service) OnVoid(hook VoidHook) {
	if hook != nil {
		s.voidHooks = append(s.voidHooks, hook)
	}
}

// Repository returns the transactional port the service posts through.
func (s *Service) Repository() RepositoryPort {
	return s.repo
}

// PostTransaction validates and atomically persists a transaction with its
// voucher, ledger entry and balance updates.
func (s *Service) PostTransaction(ctx context.Context, in PostingInput) (Posting, error) {
	if err := in.Validate(); err != nil {
		return Posting{}, err
	}
	start := s.now()
	var posted Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = s.PostInTx(ctx, tx, in)
		return err
	})
	s.Observe(ActionPost, start, err)
	if err != nil {
		return Posting{}, err
	}
	s.AfterCommit(ctx, ActionPost, posted.Transaction, in.ActorID, map[string]any{
		"number": posted.Transaction.Number,
		"type":   string(posted.Transaction.Type),
		"total":  posted.Transaction.Total.StringFixed(2),
	})
	return posted, nil
}

// PostInTx performs the posting inside a caller-owned transaction.
func (s *Service) PostInTx(ctx context.Context, tx TxRepository, in PostingInput) (Posting, error) {
	if err := in.Validate(); err != nil {
		return Posting{}, err
	}
	in.Number = strings.TrimSpace(in.Number)
	exists, err := tx.TransactionNumberExists(ctx, in.TenantID, in.Number)
	if err != nil {
		return Posting{}, shared.Integrity("check number", err)
	}
	if exists {
		return Posting{}, fmt.Errorf("%w: %s", shared.ErrDuplicatePosting, in.Number)
	}

	period, err := periods.ResolveForPosting(ctx, tx, in.TenantID, in.Date, s.policy)
	if err != nil {
		return Posting{}, shared.Integrity("resolve period", err)
	}

	ids := accountIDs(in.Lines)
	locked, err := tx.LockForPosting(ctx, in.TenantID, ids)
	if err != nil {
		return Posting{}, shared.Integrity("lock accounts", err)
	}
	for _, id := range ids {
		acc, ok := locked[id]
		if !ok {
			return Posting{}, fmt.Errorf("%w %d", shared.ErrAccountNotFound, id)
		}
		if err := acc.Postable(); err != nil {
			return Posting{}, fmt.Errorf("%w: %s", err, acc.Code)
		}
	}

	draft := buildVoucher(Transaction{TenantID: in.TenantID, Number: in.Number, Date: in.Date}, in.Lines)
	if !draft.TotalDebit.Equal(draft.TotalCredit) {
		return Posting{}, fmt.Errorf("%w: lines no longer balance (debit %s, credit %s)",
			shared.ErrIntegrity, draft.TotalDebit.StringFixed(2), draft.TotalCredit.StringFixed(2))
	}

	now := s.now()
	txn, err := tx.InsertTransaction(ctx, buildTransaction(in, draft.TotalDebit, now))
	if err != nil {
		return Posting{}, shared.Integrity("insert transaction", err)
	}
	draft.TransactionID = txn.ID
	voucher, err := tx.InsertVoucher(ctx, draft)
	if err != nil {
		return Posting{}, shared.Integrity("insert voucher", err)
	}
	entry, err := tx.InsertGLEntry(ctx, buildEntry(voucher, period.ID))
	if err != nil {
		return Posting{}, shared.Integrity("insert ledger entry", err)
	}
	if err := applyLines(ctx, tx, in.TenantID, entry.Lines, false); err != nil {
		return Posting{}, err
	}

	posted := Posting{Transaction: txn, Voucher: voucher, Entry: entry}
	for _, hook := range s.postHooks {
		if err := hook(ctx, tx, posted, in); err != nil {
			return Posting{}, shared.Integrity("post hook", err)
		}
	}
	return posted, nil
}

// VoidTransaction reverses a posted transaction's balance effect and marks
// its records void. No rows are deleted.
func (s *Service) VoidTransaction(ctx context.Context, in VoidInput) (Transaction, error) {
	if in.TenantID <= 0 || in.TransactionID <= 0 {
		return Transaction{}, fmt.Errorf("%w: tenant and transaction id required", shared.ErrValidation)
	}
	start := s.now()
	var voided Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		voided, err = s.VoidInTx(ctx, tx, in)
		return err
	})
	s.Observe(ActionVoid, start, err)
	if err != nil {
		return Transaction{}, err
	}
	s.AfterCommit(ctx, ActionVoid, voided, in.ActorID, map[string]any{
		"number": voided.Number,
		"reason": in.Reason,
	})
	return voided, nil
}

// VoidInTx performs the void inside a caller-owned transaction.
func (s *Service) VoidInTx(ctx context.Context, tx TxRepository, in VoidInput) (Transaction, error) {
	txn, err := tx.LockTransaction(ctx, in.TenantID, in.TransactionID)
	if err != nil {
		return Transaction{}, shared.Integrity("lock transaction", err)
	}
	if txn.IsVoid {
		return Transaction{}, fmt.Errorf("%w: %s", shared.ErrAlreadyVoid, txn.Number)
	}
	if !txn.IsPosted {
		return Transaction{}, fmt.Errorf("%w: %s", shared.ErrNotPosted, txn.Number)
	}
	period, err := tx.FindByMonth(ctx, in.TenantID, txn.Date.Year(), txn.Date.Month())
	if err != nil {
		return Transaction{}, shared.Integrity("load period", err)
	}
	if period.Status != periods.PeriodStatusOpen {
		return Transaction{}, fmt.Errorf("%w: %s", shared.ErrPeriodClosed, period.Code)
	}

	for _, hook := range s.voidHooks {
		if err := hook(ctx, tx, txn); err != nil {
			return Transaction{}, shared.Integrity("void hook", err)
		}
	}

	entry, err := tx.LoadGLEntry(ctx, in.TenantID, txn.ID)
	if err != nil {
		return Transaction{}, shared.Integrity("load ledger entry", err)
	}
	now := s.now()
	if err := tx.MarkTransactionVoid(ctx, in.TenantID, txn.ID, in.ActorID, in.Reason, now); err != nil {
		return Transaction{}, shared.Integrity("mark void", err)
	}
	ids := make([]int64, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		ids = append(ids, line.AccountID)
	}
	if _, err := tx.LockForPosting(ctx, in.TenantID, uniqueSorted(ids)); err != nil {
		return Transaction{}, shared.Integrity("lock accounts", err)
	}
	if err := applyLines(ctx, tx, in.TenantID, entry.Lines, true); err != nil {
		return Transaction{}, err
	}
	if err := tx.CancelPosting(ctx, in.TenantID, txn.ID); err != nil {
		return Transaction{}, shared.Integrity("cancel voucher", err)
	}

	actor := in.ActorID
	txn.IsVoid = true
	txn.VoidedAt = &now
	txn.VoidedBy = &actor
	txn.VoidReason = in.Reason
	return txn, nil
}

// GetTransaction returns a transaction with its voucher and ledger entry.
func (s *Service) GetTransaction(ctx context.Context, tenantID, id int64) (Posting, error) {
	return s.query.FindTransaction(ctx, tenantID, id)
}

// ListTransactions returns a page of transactions and the total match count.
func (s *Service) ListTransactions(ctx context.Context, tenantID int64, filter ListFilter, page, perPage int) ([]Transaction, int, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown transaction type %q", shared.ErrValidation, filter.Type)
	}
	p := core.NewPagination(page, perPage, 0)
	return s.query.ListTransactions(ctx, tenantID, filter, p.PerPage, p.Offset())
}

// CheckIntegrity lists unbalanced vouchers and drifted running balances.
func (s *Service) CheckIntegrity(ctx context.Context, tenantID int64) (IntegrityReport, error) {
	report := IntegrityReport{TenantID: tenantID, CheckedAt: s.now()}
	var err error
	if report.Unbalanced, err = s.query.UnbalancedVouchers(ctx, tenantID); err != nil {
		return IntegrityReport{}, err
	}
	if report.Drift, err = s.query.BalanceDrift(ctx, tenantID); err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

// AfterCommit runs the best-effort side effects of a committed unit of work.
func (s *Service) AfterCommit(ctx context.Context, action string, txn Transaction, actorID int64, meta map[string]any) {
	if s.audit != nil {
		err := s.audit.Record(ctx, core.AuditLog{
			TenantID: txn.TenantID,
			ActorID:  actorID,
			Action:   action,
			Entity:   "transaction",
			EntityID: strconv.FormatInt(txn.ID, 10),
			Meta:     meta,
			At:       s.now(),
		})
		if err != nil {
			s.logger.Warn("audit ledger event", slog.String("action", action), slog.Int64("transaction_id", txn.ID), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx, txn.TenantID); err != nil {
			s.logger.Warn("invalidate report cache", slog.Int64("tenant_id", txn.TenantID), slog.Any("error", err))
		}
	}
}

// Observe records the outcome of a unit of work started at start.
func (s *Service) Observe(action string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.ObservePosting(action, outcome, s.now().Sub(start))
}

// applyLines moves running balances once per ledger line, visiting lines in
// ascending account id order.
func applyLines(ctx context.Context, tx TxRepository, tenantID int64, lines []GLLine, reverse bool) error {
	ordered := slices.Clone(lines)
	slices.SortStableFunc(ordered, func(a, b GLLine) int {
		switch {
		case a.AccountID < b.AccountID:
			return -1
		case a.AccountID > b.AccountID:
			return 1
		}
		return 0
	})
	for _, line := range ordered {
		delta := line.Effect()
		if reverse {
			delta = delta.Neg()
		}
		if delta.IsZero() {
			continue
		}
		if _, err := tx.ApplyDelta(ctx, tenantID, line.AccountID, delta); err != nil {
			return shared.Integrity("apply balance delta", err)
		}
	}
	return nil
}

func accountIDs(lines []PostingLineInput) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	return uniqueSorted(ids)
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func buildTransaction(in PostingInput, total decimal.Decimal, now time.Time) Transaction {
	posted := now
	txn := Transaction{
		TenantID:      in.TenantID,
		Number:        in.Number,
		Date:          in.Date,
		Type:          in.Type,
		Description:   strings.TrimSpace(in.Description),
		Reference:     strings.TrimSpace(in.Reference),
		Total:         shared.Round2(total),
		PaymentStatus: PaymentUnpaid,
		IsPosted:      true,
		PostedAt:      &posted,
		CreatedBy:     in.ActorID,
		CreatedAt:     now,
	}
	if in.Counterparty != nil {
		id := in.Counterparty.ID
		txn.CounterpartyID = &id
	}
	for _, item := range in.Items {
		txn.Lines = append(txn.Lines, TransactionLine{
			AccountID:   item.AccountID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Subtotal:    item.Subtotal(),
		})
	}
	return txn
}

func buildVoucher(txn Transaction, lines []PostingLineInput) Voucher {
	v := Voucher{
		TenantID:      txn.TenantID,
		TransactionID: txn.ID,
		Number:        "JV-" + txn.Number,
		Date:          txn.Date,
		Status:        VoucherPosted,
		IsPosted:      true,
		Lines:         make([]VoucherLine, 0, len(lines)),
	}
	for idx, line := range lines {
		debit := shared.Round2(line.Debit)
		credit := shared.Round2(line.Credit)
		v.TotalDebit = v.TotalDebit.Add(debit)
		v.TotalCredit = v.TotalCredit.Add(credit)
		v.Lines = append(v.Lines, VoucherLine{
			Seq:       idx + 1,
			AccountID: line.AccountID,
			Debit:     debit,
			Credit:    credit,
			Memo:      line.Memo,
		})
	}
	return v
}

func buildEntry(v Voucher, periodID int64) GLEntry {
	e := GLEntry{
		TenantID:  v.TenantID,
		VoucherID: v.ID,
		PeriodID:  periodID,
		Date:      v.Date,
		IsPosted:  true,
		Lines:     make([]GLLine, 0, len(v.Lines)),
	}
	for _, line := range v.Lines {
		e.Lines = append(e.Lines, GLLine{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      line.Memo,
		})
	}
	return e
}
