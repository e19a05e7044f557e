package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes the operations available inside a posting unit of
// work. Implementations must run every call on the same transaction.
type TxRepository interface {
	accounts.LedgerStore
	periods.TxStore
	mappings.TxStore

	TransactionNumberExists(ctx context.Context, tenantID int64, number string) (bool, error)
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	InsertGLEntry(ctx context.Context, e GLEntry) (GLEntry, error)
	LockTransaction(ctx context.Context, tenantID, id int64) (Transaction, error)
	LoadGLEntry(ctx context.Context, tenantID, transactionID int64) (GLEntry, error)
	MarkTransactionVoid(ctx context.Context, tenantID, id, actorID int64, reason string, at time.Time) error
	CancelPosting(ctx context.Context, tenantID, transactionID int64) error
	SetPaymentStatus(ctx context.Context, tenantID, id int64, status PaymentStatus) error
}

const transactionColumns = `id, tenant_id, number, date, type, description, reference, total, payment_status, is_posted, posted_at,
is_void, voided_at, voided_by, COALESCE(void_reason, ''), counterparty_id, created_by, created_at`

// Repository persists ledger transactions in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	q        db.DBTX
	accounts *accounts.Repository
	periods  *periods.Repository
	mappings *mappings.Repository
}

// NewTxRepository binds the ledger operations to q, normally a pgx.Tx.
func NewTxRepository(q db.DBTX) TxRepository {
	return &txRepository{
		q:        q,
		accounts: accounts.NewRepository(q),
		periods:  periods.NewRepository(q),
		mappings: mappings.NewRepository(q),
	}
}

func (r *txRepository) LockForPosting(ctx context.Context, tenantID int64, ids []int64) (map[int64]accounts.Account, error) {
	return r.accounts.LockForPosting(ctx, tenantID, ids)
}

func (r *txRepository) ApplyDelta(ctx context.Context, tenantID, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return r.accounts.ApplyDelta(ctx, tenantID, id, amount)
}

func (r *txRepository) FirstByCategory(ctx context.Context, tenantID int64, category string) (accounts.Account, error) {
	return r.accounts.FirstByCategory(ctx, tenantID, category)
}

func (r *txRepository) FindByMonth(ctx context.Context, tenantID int64, year int, month time.Month) (periods.Period, error) {
	return r.periods.FindByMonth(ctx, tenantID, year, month)
}

func (r *txRepository) EnsurePeriod(ctx context.Context, p periods.Period) (periods.Period, error) {
	return r.periods.EnsurePeriod(ctx, p)
}

func (r *txRepository) GetMapping(ctx context.Context, tenantID int64, module, key string) (mappings.AccountMapping, error) {
	return r.mappings.GetMapping(ctx, tenantID, module, key)
}

func (r *txRepository) TransactionNumberExists(ctx context.Context, tenantID int64, number string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE tenant_id=$1 AND number=$2)`, tenantID, number).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO transactions (tenant_id, number, date, type, description, reference, total, payment_status,
is_posted, posted_at, counterparty_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		txn.TenantID, txn.Number, txn.Date, txn.Type, txn.Description, txn.Reference, txn.Total, txn.PaymentStatus,
		txn.IsPosted, txn.PostedAt, txn.CounterpartyID, txn.CreatedBy, txn.CreatedAt).Scan(&txn.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_transactions_number") {
			return Transaction{}, fmt.Errorf("%w: %s", shared.ErrDuplicatePosting, txn.Number)
		}
		if db.IsForeignKeyViolation(err, "fk_transactions_counterparty") {
			return Transaction{}, fmt.Errorf("%w %d", shared.ErrCounterpartyNotFound, derefInt(txn.CounterpartyID))
		}
		return Transaction{}, err
	}
	for i := range txn.Lines {
		line := &txn.Lines[i]
		line.TransactionID = txn.ID
		if err := r.q.QueryRow(ctx, `INSERT INTO transaction_lines (transaction_id, account_id, description, quantity, unit_price, discount, subtotal)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			txn.ID, line.AccountID, line.Description, line.Quantity, line.UnitPrice, line.Discount, line.Subtotal).Scan(&line.ID); err != nil {
			return Transaction{}, err
		}
	}
	return txn, nil
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO vouchers (tenant_id, transaction_id, number, date, total_debit, total_credit, status, is_posted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		v.TenantID, v.TransactionID, v.Number, v.Date, v.TotalDebit, v.TotalCredit, v.Status, v.IsPosted).Scan(&v.ID)
	if err != nil {
		return Voucher{}, err
	}
	for i := range v.Lines {
		line := &v.Lines[i]
		line.VoucherID = v.ID
		if err := r.q.QueryRow(ctx, `INSERT INTO voucher_lines (voucher_id, seq, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			v.ID, line.Seq, line.AccountID, line.Debit, line.Credit, line.Memo).Scan(&line.ID); err != nil {
			return Voucher{}, err
		}
	}
	return v, nil
}

func (r *txRepository) InsertGLEntry(ctx context.Context, e GLEntry) (GLEntry, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO gl_entries (tenant_id, voucher_id, period_id, date, is_posted)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, e.TenantID, e.VoucherID, e.PeriodID, e.Date, e.IsPosted).Scan(&e.ID)
	if err != nil {
		return GLEntry{}, err
	}
	for i := range e.Lines {
		line := &e.Lines[i]
		line.EntryID = e.ID
		if err := r.q.QueryRow(ctx, `INSERT INTO gl_lines (entry_id, tenant_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			e.ID, e.TenantID, line.AccountID, line.Debit, line.Credit, line.Memo).Scan(&line.ID); err != nil {
			return GLEntry{}, err
		}
	}
	return e, nil
}

func (r *txRepository) LockTransaction(ctx context.Context, tenantID, id int64) (Transaction, error) {
	txn, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w %d", shared.ErrTransactionNotFound, id)
	}
	return txn, err
}

func (r *txRepository) LoadGLEntry(ctx context.Context, tenantID, transactionID int64) (GLEntry, error) {
	return loadEntry(ctx, r.q, tenantID, transactionID)
}

func (r *txRepository) MarkTransactionVoid(ctx context.Context, tenantID, id, actorID int64, reason string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE transactions SET is_void=TRUE, voided_at=$3, voided_by=$4, void_reason=NULLIF($5,'')
WHERE tenant_id=$1 AND id=$2 AND NOT is_void`, tenantID, id, at, nullInt(actorID), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyVoid
	}
	return nil
}

func (r *txRepository) CancelPosting(ctx context.Context, tenantID, transactionID int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE vouchers SET status=$3, is_posted=FALSE WHERE tenant_id=$1 AND transaction_id=$2`,
		tenantID, transactionID, VoucherCancelled); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `UPDATE gl_entries SET is_posted=FALSE
WHERE tenant_id=$1 AND voucher_id IN (SELECT id FROM vouchers WHERE tenant_id=$1 AND transaction_id=$2)`, tenantID, transactionID)
	return err
}

func (r *txRepository) SetPaymentStatus(ctx context.Context, tenantID, id int64, status PaymentStatus) error {
	tag, err := r.q.Exec(ctx, `UPDATE transactions SET payment_status=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", shared.ErrTransactionNotFound, id)
	}
	return nil
}

// FindTransaction loads the full record chain of a transaction.
func (r *Repository) FindTransaction(ctx context.Context, tenantID, id int64) (Posting, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, fmt.Errorf("%w %d", shared.ErrTransactionNotFound, id)
		}
		return Posting{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, account_id, description, quantity, unit_price, discount, subtotal
FROM transaction_lines WHERE transaction_id=$1 ORDER BY id`, txn.ID)
	if err != nil {
		return Posting{}, err
	}
	txn.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (TransactionLine, error) {
		var l TransactionLine
		err := row.Scan(&l.ID, &l.TransactionID, &l.AccountID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Discount, &l.Subtotal)
		return l, err
	})
	if err != nil {
		return Posting{}, err
	}
	voucher, err := loadVoucher(ctx, r.pool, tenantID, txn.ID)
	if err != nil {
		return Posting{}, err
	}
	entry, err := loadEntry(ctx, r.pool, tenantID, txn.ID)
	if err != nil {
		return Posting{}, err
	}
	return Posting{Transaction: txn, Voucher: voucher, Entry: entry}, nil
}

// ListTransactions returns a filtered page of transactions and the total count.
func (r *Repository) ListTransactions(ctx context.Context, tenantID int64, filter ListFilter, limit, offset int) ([]Transaction, int, error) {
	where := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if !filter.IncludeVoid {
		where = append(where, "NOT is_void")
	}
	args = append(args, limit, offset)
	query := `SELECT ` + transactionColumns + `, COUNT(*) OVER() FROM transactions WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		out   []Transaction
		total int
	)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(append(transactionTargets(&t), &total)...); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// UnbalancedVouchers lists posted vouchers whose lines do not net to zero.
func (r *Repository) UnbalancedVouchers(ctx context.Context, tenantID int64) ([]VoucherImbalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT v.id, v.number, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM vouchers v LEFT JOIN voucher_lines l ON l.voucher_id = v.id
WHERE v.tenant_id=$1 AND v.is_posted
GROUP BY v.id, v.number
HAVING ABS(COALESCE(SUM(l.debit),0) - COALESCE(SUM(l.credit),0)) >= 0.01
ORDER BY v.id`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VoucherImbalance, error) {
		var v VoucherImbalance
		err := row.Scan(&v.VoucherID, &v.Number, &v.TotalDebit, &v.TotalCredit)
		return v, err
	})
}

// BalanceDrift lists accounts whose running balance differs from opening
// balance plus posted ledger lines.
func (r *Repository) BalanceDrift(ctx context.Context, tenantID int64) ([]BalanceDrift, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.balance, a.opening_balance + COALESCE(p.net, 0)
FROM accounts a
LEFT JOIN (
	SELECT l.account_id, SUM(l.debit - l.credit) AS net
	FROM gl_lines l JOIN gl_entries e ON e.id = l.entry_id
	WHERE e.tenant_id=$1 AND e.is_posted
	GROUP BY l.account_id
) p ON p.account_id = a.id
WHERE a.tenant_id=$1 AND a.balance <> a.opening_balance + COALESCE(p.net, 0)
ORDER BY a.code`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BalanceDrift, error) {
		var d BalanceDrift
		err := row.Scan(&d.AccountID, &d.Code, &d.Stored, &d.Expected)
		return d, err
	})
}

func transactionTargets(t *Transaction) []any {
	return []any{&t.ID, &t.TenantID, &t.Number, &t.Date, &t.Type, &t.Description, &t.Reference, &t.Total, &t.PaymentStatus,
		&t.IsPosted, &t.PostedAt, &t.IsVoid, &t.VoidedAt, &t.VoidedBy, &t.VoidReason, &t.CounterpartyID, &t.CreatedBy, &t.CreatedAt}
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(transactionTargets(&t)...)
	return t, err
}

func loadVoucher(ctx context.Context, q db.DBTX, tenantID, transactionID int64) (Voucher, error) {
	var v Voucher
	err := q.QueryRow(ctx, `SELECT id, tenant_id, transaction_id, number, date, total_debit, total_credit, status, is_posted
FROM vouchers WHERE tenant_id=$1 AND transaction_id=$2`, tenantID, transactionID).
		Scan(&v.ID, &v.TenantID, &v.TransactionID, &v.Number, &v.Date, &v.TotalDebit, &v.TotalCredit, &v.Status, &v.IsPosted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, fmt.Errorf("%w: voucher for transaction %d", shared.ErrIntegrity, transactionID)
		}
		return Voucher{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, voucher_id, seq, account_id, debit, credit, COALESCE(memo, '')
FROM voucher_lines WHERE voucher_id=$1 ORDER BY seq`, v.ID)
	if err != nil {
		return Voucher{}, err
	}
	v.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (VoucherLine, error) {
		var l VoucherLine
		err := row.Scan(&l.ID, &l.VoucherID, &l.Seq, &l.AccountID, &l.Debit, &l.Credit, &l.Memo)
		return l, err
	})
	return v, err
}

func loadEntry(ctx context.Context, q db.DBTX, tenantID, transactionID int64) (GLEntry, error) {
	var e GLEntry
	err := q.QueryRow(ctx, `SELECT e.id, e.tenant_id, e.voucher_id, e.period_id, e.date, e.is_posted
FROM gl_entries e JOIN vouchers v ON v.id = e.voucher_id
WHERE e.tenant_id=$1 AND v.transaction_id=$2`, tenantID, transactionID).
		Scan(&e.ID, &e.TenantID, &e.VoucherID, &e.PeriodID, &e.Date, &e.IsPosted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GLEntry{}, fmt.Errorf("%w: ledger entry for transaction %d", shared.ErrIntegrity, transactionID)
		}
		return GLEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, COALESCE(memo, '')
FROM gl_lines WHERE entry_id=$1 ORDER BY id`, e.ID)
	if err != nil {
		return GLEntry{}, err
	}
	e.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (GLLine, error) {
		var l GLLine
		err := row.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Memo)
		return l, err
	})
	return e, err
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func derefInt(val *int64) int64 {
	if val == nil {
		return 0
	}
	return *val
}
