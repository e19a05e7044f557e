package subledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const documentColumns = `id, tenant_id, kind, transaction_id, counterparty_id, number, amount, paid, remaining, issue_date, due_date, status, created_at, updated_at`

const paymentColumns = `id, tenant_id, document_id, transaction_id, amount, date, method, COALESCE(reference, ''), created_by, voided_at, created_at`

// Repository persists subledger rows in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a ledger transaction carrying subledger support.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("subledger repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: accounting.NewTxRepository(tx), q: tx})
	})
}

type txRepository struct {
	accounting.TxRepository
	q db.DBTX
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.TenantID, &d.Kind, &d.TransactionID, &d.CounterpartyID, &d.Number, &d.Amount, &d.Paid,
		&d.Remaining, &d.IssueDate, &d.DueDate, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.DocumentID, &p.TransactionID, &p.Amount, &p.Date, &p.Method, &p.Reference,
		&p.CreatedBy, &p.VoidedAt, &p.CreatedAt)
	return p, err
}

func (r *txRepository) GetCounterparty(ctx context.Context, tenantID, id int64) (Counterparty, error) {
	return getCounterparty(ctx, r.q, tenantID, id)
}

func (r *txRepository) InsertDocument(ctx context.Context, d Document) (Document, error) {
	inserted, err := scanDocument(r.q.QueryRow(ctx, `INSERT INTO subledger_documents
(tenant_id, kind, transaction_id, counterparty_id, number, amount, paid, remaining, issue_date, due_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+documentColumns,
		d.TenantID, d.Kind, d.TransactionID, d.CounterpartyID, d.Number, d.Amount, d.Paid, d.Remaining, d.IssueDate, d.DueDate, d.Status))
	if err != nil {
		if db.IsForeignKeyViolation(err, "fk_documents_counterparty") {
			return Document{}, fmt.Errorf("%w %d", shared.ErrCounterpartyNotFound, d.CounterpartyID)
		}
		return Document{}, err
	}
	return inserted, nil
}

func (r *txRepository) LockDocument(ctx context.Context, tenantID, id int64) (Document, error) {
	d, err := scanDocument(r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM subledger_documents WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w %d", shared.ErrDocumentNotFound, id)
	}
	return d, err
}

func (r *txRepository) LockDocumentByTransaction(ctx context.Context, tenantID, transactionID int64) (Document, error) {
	d, err := scanDocument(r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM subledger_documents WHERE tenant_id=$1 AND transaction_id=$2 FOR UPDATE`, tenantID, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w for transaction %d", shared.ErrDocumentNotFound, transactionID)
	}
	return d, err
}

func (r *txRepository) UpdateDocument(ctx context.Context, d Document) error {
	tag, err := r.q.Exec(ctx, `UPDATE subledger_documents SET paid=$3, remaining=$4, status=$5, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		d.TenantID, d.ID, d.Paid, d.Remaining, d.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", shared.ErrDocumentNotFound, d.ID)
	}
	return nil
}

func (r *txRepository) CountPayments(ctx context.Context, tenantID, documentID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE tenant_id=$1 AND document_id=$2 AND voided_at IS NULL`, tenantID, documentID).Scan(&n)
	return n, err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.q.QueryRow(ctx, `INSERT INTO payments (tenant_id, document_id, transaction_id, amount, date, method, reference, created_by)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8) RETURNING `+paymentColumns,
		p.TenantID, p.DocumentID, p.TransactionID, p.Amount, p.Date, p.Method, p.Reference, p.CreatedBy))
}

func (r *txRepository) PaymentByTransaction(ctx context.Context, tenantID, transactionID int64) (Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND transaction_id=$2`, tenantID, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("%w: payment for transaction %d", shared.ErrNotFound, transactionID)
	}
	return p, err
}

func (r *txRepository) VoidPayment(ctx context.Context, tenantID, id int64, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE payments SET voided_at=$3 WHERE tenant_id=$1 AND id=$2 AND voided_at IS NULL`, tenantID, id, at)
	return err
}

func getCounterparty(ctx context.Context, q db.DBTX, tenantID, id int64) (Counterparty, error) {
	var c Counterparty
	err := q.QueryRow(ctx, `SELECT id, tenant_id, kind, name, created_at FROM counterparties WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&c.ID, &c.TenantID, &c.Kind, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counterparty{}, fmt.Errorf("%w %d", shared.ErrCounterpartyNotFound, id)
	}
	return c, err
}

// InsertCounterparty stores a customer or supplier.
func (r *Repository) InsertCounterparty(ctx context.Context, c Counterparty) (Counterparty, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO counterparties (tenant_id, kind, name) VALUES ($1,$2,$3) RETURNING id, created_at`,
		c.TenantID, c.Kind, c.Name).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

// ListCounterparties returns counterparties ordered by name.
func (r *Repository) ListCounterparties(ctx context.Context, tenantID int64, kind CounterpartyKind) ([]Counterparty, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, kind, name, created_at FROM counterparties
WHERE tenant_id=$1 AND ($2 = '' OR kind=$2) ORDER BY name, id`, tenantID, string(kind))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Counterparty, error) {
		var c Counterparty
		err := row.Scan(&c.ID, &c.TenantID, &c.Kind, &c.Name, &c.CreatedAt)
		return c, err
	})
}

// FindDocument loads a document by id.
func (r *Repository) FindDocument(ctx context.Context, tenantID, id int64) (Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM subledger_documents WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w %d", shared.ErrDocumentNotFound, id)
	}
	return d, err
}

// ListDocuments returns documents matching filter ordered by due date.
func (r *Repository) ListDocuments(ctx context.Context, tenantID int64, filter DocumentFilter) ([]Document, error) {
	where := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.CounterpartyID > 0 {
		args = append(args, filter.CounterpartyID)
		where = append(where, fmt.Sprintf("counterparty_id=$%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM subledger_documents WHERE `+strings.Join(where, " AND ")+` ORDER BY due_date, id`, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		return scanDocument(row)
	})
}

// ListPayments returns the payments of a document in date order.
func (r *Repository) ListPayments(ctx context.Context, tenantID, documentID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND document_id=$2 ORDER BY date, id`, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		return scanPayment(row)
	})
}
