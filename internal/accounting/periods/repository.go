package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const periodColumns = `id, tenant_id, year, month, code, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`

// Repository persists accounting periods against a pool or a transaction.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(q db.DBTX) *Repository {
	return &Repository{db: q}
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var month int
	err := row.Scan(&p.ID, &p.TenantID, &p.Year, &month, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	p.Month = time.Month(month)
	return p, err
}

// FindByMonth returns the tenant's period for year/month holding a share lock
// so the period cannot be closed until the caller's transaction ends.
func (r *Repository) FindByMonth(ctx context.Context, tenantID int64, year int, month time.Month) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE tenant_id=$1 AND year=$2 AND month=$3 FOR SHARE`, tenantID, year, int(month)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, err
}

// EnsurePeriod inserts p unless the month already exists and returns the stored row.
func (r *Repository) EnsurePeriod(ctx context.Context, p Period) (Period, error) {
	_, err := r.db.Exec(ctx, `INSERT INTO periods (tenant_id, year, month, code, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT ON CONSTRAINT uq_periods_tenant_month DO NOTHING`,
		p.TenantID, p.Year, int(p.Month), p.Code, p.StartDate, p.EndDate, p.Status)
	if err != nil {
		return Period{}, err
	}
	return r.FindByMonth(ctx, p.TenantID, p.Year, p.Month)
}

// Get loads a period by id.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, err
}

// List returns the tenant's periods, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods WHERE tenant_id=$1 ORDER BY year DESC, month DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatus moves the period from one status to another. The update waits
// for postings that share-locked the row and fails with ErrInvalidStatus when
// the status changed concurrently.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id int64, from, to PeriodStatus, actorID int64, at time.Time) (Period, error) {
	var closedAt *time.Time
	var closedBy *int64
	if to == PeriodStatusClosed {
		closedAt = &at
		closedBy = &actorID
	}
	p, err := scanPeriod(r.db.QueryRow(ctx, `UPDATE periods SET status=$4, closed_at=$5, closed_by=$6, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status=$3 RETURNING `+periodColumns, tenantID, id, from, to, closedAt, closedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrInvalidStatus
	}
	return p, err
}

// Tenants lists every tenant that owns a chart of accounts.
func (r *Repository) Tenants(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
