package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// balanceQuery aggregates posted ledger lines per account. $2 is the optional
// range start and $3 the inclusive range end.
const balanceQuery = `SELECT a.id, a.code, a.name, a.type, a.normal_side,
	a.opening_balance + COALESCE(SUM(l.debit - l.credit) FILTER (WHERE e.id IS NOT NULL AND $2::date IS NOT NULL AND e.date < $2::date), 0),
	COALESCE(SUM(l.debit) FILTER (WHERE e.id IS NOT NULL AND ($2::date IS NULL OR e.date >= $2::date)), 0),
	COALESCE(SUM(l.credit) FILTER (WHERE e.id IS NOT NULL AND ($2::date IS NULL OR e.date >= $2::date)), 0)
FROM accounts a
LEFT JOIN gl_lines l ON l.account_id = a.id AND l.tenant_id = a.tenant_id
LEFT JOIN gl_entries e ON e.id = l.entry_id AND e.is_posted AND e.date <= $3::date
WHERE a.tenant_id = $1 AND NOT a.is_header`

// Repository aggregates balances from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func rangeStart(r Range) *time.Time {
	if r.From.IsZero() {
		return nil
	}
	from := r.From
	return &from
}

func scanBalance(row pgx.Row) (AccountBalance, error) {
	var b AccountBalance
	err := row.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.NormalSide, &b.Opening, &b.Debit, &b.Credit)
	return b, err
}

// Balances implements Store.
func (r *Repository) Balances(ctx context.Context, tenantID int64, rg Range) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, balanceQuery+` GROUP BY a.id ORDER BY a.code`, tenantID, rangeStart(rg), rg.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AccountBalance, error) {
		return scanBalance(row)
	})
}

// AccountBalance implements Store.
func (r *Repository) AccountBalance(ctx context.Context, tenantID, accountID int64, rg Range) (AccountBalance, error) {
	b, err := scanBalance(r.pool.QueryRow(ctx, balanceQuery+` AND a.id = $4 GROUP BY a.id`, tenantID, rangeStart(rg), rg.To, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountBalance{}, fmt.Errorf("%w %d", shared.ErrAccountNotFound, accountID)
	}
	return b, err
}
