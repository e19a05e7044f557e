package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const accountColumns = `id, tenant_id, code, name, type, normal_side, parent_id, level, is_header, COALESCE(category, ''), opening_balance, balance, is_active, created_at, updated_at`

// Repository persists chart of accounts rows. It runs against a pool or
// inside a caller-owned transaction.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(q db.DBTX) *Repository {
	return &Repository{db: q}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &a.ParentID, &a.Level,
		&a.IsHeader, &a.Category, &a.OpeningBalance, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get loads an account by id.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, err
}

// GetByCode loads an account by its tenant-unique code.
func (r *Repository) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: code %s", shared.ErrAccountNotFound, code)
	}
	return a, err
}

// List returns every account of the tenant ordered by code.
func (r *Repository) List(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// Insert stores a new account. Balance starts at the opening balance.
func (r *Repository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, normal_side, parent_id, level, is_header, category, opening_balance, balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$10,$11)
RETURNING `+accountColumns,
		a.TenantID, a.Code, a.Name, a.Type, a.NormalSide, a.ParentID, a.Level, a.IsHeader, a.Category, a.OpeningBalance, a.IsActive)
	inserted, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_tenant_code") {
			return Account{}, shared.ErrDuplicateCode
		}
		return Account{}, err
	}
	return inserted, nil
}

// Delete removes an account that has no ledger lines and no children.
func (r *Repository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return shared.ErrAccountInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

// HasLedgerLines reports whether any ledger line references the account.
func (r *Repository) HasLedgerLines(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_lines WHERE tenant_id=$1 AND account_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

// HasChildren reports whether any account names id as its parent.
func (r *Repository) HasChildren(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, tenantID, id int64, active bool) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2 RETURNING `+accountColumns, tenantID, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, err
}

// LockForPosting loads the referenced accounts and row-locks them in id
// order. Missing ids are simply absent from the result.
func (r *Repository) LockForPosting(ctx context.Context, tenantID int64, ids []int64) (map[int64]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY id FOR NO KEY UPDATE`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	list, err := collectAccounts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Account, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

// ApplyDelta atomically adds amount to the running balance and returns the
// new balance.
func (r *Repository) ApplyDelta(ctx context.Context, tenantID, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `UPDATE accounts SET balance = balance + $3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2 RETURNING balance`, tenantID, id, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, shared.ErrAccountNotFound
	}
	return balance, err
}

// FirstByCategory returns the lowest-coded active posting account carrying category.
func (r *Repository) FirstByCategory(ctx context.Context, tenantID int64, category string) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE tenant_id=$1 AND category=$2 AND is_active AND NOT is_header ORDER BY code LIMIT 1`, tenantID, category))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: category %s", shared.ErrAccountNotFound, category)
	}
	return a, err
}
