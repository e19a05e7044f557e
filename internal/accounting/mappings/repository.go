package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists account mappings against a pool or a transaction.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(q db.DBTX) *Repository {
	return &Repository{db: q}
}

// GetMapping resolves an account mapping for the specified key.
func (r *Repository) GetMapping(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, fmt.Errorf("%w: module and key required", shared.ErrValidation)
	}
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT tenant_id, module, key, account_id, created_at, updated_at FROM account_mappings
WHERE tenant_id=$1 AND module=$2 AND key=$3`, tenantID, strings.ToUpper(module), key).
		Scan(&m.TenantID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w %s/%s", shared.ErrMappingNotFound, module, key)
		}
		return AccountMapping{}, err
	}
	return m, nil
}

// UpsertMapping creates or repoints a mapping.
func (r *Repository) UpsertMapping(ctx context.Context, m AccountMapping) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (tenant_id, module, key, account_id) VALUES ($1,$2,$3,$4)
ON CONFLICT (tenant_id, module, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`,
		m.TenantID, strings.ToUpper(m.Module), m.Key, m.AccountID)
	return err
}

// ListMappings returns every mapping of the tenant.
func (r *Repository) ListMappings(ctx context.Context, tenantID int64) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT tenant_id, module, key, account_id, created_at, updated_at FROM account_mappings
WHERE tenant_id=$1 ORDER BY module, key`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.TenantID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
