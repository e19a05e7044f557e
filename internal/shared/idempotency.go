package shared

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"

	ledgererr "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var (
	// ErrIdempotencyConflict indicates a duplicate key still being processed.
	ErrIdempotencyConflict = fmt.Errorf("%w: idempotent request already in progress", ledgererr.ErrConflict)
	// ErrIdempotencyMismatch indicates the key was reused with another payload.
	ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different request", ledgererr.ErrConflict)
)

// IdempotentResponse is the stored outcome of a completed request.
type IdempotentResponse struct {
	Status int
	Body   []byte
}

// Fingerprint hashes a request payload so key reuse can be detected.
func Fingerprint(module string, body []byte) string {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(module))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Begin claims key for the tenant and module. When the key was already
// completed with the same fingerprint the stored response is returned.
func (s *IdempotencyStore) Begin(ctx context.Context, tenantID int64, key, module, fingerprint string) (*IdempotentResponse, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return nil, errors.New("idempotency key required")
	}
	if module == "" {
		return nil, errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (tenant_id, key, module, fingerprint, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tenantID, key, module, fingerprint, time.Now())
	if err == nil {
		return nil, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil, err
	}
	var storedFingerprint string
	var status *int
	var body []byte
	err = s.pool.QueryRow(ctx, `SELECT fingerprint, response_status, response_body FROM idempotency_keys WHERE tenant_id=$1 AND key=$2 AND module=$3`,
		tenantID, key, module).Scan(&storedFingerprint, &status, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdempotencyConflict
		}
		return nil, err
	}
	if storedFingerprint != fingerprint {
		return nil, ErrIdempotencyMismatch
	}
	if status == nil {
		return nil, ErrIdempotencyConflict
	}
	return &IdempotentResponse{Status: *status, Body: body}, nil
}

// Complete stores the response produced for key.
func (s *IdempotencyStore) Complete(ctx context.Context, tenantID int64, key, module string, resp IdempotentResponse) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET response_status=$4, response_body=$5 WHERE tenant_id=$1 AND key=$2 AND module=$3`,
		tenantID, key, module, resp.Status, resp.Body)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, tenantID int64, key, module string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE tenant_id=$1 AND key=$2 AND module=$3`, tenantID, key, module)
	return err
}
