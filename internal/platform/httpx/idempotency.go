package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

const maxBody = 1 << 20

// IdempotencyStore persists outcomes keyed by Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, tenantID int64, key, module, fingerprint string) (*shared.IdempotentResponse, error)
	Complete(ctx context.Context, tenantID int64, key, module string, resp shared.IdempotentResponse) error
	Delete(ctx context.Context, tenantID int64, key, module string) error
}

// HandlerFunc produces a status and JSON payload for a buffered request.
type HandlerFunc func(r *http.Request) (int, any, error)

// Idempotent runs handle at most once per tenant, module and
// Idempotency-Key. A completed key replays the stored response; a key reused
// with another body is a conflict. Without a key or store handle runs
// directly. The response is always written; the returned error is for logging.
func Idempotent(w http.ResponseWriter, r *http.Request, store IdempotencyStore, module string, handle HandlerFunc) error {
	key := r.Header.Get(IdempotencyHeader)
	if key == "" || store == nil {
		status, payload, err := handle(r)
		if err != nil {
			RespondError(w, err)
			return err
		}
		JSON(w, status, payload)
		return nil
	}
	id, err := Identity(r)
	if err != nil {
		RespondError(w, err)
		return err
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		err = fmt.Errorf("%w: read body: %v", ErrBadRequest, err)
		RespondError(w, err)
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	stored, err := store.Begin(r.Context(), id.TenantID, key, module, shared.Fingerprint(module, body))
	if err != nil {
		RespondError(w, err)
		return err
	}
	if stored != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
		return nil
	}

	status, payload, err := handle(r)
	if err != nil {
		_ = store.Delete(context.WithoutCancel(r.Context()), id.TenantID, key, module)
		RespondError(w, err)
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		_ = store.Delete(context.WithoutCancel(r.Context()), id.TenantID, key, module)
		RespondError(w, err)
		return err
	}
	if err := store.Complete(context.WithoutCancel(r.Context()), id.TenantID, key, module, shared.IdempotentResponse{Status: status, Body: encoded}); err != nil {
		return writeRaw(w, status, encoded, err)
	}
	return writeRaw(w, status, encoded, nil)
}

func writeRaw(w http.ResponseWriter, status int, body []byte, err error) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return err
}
