package memory

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var _ httpx.IdempotencyStore = (*Store)(nil)

// Record implements the audit port.
func (s *Store) Record(ctx context.Context, log core.AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.At.IsZero() {
		log.At = s.st.now()
	}
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns the recorded audit entries of the tenant.
func (s *Store) AuditLogs(tenantID int64) []core.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(s.audit), func(l core.AuditLog) bool { return l.TenantID != tenantID })
}

// AuditTimeline implements audit.Repository. Entries are numbered in
// recording order.
func (s *Store) AuditTimeline(ctx context.Context, q audit.Query) ([]audit.TimelineRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []audit.TimelineRow
	for i := len(s.audit) - 1; i >= 0; i-- {
		l := s.audit[i]
		switch {
		case l.TenantID != q.TenantID,
			!q.From.IsZero() && l.At.Before(q.From),
			!q.To.IsZero() && !l.At.Before(q.To),
			q.ActorID != nil && l.ActorID != *q.ActorID,
			q.Entity != "" && l.Entity != q.Entity,
			q.EntityID != "" && l.EntityID != q.EntityID,
			q.Action != "" && l.Action != q.Action:
			continue
		}
		rows = append(rows, audit.TimelineRow{
			ID:       int64(i + 1),
			At:       l.At,
			ActorID:  l.ActorID,
			Action:   l.Action,
			Entity:   l.Entity,
			EntityID: l.EntityID,
			Meta:     l.Meta,
		})
	}
	slices.SortStableFunc(rows, func(a, b audit.TimelineRow) int { return b.At.Compare(a.At) })
	if q.Offset >= len(rows) {
		return nil, nil
	}
	rows = rows[q.Offset:]
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// Begin implements httpx.IdempotencyStore.
func (s *Store) Begin(ctx context.Context, tenantID int64, key, module, fingerprint string) (*core.IdempotentResponse, error) {
	if key == "" {
		return nil, errors.New("idempotency key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idempotencyKey{tenantID, key, module}
	rec, ok := s.idempotency[k]
	if !ok {
		s.idempotency[k] = idempotencyRecord{fingerprint: fingerprint, createdAt: s.st.now()}
		return nil, nil
	}
	if rec.fingerprint != fingerprint {
		return nil, core.ErrIdempotencyMismatch
	}
	if rec.response == nil {
		return nil, core.ErrIdempotencyConflict
	}
	resp := *rec.response
	return &resp, nil
}

// Complete implements httpx.IdempotencyStore.
func (s *Store) Complete(ctx context.Context, tenantID int64, key, module string, resp core.IdempotentResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idempotencyKey{tenantID, key, module}
	rec, ok := s.idempotency[k]
	if !ok {
		return nil
	}
	resp.Body = slices.Clone(resp.Body)
	rec.response = &resp
	s.idempotency[k] = rec
	return nil
}

// Delete implements httpx.IdempotencyStore.
func (s *Store) Delete(ctx context.Context, tenantID int64, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, idempotencyKey{tenantID, key, module})
	return nil
}

// Cleanup removes idempotency keys older than retention.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.st.now().Add(-olderThan)
	var removed int64
	for k, rec := range s.idempotency {
		if rec.createdAt.Before(cutoff) {
			delete(s.idempotency, k)
			removed++
		}
	}
	return removed, nil
}
