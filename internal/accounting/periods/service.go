package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxStore is the period persistence used inside a posting unit of work.
type TxStore interface {
	FindByMonth(ctx context.Context, tenantID int64, year int, month time.Month) (Period, error)
	EnsurePeriod(ctx context.Context, p Period) (Period, error)
}

// Store is the persistence port used by Service.
type Store interface {
	TxStore
	Get(ctx context.Context, tenantID, id int64) (Period, error)
	List(ctx context.Context, tenantID int64) ([]Period, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, from, to PeriodStatus, actorID int64, at time.Time) (Period, error)
	Tenants(ctx context.Context) ([]int64, error)
}

// ResolveForPosting returns the OPEN period covering date, creating it when
// policy allows. A CLOSED period rejects the posting.
func ResolveForPosting(ctx context.Context, store TxStore, tenantID int64, date time.Time, policy Policy) (Period, error) {
	p, err := store.FindByMonth(ctx, tenantID, date.Year(), date.Month())
	if errors.Is(err, shared.ErrPeriodNotFound) {
		if policy == PolicyStrict {
			return Period{}, fmt.Errorf("%w for %s", shared.ErrPeriodNotFound, date.Format("2006-01"))
		}
		p, err = store.EnsurePeriod(ctx, MonthPeriod(tenantID, date))
	}
	if err != nil {
		return Period{}, err
	}
	if p.Status != PeriodStatusOpen {
		return Period{}, fmt.Errorf("%w: %s", shared.ErrPeriodClosed, p.Code)
	}
	return p, nil
}

// AuditPort records period changes.
type AuditPort interface {
	Record(ctx context.Context, log core.AuditLog) error
}

// Service exposes period administration.
type Service struct {
	repo   Store
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the period service.
func NewService(repo Store, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns the tenant's periods.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Period, error) {
	return s.repo.List(ctx, tenantID)
}

// Ensure creates the OPEN period for date if it does not exist yet.
func (s *Service) Ensure(ctx context.Context, tenantID int64, date time.Time) (Period, error) {
	if tenantID <= 0 {
		return Period{}, fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	return s.repo.EnsurePeriod(ctx, MonthPeriod(tenantID, date))
}

// EnsureAll opens the period covering date for every tenant and returns how
// many tenants were processed.
func (s *Service) EnsureAll(ctx context.Context, date time.Time) (int, error) {
	tenants, err := s.repo.Tenants(ctx)
	if err != nil {
		return 0, err
	}
	for _, tenantID := range tenants {
		if _, err := s.repo.EnsurePeriod(ctx, MonthPeriod(tenantID, date)); err != nil {
			return 0, fmt.Errorf("periods: ensure tenant %d: %w", tenantID, err)
		}
	}
	return len(tenants), nil
}

// Close stops further postings into the period.
func (s *Service) Close(ctx context.Context, tenantID, id, actorID int64) (Period, error) {
	return s.transition(ctx, tenantID, id, actorID, PeriodStatusClosed)
}

// Reopen accepts postings into a closed period again.
func (s *Service) Reopen(ctx context.Context, tenantID, id, actorID int64) (Period, error) {
	return s.transition(ctx, tenantID, id, actorID, PeriodStatusOpen)
}

func (s *Service) transition(ctx context.Context, tenantID, id, actorID int64, target PeriodStatus) (Period, error) {
	current, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return Period{}, err
	}
	if err := core.ValidatePeriodTransition(string(current.Status), string(target)); err != nil {
		return Period{}, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidStatus, current.Status, target)
	}
	updated, err := s.repo.UpdateStatus(ctx, tenantID, id, current.Status, target, actorID, s.now())
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, core.AuditLog{
			TenantID: tenantID,
			ActorID:  actorID,
			Action:   "period." + strings.ToLower(string(target)),
			Entity:   "period",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"code": updated.Code, "from": string(current.Status)},
			At:       s.now(),
		})
		if err != nil {
			s.logger.Warn("audit period transition", slog.Any("error", err))
		}
	}
	return updated, nil
}
