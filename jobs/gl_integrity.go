package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// IntegrityChecker runs the ledger integrity queries for a tenant.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, tenantID int64) (accounting.IntegrityReport, error)
}

// TenantLister enumerates tenants with ledger data.
type TenantLister interface {
	Tenants(ctx context.Context) ([]int64, error)
}

// ErrIntegrityViolation is returned when a run finds unbalanced vouchers or
// drifted balances.
var ErrIntegrityViolation = errors.New("gl integrity: violations found")

// GLIntegrityJob checks that every voucher balances and every stored running
// balance matches its ledger lines.
type GLIntegrityJob struct {
	Ledger  IntegrityChecker
	Tenants TenantLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob initialises the integrity handler.
func NewGLIntegrityJob(ledger IntegrityChecker, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{Ledger: ledger, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle executes one integrity run.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	_, err = j.Run(ctx, payload.TenantID)
	return err
}

// Run checks tenantID, or every tenant when tenantID is zero, and returns the
// tenants with violations.
func (j *GLIntegrityJob) Run(ctx context.Context, tenantID int64) ([]int64, error) {
	tenants := []int64{tenantID}
	if tenantID == 0 {
		if j.Tenants == nil {
			return nil, errors.New("gl integrity: tenant lister not configured")
		}
		var err error
		tenants, err = j.Tenants.Tenants(ctx)
		if err != nil {
			return nil, fmt.Errorf("gl integrity: list tenants: %w", err)
		}
	}

	var failing []int64
	for _, id := range tenants {
		report, err := j.Ledger.CheckIntegrity(ctx, id)
		if err != nil {
			return failing, fmt.Errorf("gl integrity: tenant %d: %w", id, err)
		}
		if report.OK() {
			continue
		}
		failing = append(failing, id)
		j.Metrics.AddIntegrityIssues("unbalanced", id, len(report.Unbalanced))
		j.Metrics.AddIntegrityIssues("drift", id, len(report.Drift))
		for _, v := range report.Unbalanced {
			j.Logger.Error("unbalanced voucher", slog.Int64("tenant_id", id), slog.Any("voucher", v))
		}
		for _, d := range report.Drift {
			j.Logger.Error("balance drift",
				slog.Int64("tenant_id", id),
				slog.Int64("account_id", d.AccountID),
				slog.String("code", d.Code),
				slog.String("stored", d.Stored.String()),
				slog.String("expected", d.Expected.String()),
			)
		}
	}
	j.Logger.Info("gl integrity check completed",
		slog.String("job", TaskGLIntegrity),
		slog.Int("tenants", len(tenants)),
		slog.Int("failing", len(failing)),
	)
	if len(failing) > 0 {
		return failing, fmt.Errorf("%w: tenants %v", ErrIntegrityViolation, failing)
	}
	return nil, nil
}
