package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// PeriodEnsurer creates the period covering a date for every tenant.
type PeriodEnsurer interface {
	EnsureAll(ctx context.Context, date time.Time) (int, error)
}

// PeriodRolloverJob opens the month's accounting period ahead of postings.
type PeriodRolloverJob struct {
	Periods PeriodEnsurer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPeriodRolloverJob initialises the rollover handler.
func NewPeriodRolloverJob(periods PeriodEnsurer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodRolloverJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodRolloverJob{
		Periods: periods,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle ensures the period for the payload date exists.
func (j *PeriodRolloverJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Periods == nil {
		return errors.New("period rollover: handler not configured")
	}
	var payload PeriodRolloverPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	date := payload.Date
	if date.IsZero() {
		date = j.clock()
	}

	tracker := j.Metrics.Track(TaskPeriodRollover)
	defer func() { err = tracker.End(err) }()

	n, err := j.Periods.EnsureAll(ctx, date)
	if err != nil {
		j.Logger.Error("period rollover failed", slog.Any("error", err), slog.Int("tenants", n))
		return err
	}
	j.Logger.Info("period rollover completed",
		slog.String("job", TaskPeriodRollover),
		slog.String("month", date.Format("2006-01")),
		slog.Int("tenants", n),
	)
	return nil
}
