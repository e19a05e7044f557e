package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity verifies voucher balance and stored running balances.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskPeriodRollover opens the current month's period for every tenant.
	TaskPeriodRollover = "ledger:period_rollover"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// GLIntegrityPayload scopes an integrity run. Zero TenantID checks every tenant.
type GLIntegrityPayload struct {
	TenantID int64 `json:"tenant_id,omitempty"`
}

// PeriodRolloverPayload carries the date whose month must exist. A zero date
// means the run time.
type PeriodRolloverPayload struct {
	Date time.Time `json:"date,omitempty"`
}

// IdempotencyCleanupPayload overrides the retention window in seconds.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds,omitempty"`
}

// NewGLIntegrityTask constructs an integrity check task.
func NewGLIntegrityTask(tenantID int64) (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, GLIntegrityPayload{TenantID: tenantID})
}

// NewPeriodRolloverTask constructs a rollover task.
func NewPeriodRolloverTask(date time.Time) (*asynq.Task, error) {
	return newTask(TaskPeriodRollover, PeriodRolloverPayload{Date: date})
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}

func decode(t *asynq.Task, target any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return asynq.SkipRetry
	}
	return nil
}
