package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = core.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = core.PeriodStatusClosed
)

// Period is one calendar month of a tenant's books.
type Period struct {
	ID        int64        `json:"id"`
	TenantID  int64        `json:"tenant_id"`
	Year      int          `json:"year"`
	Month     time.Month   `json:"month"`
	Code      string       `json:"code"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    PeriodStatus `json:"status"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
	ClosedBy  *int64       `json:"closed_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	d := dateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// MonthPeriod builds an OPEN period spanning the calendar month of date.
func MonthPeriod(tenantID int64, date time.Time) Period {
	start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Period{
		TenantID:  tenantID,
		Year:      start.Year(),
		Month:     start.Month(),
		Code:      start.Format("2006-01"),
		StartDate: start,
		EndDate:   end,
		Status:    PeriodStatusOpen,
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Policy decides what happens when a posting targets a month without a period.
type Policy string

const (
	// PolicyAutoCreate opens the missing period on demand.
	PolicyAutoCreate Policy = "auto"
	// PolicyStrict rejects postings into months with no period.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyAutoCreate:
		return PolicyAutoCreate, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("%w: unknown period policy %q", shared.ErrValidation, raw)
}
