package shared

import "errors"

// Period statuses reused outside accounting module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks transitions according to policy.
func ValidatePeriodTransition(current, target string) error {
	switch {
	case current == PeriodStatusOpen && target == PeriodStatusClosed:
		return nil
	case current == PeriodStatusClosed && target == PeriodStatusOpen:
		return nil
	}
	return ErrInvalidPeriodTransition
}
