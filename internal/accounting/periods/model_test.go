package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestMonthPeriod(t *testing.T) {
	p := MonthPeriod(4, time.Date(2024, time.February, 17, 15, 30, 0, 0, time.UTC))
	require.Equal(t, "2024-02", p.Code)
	require.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), p.StartDate)
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), p.EndDate)
	require.Equal(t, PeriodStatusOpen, p.Status)

	require.True(t, p.Contains(time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC)))
	require.False(t, p.Contains(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyAutoCreate, policy)

	policy, err = ParsePolicy(" Strict ")
	require.NoError(t, err)
	require.Equal(t, PolicyStrict, policy)

	_, err = ParsePolicy("lenient")
	require.ErrorIs(t, err, shared.ErrValidation)
}
