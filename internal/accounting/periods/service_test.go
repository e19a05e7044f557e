package periods_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestPeriodLifecycle(t *testing.T) {
	store := memory.New()
	svc := periods.NewService(store.Periods(), store, nil)
	ctx := context.Background()
	date := time.Date(2025, time.April, 9, 0, 0, 0, 0, time.UTC)

	p, err := svc.Ensure(ctx, 1, date)
	require.NoError(t, err)
	again, err := svc.Ensure(ctx, 1, date.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Equal(t, p.ID, again.ID)

	closed, err := svc.Close(ctx, 1, p.ID, 5)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)
	require.Equal(t, int64(5), *closed.ClosedBy)

	_, err = svc.Close(ctx, 1, p.ID, 5)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	reopened, err := svc.Reopen(ctx, 1, p.ID, 6)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, reopened.Status)
	require.Nil(t, reopened.ClosedAt)

	_, err = svc.Close(ctx, 2, p.ID, 5)
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)

	var actions []string
	for _, log := range store.AuditLogs(1) {
		actions = append(actions, log.Action)
	}
	require.Equal(t, []string{"period.closed", "period.open"}, actions)
}

func TestEnsureAllOpensPeriodPerTenant(t *testing.T) {
	store := memory.New()
	registry := accounts.NewService(store.Accounts(), nil, nil)
	ctx := context.Background()
	for _, tenantID := range []int64{1, 2} {
		_, err := registry.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "1100", Name: "Cash", Type: accounts.AccountTypeAsset})
		require.NoError(t, err)
	}
	svc := periods.NewService(store.Periods(), nil, nil)

	n, err := svc.EnsureAll(ctx, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for _, tenantID := range []int64{1, 2} {
		list, err := svc.List(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "2025-07", list[0].Code)
	}

	_, err = svc.Ensure(ctx, 0, time.Now())
	require.ErrorIs(t, err, shared.ErrValidation)
}
