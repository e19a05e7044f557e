package mappings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const tenantID int64 = 11

func setup(t *testing.T) (*memory.Store, map[string]int64) {
	t.Helper()
	store := memory.New()
	registry := accounts.NewService(store.Accounts(), nil, nil)
	ids := map[string]int64{}
	for _, in := range []accounts.CreateInput{
		{Code: "1000", Name: "Assets", Type: accounts.AccountTypeAsset, IsHeader: true},
		{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, Category: accounts.CategoryCash},
		{Code: "1111", Name: "Petty Cash", Type: accounts.AccountTypeAsset, Category: accounts.CategoryCash},
		{Code: "1120", Name: "Bank", Type: accounts.AccountTypeAsset},
		{Code: "1130", Name: "Receivables", Type: accounts.AccountTypeAsset},
	} {
		in.TenantID = tenantID
		acc, err := registry.Create(context.Background(), in)
		require.NoError(t, err)
		ids[in.Code] = acc.ID
	}
	return store, ids
}

func TestResolveFallsBackToCategory(t *testing.T) {
	store, ids := setup(t)
	ctx := context.Background()
	resolver := mappings.Resolver{Store: store.Mappings(), Lookup: store.Accounts()}

	id, err := resolver.Cash(ctx, tenantID, "BANK")
	require.NoError(t, err)
	require.Equal(t, ids["1110"], id)

	require.NoError(t, store.Mappings().UpsertMapping(ctx, mappings.AccountMapping{TenantID: tenantID, Module: "cash", Key: "bank", AccountID: ids["1120"]}))
	id, err = resolver.Cash(ctx, tenantID, "BANK")
	require.NoError(t, err)
	require.Equal(t, ids["1120"], id)

	_, err = resolver.Control(ctx, tenantID, mappings.ModuleAR)
	require.ErrorIs(t, err, shared.ErrControlAccountMissing)

	_, err = resolver.Account(ctx, tenantID, mappings.ModuleSales, mappings.KeyRevenue, "")
	require.ErrorIs(t, err, shared.ErrMappingNotFound)
}

func TestSeedDefaults(t *testing.T) {
	store, ids := setup(t)
	ctx := context.Background()
	svc := mappings.NewService(store.Mappings(), store.Accounts())

	n, err := svc.Seed(ctx, tenantID, mappings.Defaults{Mappings: []mappings.DefaultEntry{
		{Module: mappings.ModuleAR, Key: mappings.KeyControl, AccountCode: "1130"},
		{Module: mappings.ModuleCash, Key: mappings.KeyDefault, AccountCode: "1110"},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	m, err := svc.Get(ctx, tenantID, mappings.ModuleAR, mappings.KeyControl)
	require.NoError(t, err)
	require.Equal(t, ids["1130"], m.AccountID)

	n, err = svc.Seed(ctx, tenantID, mappings.Defaults{Mappings: []mappings.DefaultEntry{
		{Module: mappings.ModuleAR, Key: mappings.KeyControl, AccountCode: "1120"},
		{Module: mappings.ModuleStock, Key: mappings.KeyInventory, AccountCode: "1000"},
	}})
	require.ErrorIs(t, err, shared.ErrHeaderAccount)
	require.Equal(t, 1, n)

	list, err := svc.List(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, ids["1120"], list[0].AccountID)

	_, err = svc.Seed(ctx, tenantID, mappings.Defaults{Mappings: []mappings.DefaultEntry{{Module: "AP", Key: "control", AccountCode: "9999"}}})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}
