package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const tenantID int64 = 3

func TestCreateAccount(t *testing.T) {
	store := memory.New()
	svc := accounts.NewService(store.Accounts(), store, nil)
	ctx := context.Background()

	header, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "2000", Name: "Liabilities", Type: accounts.AccountTypeLiability, IsHeader: true})
	require.NoError(t, err)
	require.Equal(t, 1, header.Level)

	loan, err := svc.Create(ctx, accounts.CreateInput{
		TenantID:       tenantID,
		Code:           " 2200 ",
		Name:           "Bank Loan",
		Type:           accounts.AccountTypeLiability,
		ParentID:       &header.ID,
		Category:       "loan",
		OpeningBalance: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	require.Equal(t, "2200", loan.Code)
	require.Equal(t, 2, loan.Level)
	require.Equal(t, shared.SideCredit, loan.NormalSide)
	require.Equal(t, "LOAN", loan.Category)
	require.True(t, decimal.NewFromInt(-1000).Equal(loan.OpeningBalance))
	require.True(t, decimal.NewFromInt(-1000).Equal(loan.Balance))
	require.True(t, decimal.NewFromInt(1000).Equal(loan.NormalBalance()))

	_, err = svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "2200", Name: "Again", Type: accounts.AccountTypeLiability})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = svc.Create(ctx, accounts.CreateInput{TenantID: tenantID + 1, Code: "2200", Name: "Other tenant", Type: accounts.AccountTypeLiability})
	require.NoError(t, err)
}

func TestCreateAccountRejectsInvalidInput(t *testing.T) {
	store := memory.New()
	svc := accounts.NewService(store.Accounts(), nil, nil)
	ctx := context.Background()
	leaf, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "1100", Name: "Cash", Type: accounts.AccountTypeAsset})
	require.NoError(t, err)

	cases := map[string]accounts.CreateInput{
		"no code":          {TenantID: tenantID, Name: "X", Type: accounts.AccountTypeAsset},
		"bad type":         {TenantID: tenantID, Code: "9", Name: "X", Type: "INCOME"},
		"bad side":         {TenantID: tenantID, Code: "9", Name: "X", Type: accounts.AccountTypeAsset, NormalSide: "LEFT"},
		"header opening":   {TenantID: tenantID, Code: "9", Name: "X", Type: accounts.AccountTypeAsset, IsHeader: true, OpeningBalance: decimal.NewFromInt(1)},
		"leaf parent":      {TenantID: tenantID, Code: "9", Name: "X", Type: accounts.AccountTypeAsset, ParentID: &leaf.ID},
		"no tenant":        {Code: "9", Name: "X", Type: accounts.AccountTypeAsset},
		"whitespace names": {TenantID: tenantID, Code: " ", Name: " ", Type: accounts.AccountTypeAsset},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	missing := int64(404)
	_, err = svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "9", Name: "X", Type: accounts.AccountTypeAsset, ParentID: &missing})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestDeleteAccount(t *testing.T) {
	store := memory.New()
	svc := accounts.NewService(store.Accounts(), store, nil)
	ledger := accounting.NewService(store.Ledger(), store, store, nil)
	ctx := context.Background()

	header, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "1000", Name: "Assets", Type: accounts.AccountTypeAsset, IsHeader: true})
	require.NoError(t, err)
	cash, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "1100", Name: "Cash", Type: accounts.AccountTypeAsset, ParentID: &header.ID})
	require.NoError(t, err)
	equity, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "3000", Name: "Capital", Type: accounts.AccountTypeEquity})
	require.NoError(t, err)
	spare, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "3900", Name: "Spare", Type: accounts.AccountTypeEquity})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, tenantID, header.ID, 1), shared.ErrAccountInUse)

	_, err = ledger.PostTransaction(ctx, accounting.PostingInput{
		TenantID: tenantID,
		Number:   "CAP-1",
		Date:     time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
		Type:     accounting.TypeManualJournal,
		Lines: []accounting.PostingLineInput{
			{AccountID: cash.ID, Debit: decimal.NewFromInt(10)},
			{AccountID: equity.ID, Credit: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, tenantID, cash.ID, 1), shared.ErrAccountInUse)

	require.NoError(t, svc.Delete(ctx, tenantID, spare.ID, 1))
	_, err = svc.Get(ctx, tenantID, spare.ID)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	require.ErrorIs(t, svc.Delete(ctx, tenantID, spare.ID, 1), shared.ErrAccountNotFound)
}

func TestTreeAndSetActive(t *testing.T) {
	store := memory.New()
	svc := accounts.NewService(store.Accounts(), store, nil)
	ctx := context.Background()
	acc, err := svc.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "5100", Name: "Rent", Type: accounts.AccountTypeExpense})
	require.NoError(t, err)
	require.True(t, acc.IsActive)

	off, err := svc.SetActive(ctx, tenantID, acc.ID, 2, false)
	require.NoError(t, err)
	require.False(t, off.IsActive)

	rows, err := svc.Tree(ctx, tenantID, accounts.TreeFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, rows)
	rows, err = svc.Tree(ctx, tenantID, accounts.TreeFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = svc.Tree(ctx, tenantID, accounts.TreeFilter{Type: "COST"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
