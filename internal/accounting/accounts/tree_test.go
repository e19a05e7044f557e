package accounts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func ptr(v int64) *int64 { return &v }

func sampleChart() []Account {
	return []Account{
		{ID: 1, Code: "1000", Name: "Assets", Type: AccountTypeAsset, IsHeader: true, IsActive: true},
		{ID: 2, Code: "1100", Name: "Cash", Type: AccountTypeAsset, ParentID: ptr(1), IsActive: true, Balance: decimal.NewFromInt(150)},
		{ID: 3, Code: "1050", Name: "Petty Cash", Type: AccountTypeAsset, ParentID: ptr(1), IsActive: false, Balance: decimal.NewFromInt(25)},
		{ID: 4, Code: "1190", Name: "Allowance", Type: AccountTypeAsset, NormalSide: shared.SideCredit, ParentID: ptr(1), IsActive: true, Balance: decimal.NewFromInt(-40)},
		{ID: 5, Code: "4000", Name: "Revenue", Type: AccountTypeRevenue, IsActive: true, Balance: decimal.NewFromInt(-300)},
	}
}

func TestBuildTreeOrdersDepthFirst(t *testing.T) {
	rows := BuildTree(sampleChart(), TreeFilter{})
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.Code)
	}
	require.Equal(t, []string{"1000", "1050", "1100", "1190", "4000"}, codes)
	require.Equal(t, 0, rows[0].Depth)
	require.True(t, rows[0].HasChildren)
	require.Equal(t, 1, rows[1].Depth)
	// 150 + 25 for the debit accounts, minus the credit-normal allowance.
	require.True(t, decimal.NewFromInt(135).Equal(rows[0].TotalBalance), rows[0].TotalBalance.String())
	require.True(t, decimal.NewFromInt(300).Equal(rows[4].TotalBalance))
}

func TestBuildTreeActiveOnly(t *testing.T) {
	rows := BuildTree(sampleChart(), TreeFilter{ActiveOnly: true})
	require.Len(t, rows, 4)
	require.True(t, decimal.NewFromInt(110).Equal(rows[0].TotalBalance))
}

func TestBuildTreeFlatByType(t *testing.T) {
	rows := BuildTree(sampleChart(), TreeFilter{Type: AccountTypeRevenue})
	require.Len(t, rows, 1)
	require.Equal(t, "4000", rows[0].Code)

	rows = BuildTree(sampleChart(), TreeFilter{Flatten: true})
	require.Len(t, rows, 5)
	require.Equal(t, "1000", rows[0].Code)
	require.Equal(t, 0, rows[1].Depth)
}

func TestBuildTreeSurvivesParentCycle(t *testing.T) {
	list := []Account{
		{ID: 1, Code: "A", Type: AccountTypeAsset, IsHeader: true, ParentID: ptr(2), IsActive: true},
		{ID: 2, Code: "B", Type: AccountTypeAsset, IsHeader: true, ParentID: ptr(1), IsActive: true},
	}
	require.NotPanics(t, func() { BuildTree(list, TreeFilter{}) })
}

func TestPostable(t *testing.T) {
	require.ErrorIs(t, Account{IsHeader: true, IsActive: true}.Postable(), shared.ErrHeaderAccount)
	require.ErrorIs(t, Account{}.Postable(), shared.ErrAccountInactive)
	require.NoError(t, Account{IsActive: true}.Postable())
}
