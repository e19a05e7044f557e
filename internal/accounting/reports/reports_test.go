package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "want %s got %s", want, got)
}

func TestBuildTrialBalance(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 1, Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, Opening: d("1000"), Debit: d("200"), Credit: d("150")},
		{AccountID: 2, Code: "1120", Name: "Bank", Type: accounts.AccountTypeAsset, Opening: d("500"), Debit: d("100"), Credit: d("50")},
		{AccountID: 3, Code: "2110", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, Opening: d("-1500"), Debit: d("10"), Credit: d("110")},
	}

	tb := BuildTrialBalance(balances)
	require.Len(t, tb.Groups, 2)
	require.Equal(t, "11", tb.Groups[0].Key)
	requireDecimal(t, "310", tb.TotalDebit)
	requireDecimal(t, "310", tb.TotalCredit)
	requireDecimal(t, "0", tb.TotalOpening)
	requireDecimal(t, "1600", tb.TotalClosingDebit)
	requireDecimal(t, "1600", tb.TotalClosingCredit)
	require.True(t, tb.Balanced)
}

func TestBuildTrialBalanceFlagsImbalance(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Code: "1110", Type: accounts.AccountTypeAsset, Opening: d("100")},
	})
	require.False(t, tb.Balanced)
}

func TestBuildProfitAndLoss(t *testing.T) {
	balances := []AccountBalance{
		{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue, Credit: d("1200")},
		{Code: "5100", Name: "COGS", Type: accounts.AccountTypeExpense, Debit: d("300")},
		{Code: "5200", Name: "Marketing", Type: accounts.AccountTypeExpense, Debit: d("200")},
		{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: d("700")},
	}

	pl := BuildProfitAndLoss(balances)
	requireDecimal(t, "1200", pl.Revenue.Total)
	requireDecimal(t, "500", pl.Expense.Total)
	requireDecimal(t, "700", pl.NetIncome)
	require.Len(t, pl.Expense.Accounts, 2)
	require.Equal(t, "5100", pl.Expense.Accounts[0].Code)
}

func TestBuildBalanceSheetAddsEarnings(t *testing.T) {
	closing := []AccountBalance{
		{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, Opening: d("500"), Debit: d("1000"), Credit: d("200")},
		{Code: "2110", Name: "AP", Type: accounts.AccountTypeLiability, Credit: d("100")},
		{Code: "3100", Name: "Capital", Type: accounts.AccountTypeEquity, Opening: d("-500")},
		{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue, Credit: d("1000")},
		{Code: "5100", Name: "Expense", Type: accounts.AccountTypeExpense, Debit: d("300")},
	}
	current := []AccountBalance{
		{Code: "4100", Type: accounts.AccountTypeRevenue, Credit: d("600")},
		{Code: "5100", Type: accounts.AccountTypeExpense, Debit: d("100")},
	}

	bs := BuildBalanceSheet(closing, current)
	requireDecimal(t, "1300", bs.Assets.Total)
	requireDecimal(t, "100", bs.Liabilities.Total)
	requireDecimal(t, "1200", bs.Equity.Total)
	requireDecimal(t, "1300", bs.TotalLiabilitiesAndEquity)
	require.True(t, bs.Balanced)

	require.Len(t, bs.Equity.Accounts, 3)
	retained := bs.Equity.Accounts[1]
	require.Equal(t, RetainedEarningsLabel, retained.Name)
	requireDecimal(t, "200", retained.Balance)
	earnings := bs.Equity.Accounts[2]
	require.Equal(t, CurrentEarningsLabel, earnings.Name)
	require.True(t, earnings.Synthetic)
	requireDecimal(t, "500", earnings.Balance)
}

func TestBuildBalanceSheetContraAssetReducesTotal(t *testing.T) {
	closing := []AccountBalance{
		{Code: "1500", Type: accounts.AccountTypeAsset, Debit: d("1000")},
		{Code: "1590", Type: accounts.AccountTypeAsset, NormalSide: "CREDIT", Credit: d("250")},
		{Code: "3100", Type: accounts.AccountTypeEquity, Credit: d("750")},
	}
	bs := BuildBalanceSheet(closing, nil)
	requireDecimal(t, "750", bs.Assets.Total)
	require.True(t, bs.Balanced)
}

func TestFiscalYearStart(t *testing.T) {
	asOf := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), FiscalYearStart(asOf, time.January))
	require.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), FiscalYearStart(asOf, time.July))
	require.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), FiscalYearStart(asOf, time.March))
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), FiscalYearStart(asOf, 0))
}
