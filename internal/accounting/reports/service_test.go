package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
)

const tenantID int64 = 5

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, amount(want).Equal(got), "want %s got %s", want, got)
}

type books struct {
	ledger *accounting.Service
	ids    map[string]int64
}

func (b books) post(t *testing.T, number string, date time.Time, debit, credit, value string) {
	t.Helper()
	_, err := b.ledger.PostTransaction(context.Background(), accounting.PostingInput{
		TenantID: tenantID,
		Number:   number,
		Date:     date,
		Type:     accounting.TypeManualJournal,
		Lines: []accounting.PostingLineInput{
			{AccountID: b.ids[debit], Debit: amount(value)},
			{AccountID: b.ids[credit], Credit: amount(value)},
		},
	})
	require.NoError(t, err)
}

// seed books a prior-year sale, then a sale and an expense in the current
// fiscal year, on top of matching cash and capital openings.
func seed(t *testing.T, store *memory.Store, ledger *accounting.Service) books {
	t.Helper()
	registry := accounts.NewService(store.Accounts(), nil, nil)
	b := books{ledger: ledger, ids: map[string]int64{}}
	for _, in := range []accounts.CreateInput{
		{Code: "1000", Name: "Assets", Type: accounts.AccountTypeAsset, IsHeader: true},
		{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, OpeningBalance: amount("1000")},
		{Code: "1130", Name: "Receivables", Type: accounts.AccountTypeAsset},
		{Code: "3100", Name: "Capital", Type: accounts.AccountTypeEquity, OpeningBalance: amount("1000")},
		{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue},
		{Code: "5100", Name: "Rent", Type: accounts.AccountTypeExpense},
	} {
		in.TenantID = tenantID
		acc, err := registry.Create(context.Background(), in)
		require.NoError(t, err)
		b.ids[in.Code] = acc.ID
	}
	b.post(t, "JV-2024-1", day(2024, time.November, 20), "1110", "4100", "300")
	b.post(t, "JV-2025-1", day(2025, time.February, 3), "5100", "1110", "100")
	b.post(t, "JV-2025-2", day(2025, time.February, 9), "1130", "4100", "500")
	return b
}

func TestReportsOverMemoryStore(t *testing.T) {
	store := memory.New()
	ledger := accounting.NewService(store.Ledger(), store, store, nil)
	b := seed(t, store, ledger)
	svc := reports.NewService(store, nil, 1)
	ctx := context.Background()
	asOf := day(2025, time.March, 31)

	tb, err := svc.TrialBalance(ctx, tenantID, asOf)
	require.NoError(t, err)
	require.True(t, tb.Balanced)
	requireAmount(t, "900", tb.TotalDebit)
	requireAmount(t, "1800", tb.TotalClosingDebit)

	pl, err := svc.IncomeStatement(ctx, tenantID, reports.Range{From: day(2025, time.January, 1), To: asOf})
	require.NoError(t, err)
	requireAmount(t, "500", pl.Revenue.Total)
	requireAmount(t, "100", pl.Expense.Total)
	requireAmount(t, "400", pl.NetIncome)

	bs, err := svc.BalanceSheet(ctx, tenantID, asOf)
	require.NoError(t, err)
	require.Equal(t, day(2025, time.January, 1), bs.FiscalYearStart)
	requireAmount(t, "1700", bs.Assets.Total)
	requireAmount(t, "1700", bs.TotalLiabilitiesAndEquity)
	require.True(t, bs.Balanced)
	equity := map[string]decimal.Decimal{}
	for _, row := range bs.Equity.Accounts {
		equity[row.Name] = row.Balance
	}
	requireAmount(t, "1000", equity["Capital"])
	requireAmount(t, "300", equity[reports.RetainedEarningsLabel])
	requireAmount(t, "400", equity[reports.CurrentEarningsLabel])

	cash, err := svc.AccountBalance(ctx, tenantID, b.ids["1110"], reports.Range{From: day(2025, time.January, 1), To: asOf})
	require.NoError(t, err)
	require.Equal(t, shared.SideDebit, cash.NormalSide)
	requireAmount(t, "1300", cash.Opening)
	requireAmount(t, "0", cash.TotalDebit)
	requireAmount(t, "100", cash.TotalCredit)
	requireAmount(t, "-100", cash.Balance)
	requireAmount(t, "1200", cash.Closing)

	sales, err := svc.AccountBalance(ctx, tenantID, b.ids["4100"], reports.Range{To: asOf})
	require.NoError(t, err)
	requireAmount(t, "800", sales.Balance)

	_, err = svc.AccountBalance(ctx, tenantID, b.ids["1000"], reports.Range{To: asOf})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	_, err = svc.IncomeStatement(ctx, tenantID, reports.Range{From: asOf, To: day(2025, time.January, 1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVoidedPostingsLeaveReports(t *testing.T) {
	store := memory.New()
	ledger := accounting.NewService(store.Ledger(), store, store, nil)
	b := seed(t, store, ledger)
	svc := reports.NewService(store, nil, 1)
	ctx := context.Background()

	list, _, err := ledger.ListTransactions(ctx, tenantID, accounting.ListFilter{}, 1, 10)
	require.NoError(t, err)
	for _, txn := range list {
		if txn.Number == "JV-2025-2" {
			_, err := ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: txn.ID})
			require.NoError(t, err)
		}
	}

	bal, err := svc.AccountBalance(ctx, tenantID, b.ids["1130"], reports.Range{To: day(2025, time.March, 31)})
	require.NoError(t, err)
	requireAmount(t, "0", bal.Closing)
	bs, err := svc.BalanceSheet(ctx, tenantID, day(2025, time.March, 31))
	require.NoError(t, err)
	require.True(t, bs.Balanced)
}

func TestPostingInvalidatesCachedReports(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := reports.NewCache(client, time.Hour, nil)

	store := memory.New()
	ledger := accounting.NewService(store.Ledger(), store, store, nil)
	ledger.WithInvalidator(cache)
	b := seed(t, store, ledger)
	svc := reports.NewService(store, cache, 1)
	ctx := context.Background()
	asOf := day(2025, time.March, 31)

	before, err := svc.TrialBalance(ctx, tenantID, asOf)
	require.NoError(t, err)
	cached, err := svc.TrialBalance(ctx, tenantID, asOf)
	require.NoError(t, err)
	require.True(t, before.TotalDebit.Equal(cached.TotalDebit))

	b.post(t, "JV-2025-3", day(2025, time.March, 1), "5100", "1110", "50")
	after, err := svc.TrialBalance(ctx, tenantID, asOf)
	require.NoError(t, err)
	requireAmount(t, "950", after.TotalDebit)
	require.True(t, after.Balanced)
}
