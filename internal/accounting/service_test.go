package accounting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const tenantID int64 = 1

var postingDate = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	accounts *accounts.Service
	periods  *periods.Service
	ledger   *accounting.Service
	ids      map[string]int64
}

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store:    store,
		accounts: accounts.NewService(store.Accounts(), store, nil),
		periods:  periods.NewService(store.Periods(), store, nil),
		ledger:   accounting.NewService(store.Ledger(), store, store, nil),
		ids:      map[string]int64{},
	}
	ctx := context.Background()
	header, err := f.accounts.Create(ctx, accounts.CreateInput{TenantID: tenantID, Code: "1000", Name: "Current Assets", Type: accounts.AccountTypeAsset, IsHeader: true})
	require.NoError(t, err)
	f.ids["1000"] = header.ID
	for _, in := range []accounts.CreateInput{
		{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, ParentID: &header.ID, Category: "CASH"},
		{Code: "1130", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset, ParentID: &header.ID, Category: "AR"},
		{Code: "2110", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, Category: "AP"},
		{Code: "3100", Name: "Capital", Type: accounts.AccountTypeEquity, OpeningBalance: amount("500")},
		{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue},
		{Code: "5100", Name: "Expenses", Type: accounts.AccountTypeExpense},
	} {
		in.TenantID = tenantID
		created, err := f.accounts.Create(ctx, in)
		require.NoError(t, err)
		f.ids[in.Code] = created.ID
	}
	return f
}

func (f *fixture) journal(number string, debitCode, creditCode string, value string) accounting.PostingInput {
	return accounting.PostingInput{
		TenantID:    tenantID,
		ActorID:     9,
		Number:      number,
		Date:        postingDate,
		Type:        accounting.TypeManualJournal,
		Description: "test journal " + number,
		Lines: []accounting.PostingLineInput{
			{AccountID: f.ids[debitCode], Debit: amount(value)},
			{AccountID: f.ids[creditCode], Credit: amount(value)},
		},
	}
}

func (f *fixture) balance(t *testing.T, code string) accounts.Account {
	t.Helper()
	acc, err := f.accounts.Get(context.Background(), tenantID, f.ids[code])
	require.NoError(t, err)
	return acc
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, amount(want).Equal(got), "want %s got %s", want, got)
}

func (f *fixture) requireUntouched(t *testing.T) {
	t.Helper()
	for _, code := range []string{"1110", "1130", "2110", "4100", "5100"} {
		requireAmount(t, "0", f.balance(t, code).Balance)
	}
	_, total, err := f.ledger.ListTransactions(context.Background(), tenantID, accounting.ListFilter{IncludeVoid: true}, 1, 20)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestPostTransactionWritesRecordChain(t *testing.T) {
	f := newFixture(t)
	in := f.journal("SALE-001", "1130", "4100", "1000000")
	in.Type = accounting.TypeSale
	in.Items = []accounting.ItemInput{{Description: "Widget", Quantity: amount("4"), UnitPrice: amount("250000")}}

	posted, err := f.ledger.PostTransaction(context.Background(), in)
	require.NoError(t, err)

	txn := posted.Transaction
	require.True(t, txn.IsPosted)
	require.False(t, txn.IsVoid)
	require.Equal(t, accounting.PaymentUnpaid, txn.PaymentStatus)
	requireAmount(t, "1000000", txn.Total)
	require.Len(t, txn.Lines, 1)
	requireAmount(t, "1000000", txn.Lines[0].Subtotal)

	require.Equal(t, "JV-SALE-001", posted.Voucher.Number)
	require.Len(t, posted.Voucher.Lines, 2)
	for i, line := range posted.Voucher.Lines {
		require.Equal(t, i+1, line.Seq)
	}
	require.True(t, posted.Voucher.TotalDebit.Equal(posted.Voucher.TotalCredit))
	require.Len(t, posted.Entry.Lines, 2)
	require.Equal(t, posted.Voucher.ID, posted.Entry.VoucherID)

	ar := f.balance(t, "1130")
	requireAmount(t, "1000000", ar.Balance)
	requireAmount(t, "1000000", ar.NormalBalance())
	revenue := f.balance(t, "4100")
	requireAmount(t, "-1000000", revenue.Balance)
	requireAmount(t, "1000000", revenue.NormalBalance())

	loaded, err := f.ledger.GetTransaction(context.Background(), tenantID, txn.ID)
	require.NoError(t, err)
	require.Equal(t, txn.Number, loaded.Transaction.Number)
	require.Len(t, loaded.Entry.Lines, 2)

	report, err := f.ledger.CheckIntegrity(context.Background(), tenantID)
	require.NoError(t, err)
	require.True(t, report.OK())
	var posts int
	for _, log := range f.store.AuditLogs(tenantID) {
		if log.Action == accounting.ActionPost {
			posts++
		}
	}
	require.Equal(t, 1, posts)
}

func TestPostTransactionRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(in *accounting.PostingInput){
		"unbalanced":  func(in *accounting.PostingInput) { in.Lines[1].Credit = amount("99") },
		"single line": func(in *accounting.PostingInput) { in.Lines = in.Lines[:1] },
		"negative": func(in *accounting.PostingInput) {
			in.Lines[0].Debit = amount("-100")
			in.Lines[1].Credit = amount("-100")
		},
		"both sides":     func(in *accounting.PostingInput) { in.Lines[0].Credit = amount("100") },
		"missing number": func(in *accounting.PostingInput) { in.Number = " " },
		"unknown type":   func(in *accounting.PostingInput) { in.Type = "GIFT" },
		"missing date":   func(in *accounting.PostingInput) { in.Date = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.journal("BAD-"+name, "1110", "4100", "100")
			mutate(&in)
			_, err := f.ledger.PostTransaction(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	f.requireUntouched(t)
}

func TestPostTransactionRejectsSubCentAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	split := accounting.PostingInput{
		TenantID: tenantID,
		Number:   "JV-SPLIT",
		Date:     postingDate,
		Type:     accounting.TypeManualJournal,
		Lines: []accounting.PostingLineInput{
			{AccountID: f.ids["1110"], Debit: amount("0.005")},
			{AccountID: f.ids["5100"], Debit: amount("0.005")},
			{AccountID: f.ids["4100"], Credit: amount("0.01")},
		},
	}
	_, err := f.ledger.PostTransaction(ctx, split)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.ledger.PostTransaction(ctx, f.journal("JV-TINY", "1110", "4100", "0.004"))
	require.ErrorIs(t, err, shared.ErrValidation)
	f.requireUntouched(t)

	posted, err := f.ledger.PostTransaction(ctx, f.journal("JV-CENTS", "1110", "4100", "12.500"))
	require.NoError(t, err)
	require.True(t, posted.Voucher.TotalDebit.Equal(posted.Voucher.TotalCredit))
	requireAmount(t, "12.5", posted.Transaction.Total)
	report, err := f.ledger.CheckIntegrity(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, report.OK())
}

func TestPostTransactionUnknownOrBlockedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.journal("JV-404", "1110", "4100", "100")
	in.Lines[1].AccountID = 987654
	_, err := f.ledger.PostTransaction(ctx, in)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = f.ledger.PostTransaction(ctx, f.journal("JV-HDR", "1000", "4100", "100"))
	require.ErrorIs(t, err, shared.ErrHeaderAccount)

	_, err = f.accounts.SetActive(ctx, tenantID, f.ids["5100"], 1, false)
	require.NoError(t, err)
	_, err = f.ledger.PostTransaction(ctx, f.journal("JV-OFF", "5100", "1110", "100"))
	require.ErrorIs(t, err, shared.ErrAccountInactive)

	f.requireUntouched(t)
}

func TestPostTransactionDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.PostTransaction(ctx, f.journal("JV-1", "1110", "3100", "250"))
	require.NoError(t, err)

	_, err = f.ledger.PostTransaction(ctx, f.journal("JV-1", "1110", "3100", "250"))
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.ErrorIs(t, err, shared.ErrConflict)
	requireAmount(t, "250", f.balance(t, "1110").Balance)
}

func TestPostTransactionPeriodPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.periods.Ensure(ctx, tenantID, postingDate)
	require.NoError(t, err)
	_, err = f.periods.Close(ctx, tenantID, p.ID, 1)
	require.NoError(t, err)
	_, err = f.ledger.PostTransaction(ctx, f.journal("JV-CLOSED", "1110", "4100", "100"))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	f.ledger.WithPolicy(periods.PolicyStrict)
	in := f.journal("JV-STRICT", "1110", "4100", "100")
	in.Date = postingDate.AddDate(0, 2, 0)
	_, err = f.ledger.PostTransaction(ctx, in)
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)

	f.ledger.WithPolicy(periods.PolicyAutoCreate)
	_, err = f.ledger.PostTransaction(ctx, in)
	require.NoError(t, err)
	list, err := f.periods.List(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "2025-05", list[0].Code)
}

func TestVoidTransactionIsInverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.journal("JV-V", "5100", "1110", "75.25")
	in.Lines = append(in.Lines,
		accounting.PostingLineInput{AccountID: f.ids["5100"], Debit: amount("24.75")},
		accounting.PostingLineInput{AccountID: f.ids["1110"], Credit: amount("24.75")},
	)
	posted, err := f.ledger.PostTransaction(ctx, in)
	require.NoError(t, err)
	requireAmount(t, "100", f.balance(t, "5100").Balance)
	requireAmount(t, "-100", f.balance(t, "1110").Balance)

	voided, err := f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, ActorID: 3, TransactionID: posted.Transaction.ID, Reason: "typo"})
	require.NoError(t, err)
	require.True(t, voided.IsVoid)
	require.Equal(t, "typo", voided.VoidReason)
	requireAmount(t, "0", f.balance(t, "5100").Balance)
	requireAmount(t, "0", f.balance(t, "1110").Balance)

	loaded, err := f.ledger.GetTransaction(ctx, tenantID, posted.Transaction.ID)
	require.NoError(t, err)
	require.True(t, loaded.Transaction.IsVoid)
	require.Equal(t, accounting.VoucherCancelled, loaded.Voucher.Status)
	require.False(t, loaded.Voucher.IsPosted)
	require.False(t, loaded.Entry.IsPosted)
	require.Len(t, loaded.Entry.Lines, 4)

	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: posted.Transaction.ID})
	require.ErrorIs(t, err, shared.ErrAlreadyVoid)

	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: 424242})
	require.ErrorIs(t, err, shared.ErrTransactionNotFound)

	report, err := f.ledger.CheckIntegrity(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, report.OK())

	list, total, err := f.ledger.ListTransactions(ctx, tenantID, accounting.ListFilter{}, 1, 20)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)
}

func TestVoidTransactionInClosedPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.ledger.PostTransaction(ctx, f.journal("JV-C", "1110", "4100", "10"))
	require.NoError(t, err)
	_, err = f.periods.Close(ctx, tenantID, posted.Entry.PeriodID, 1)
	require.NoError(t, err)

	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: posted.Transaction.ID})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	requireAmount(t, "10", f.balance(t, "1110").Balance)

	_, err = f.periods.Reopen(ctx, tenantID, posted.Entry.PeriodID, 1)
	require.NoError(t, err)
	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: posted.Transaction.ID})
	require.NoError(t, err)
}

func TestPostHookFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("subledger unavailable")
	f.ledger.OnPost(func(ctx context.Context, tx accounting.TxRepository, posted accounting.Posting, in accounting.PostingInput) error {
		return boom
	})

	_, err := f.ledger.PostTransaction(context.Background(), f.journal("JV-HOOK", "1110", "4100", "100"))
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.ErrorIs(t, err, boom)
	f.requireUntouched(t)
}

func TestConcurrentPostingsUseAtomicIncrements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		for j, value := range []string{"100", "50"} {
			wg.Add(1)
			go func(number string, value string) {
				defer wg.Done()
				_, err := f.ledger.PostTransaction(ctx, f.journal(number, "1110", "4100", value))
				errs <- err
			}(accounting.DerivedNumber("CONC", i, j), value)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	requireAmount(t, "7500", f.balance(t, "1110").Balance)
	requireAmount(t, "-7500", f.balance(t, "4100").Balance)
	report, err := f.ledger.CheckIntegrity(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, report.OK())
}

func TestCheckIntegrityReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.PostTransaction(ctx, f.journal("JV-D", "1110", "4100", "10"))
	require.NoError(t, err)
	require.NoError(t, f.store.CorruptBalance(tenantID, f.ids["1110"], amount("11")))

	report, err := f.ledger.CheckIntegrity(ctx, tenantID)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Len(t, report.Drift, 1)
	require.Equal(t, "1110", report.Drift[0].Code)
	requireAmount(t, "10", report.Drift[0].Expected)
}

func TestListTransactionsFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		in := f.journal(accounting.DerivedNumber("LIST", i), "1110", "4100", "1")
		in.Date = postingDate.AddDate(0, 0, i)
		_, err := f.ledger.PostTransaction(ctx, in)
		require.NoError(t, err)
	}
	page, total, err := f.ledger.ListTransactions(ctx, tenantID, accounting.ListFilter{}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page, 2)
	require.Equal(t, postingDate.AddDate(0, 0, 2), page[0].Date)

	from := postingDate.AddDate(0, 0, 3)
	_, total, err = f.ledger.ListTransactions(ctx, tenantID, accounting.ListFilter{From: &from}, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	_, _, err = f.ledger.ListTransactions(ctx, tenantID, accounting.ListFilter{Type: "NOPE"}, 1, 20)
	require.ErrorIs(t, err, shared.ErrValidation)
}
