package subledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/subledger"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const tenantID int64 = 7

var saleDate = time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fixture struct {
	store     *memory.Store
	accounts  *accounts.Service
	ledger    *accounting.Service
	subledger *subledger.Service
	ids       map[string]int64
	customer  subledger.Counterparty
	supplier  subledger.Counterparty
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	ledger := accounting.NewService(store.Ledger(), store, store, nil)
	f := &fixture{
		store:     store,
		accounts:  accounts.NewService(store.Accounts(), store, nil),
		ledger:    ledger,
		subledger: subledger.NewService(store, store, ledger, nil),
		ids:       map[string]int64{},
	}
	for _, in := range []accounts.CreateInput{
		{Code: "1110", Name: "Cash", Type: accounts.AccountTypeAsset, Category: accounts.CategoryCash},
		{Code: "1120", Name: "Bank", Type: accounts.AccountTypeAsset},
		{Code: "1130", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset, Category: accounts.CategoryReceivable},
		{Code: "1140", Name: "Inventory", Type: accounts.AccountTypeAsset},
		{Code: "2110", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, Category: accounts.CategoryPayable},
		{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue},
	} {
		in.TenantID = tenantID
		acc, err := f.accounts.Create(ctx, in)
		require.NoError(t, err)
		f.ids[in.Code] = acc.ID
	}
	var err error
	f.customer, err = f.subledger.CreateCounterparty(ctx, subledger.CounterpartyInput{TenantID: tenantID, Kind: subledger.KindCustomer, Name: "PT Maju"})
	require.NoError(t, err)
	f.supplier, err = f.subledger.CreateCounterparty(ctx, subledger.CounterpartyInput{TenantID: tenantID, Kind: "supplier", Name: "CV Sumber"})
	require.NoError(t, err)
	return f
}

func (f *fixture) sale(t *testing.T, number, value string, due time.Time) (accounting.Posting, subledger.Document) {
	t.Helper()
	ctx := context.Background()
	posted, err := f.ledger.PostTransaction(ctx, accounting.PostingInput{
		TenantID:     tenantID,
		Number:       number,
		Date:         saleDate,
		Type:         accounting.TypeSale,
		Counterparty: &accounting.CounterpartyRef{ID: f.customer.ID, DueDate: &due},
		Lines: []accounting.PostingLineInput{
			{AccountID: f.ids["1130"], Debit: amount(value)},
			{AccountID: f.ids["4100"], Credit: amount(value)},
		},
	})
	require.NoError(t, err)
	docs, err := f.subledger.ListDocuments(ctx, tenantID, subledger.DocumentFilter{Kind: subledger.Receivable})
	require.NoError(t, err)
	for _, doc := range docs {
		if doc.TransactionID == posted.Transaction.ID {
			return posted, doc
		}
	}
	t.Fatalf("no receivable for %s", number)
	return posted, subledger.Document{}
}

func (f *fixture) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	acc, err := f.accounts.Get(context.Background(), tenantID, f.ids[code])
	require.NoError(t, err)
	return acc.NormalBalance()
}

func (f *fixture) document(t *testing.T, id int64) subledger.DocumentDetail {
	t.Helper()
	detail, err := f.subledger.GetDocument(context.Background(), tenantID, id)
	require.NoError(t, err)
	return detail
}

func (f *fixture) transactionCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.ledger.ListTransactions(context.Background(), tenantID, accounting.ListFilter{IncludeVoid: true}, 1, 100)
	require.NoError(t, err)
	return total
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, amount(want).Equal(got), "want %s got %s", want, got)
}

func TestSaleCreatesReceivable(t *testing.T) {
	f := newFixture(t)
	due := saleDate.AddDate(0, 0, 30)
	posted, doc := f.sale(t, "INV-001", "1000000", due)

	require.Equal(t, subledger.Receivable, doc.Kind)
	require.Equal(t, f.customer.ID, doc.CounterpartyID)
	require.Equal(t, "INV-001", doc.Number)
	require.Equal(t, subledger.StatusUnpaid, doc.Status)
	requireAmount(t, "1000000", doc.Amount)
	requireAmount(t, "1000000", doc.Remaining)
	require.True(t, doc.DueDate.Equal(due))
	require.Equal(t, accounting.PaymentUnpaid, posted.Transaction.PaymentStatus)
}

func TestSaleWithWrongCounterpartyKindRollsBack(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.PostTransaction(context.Background(), accounting.PostingInput{
		TenantID:     tenantID,
		Number:       "INV-BAD",
		Date:         saleDate,
		Type:         accounting.TypeSale,
		Counterparty: &accounting.CounterpartyRef{ID: f.supplier.ID},
		Lines: []accounting.PostingLineInput{
			{AccountID: f.ids["1130"], Debit: amount("10")},
			{AccountID: f.ids["4100"], Credit: amount("10")},
		},
	})
	require.ErrorIs(t, err, shared.ErrCounterpartyNotFound)
	requireAmount(t, "0", f.balance(t, "1130"))

	docs, err := f.subledger.ListDocuments(context.Background(), tenantID, subledger.DocumentFilter{})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestPaymentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, doc := f.sale(t, "INV-002", "1000000", saleDate.AddDate(0, 0, 14))

	payment, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID:   tenantID,
		ActorID:    4,
		DocumentID: doc.ID,
		Amount:     amount("400000"),
		Date:       saleDate.AddDate(0, 0, 5),
		Method:     "cash",
		Reference:  "RCPT-1",
	})
	require.NoError(t, err)
	require.Equal(t, subledger.MethodCash, payment.Method)
	requireAmount(t, "400000", f.balance(t, "1110"))
	requireAmount(t, "600000", f.balance(t, "1130"))

	detail := f.document(t, doc.ID)
	require.Equal(t, subledger.StatusPartial, detail.Status)
	requireAmount(t, "400000", detail.Paid)
	requireAmount(t, "600000", detail.Remaining)
	require.Len(t, detail.Payments, 1)

	sale, err := f.ledger.GetTransaction(ctx, tenantID, posted.Transaction.ID)
	require.NoError(t, err)
	require.Equal(t, accounting.PaymentPartial, sale.Transaction.PaymentStatus)

	receipt, err := f.ledger.GetTransaction(ctx, tenantID, payment.TransactionID)
	require.NoError(t, err)
	require.Equal(t, accounting.TypePaymentIn, receipt.Transaction.Type)
	require.Equal(t, "RCPT-1", receipt.Transaction.Reference)

	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: posted.Transaction.ID})
	require.ErrorIs(t, err, shared.ErrHasPayments)
	require.NotEqual(t, subledger.StatusVoid, f.document(t, doc.ID).Status)
	requireAmount(t, "600000", f.balance(t, "1130"))

	before := f.transactionCount(t)
	_, err = f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID:   tenantID,
		DocumentID: doc.ID,
		Amount:     amount("600000.01"),
		Date:       saleDate.AddDate(0, 0, 6),
		Method:     subledger.MethodBank,
	})
	require.ErrorIs(t, err, shared.ErrOverpayment)
	detail = f.document(t, doc.ID)
	requireAmount(t, "600000", detail.Remaining)
	require.Len(t, detail.Payments, 1)
	requireAmount(t, "400000", f.balance(t, "1110"))
	requireAmount(t, "0", f.balance(t, "1120"))
	requireAmount(t, "600000", f.balance(t, "1130"))
	require.Equal(t, before, f.transactionCount(t))

	_, err = f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID:   tenantID,
		DocumentID: doc.ID,
		Amount:     amount("600000"),
		Date:       saleDate.AddDate(0, 0, 6),
		Method:     subledger.MethodTransfer,
	})
	require.NoError(t, err)
	detail = f.document(t, doc.ID)
	require.Equal(t, subledger.StatusPaid, detail.Status)
	requireAmount(t, "0", detail.Remaining)
	requireAmount(t, "1000000", f.balance(t, "1110"))
	requireAmount(t, "0", f.balance(t, "1130"))

	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: payment.TransactionID, Reason: "bounced"})
	require.NoError(t, err)
	detail = f.document(t, doc.ID)
	require.Equal(t, subledger.StatusPartial, detail.Status)
	requireAmount(t, "400000", detail.Remaining)
	requireAmount(t, "600000", f.balance(t, "1110"))
	requireAmount(t, "400000", f.balance(t, "1130"))

	report, err := f.ledger.CheckIntegrity(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, report.OK())
}

func TestPaymentUsesMappedCashAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Mappings().UpsertMapping(ctx, mappings.AccountMapping{
		TenantID: tenantID, Module: mappings.ModuleCash, Key: "bank", AccountID: f.ids["1120"],
	}))
	_, doc := f.sale(t, "INV-003", "250", saleDate)

	_, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID: tenantID, DocumentID: doc.ID, Amount: amount("250"), Date: saleDate, Method: subledger.MethodBank,
	})
	require.NoError(t, err)
	requireAmount(t, "250", f.balance(t, "1120"))
	requireAmount(t, "0", f.balance(t, "1110"))
}

func TestPurchaseCreatesPayableAndPaysOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.ledger.PostTransaction(ctx, accounting.PostingInput{
		TenantID:     tenantID,
		Number:       "PO-001",
		Date:         saleDate,
		Type:         accounting.TypePurchase,
		Counterparty: &accounting.CounterpartyRef{ID: f.supplier.ID},
		Lines: []accounting.PostingLineInput{
			{AccountID: f.ids["1140"], Debit: amount("300")},
			{AccountID: f.ids["2110"], Credit: amount("300")},
		},
	})
	require.NoError(t, err)
	docs, err := f.subledger.ListDocuments(ctx, tenantID, subledger.DocumentFilter{Kind: subledger.Payable, CounterpartyID: f.supplier.ID})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, posted.Transaction.ID, docs[0].TransactionID)

	payment, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID: tenantID, DocumentID: docs[0].ID, Amount: amount("300"), Date: saleDate,
	})
	require.NoError(t, err)
	out, err := f.ledger.GetTransaction(ctx, tenantID, payment.TransactionID)
	require.NoError(t, err)
	require.Equal(t, accounting.TypePaymentOut, out.Transaction.Type)
	requireAmount(t, "0", f.balance(t, "2110"))
	requireAmount(t, "-300", f.balance(t, "1110"))
}

func TestVoidSaleWithoutPaymentsVoidsDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, doc := f.sale(t, "INV-004", "90", saleDate)

	_, err := f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: posted.Transaction.ID})
	require.NoError(t, err)
	detail := f.document(t, doc.ID)
	require.Equal(t, subledger.StatusVoid, detail.Status)
	requireAmount(t, "0", detail.Remaining)

	_, err = f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID: tenantID, DocumentID: doc.ID, Amount: amount("10"), Date: saleDate,
	})
	require.ErrorIs(t, err, shared.ErrDocumentVoid)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]subledger.PaymentInput{
		"zero amount": {TenantID: tenantID, DocumentID: 1, Amount: decimal.Zero, Date: saleDate},
		"no document": {TenantID: tenantID, Amount: amount("1"), Date: saleDate},
		"no date":     {TenantID: tenantID, DocumentID: 1, Amount: amount("1")},
		"bad method":  {TenantID: tenantID, DocumentID: 1, Amount: amount("1"), Date: saleDate, Method: "CHEQUE"},
		"sub cent":    {TenantID: tenantID, DocumentID: 1, Amount: amount("0.004"), Date: saleDate},
		"half cent":   {TenantID: tenantID, DocumentID: 1, Amount: amount("10.005"), Date: saleDate},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.subledger.RecordPayment(ctx, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	_, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{TenantID: tenantID, DocumentID: 999, Amount: amount("1"), Date: saleDate})
	require.ErrorIs(t, err, shared.ErrDocumentNotFound)
}

func TestAgingBucketsOpenReceivables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asOf := saleDate.AddDate(0, 3, 0)
	f.sale(t, "INV-A", "100", asOf.AddDate(0, 0, 5))
	f.sale(t, "INV-B", "200", asOf.AddDate(0, 0, -10))
	f.sale(t, "INV-C", "300", asOf.AddDate(0, 0, -45))
	_, paid := f.sale(t, "INV-D", "400", asOf.AddDate(0, 0, -120))
	_, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID: tenantID, DocumentID: paid.ID, Amount: amount("150"), Date: saleDate,
	})
	require.NoError(t, err)

	report, err := f.subledger.Aging(ctx, tenantID, subledger.Receivable, asOf)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.Equal(t, "PT Maju", row.Name)
	requireAmount(t, "100", row.Current)
	requireAmount(t, "200", row.Days1To30)
	requireAmount(t, "300", row.Days31To60)
	requireAmount(t, "0", row.Days61To90)
	requireAmount(t, "250", row.Over90)
	requireAmount(t, "850", report.Totals.Total)

	_, err = f.subledger.Aging(ctx, tenantID, "LOAN", asOf)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAgingAsOfIgnoresLaterActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := saleDate.AddDate(0, 0, 10)
	_, doc := f.sale(t, "INV-H", "500", due)
	_, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID: tenantID, DocumentID: doc.ID, Amount: amount("100"), Date: saleDate.AddDate(0, 0, 3), Reference: "EARLY",
	})
	require.NoError(t, err)
	late, err := f.subledger.RecordPayment(ctx, subledger.PaymentInput{
		TenantID: tenantID, DocumentID: doc.ID, Amount: amount("400"), Date: saleDate.AddDate(0, 2, 0), Reference: "LATE",
	})
	require.NoError(t, err)
	require.Equal(t, subledger.StatusPaid, f.document(t, doc.ID).Status)

	past := saleDate.AddDate(0, 1, 0)
	report, err := f.subledger.Aging(ctx, tenantID, subledger.Receivable, past)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	requireAmount(t, "400", report.Rows[0].Days1To30)
	requireAmount(t, "400", report.Totals.Total)

	report, err = f.subledger.Aging(ctx, tenantID, subledger.Receivable, saleDate.AddDate(0, 3, 0))
	require.NoError(t, err)
	require.Empty(t, report.Rows)

	_, err = f.ledger.VoidTransaction(ctx, accounting.VoidInput{TenantID: tenantID, TransactionID: late.TransactionID})
	require.NoError(t, err)
	report, err = f.subledger.Aging(ctx, tenantID, subledger.Receivable, saleDate.AddDate(0, 3, 0))
	require.NoError(t, err)
	requireAmount(t, "400", report.Totals.Over90.Add(report.Totals.Days61To90))
	requireAmount(t, "400", report.Totals.Total)
}

func TestPaidAsOf(t *testing.T) {
	voided := saleDate
	payments := []subledger.Payment{
		{Amount: amount("10"), Date: saleDate},
		{Amount: amount("20"), Date: saleDate.AddDate(0, 0, 1)},
		{Amount: amount("40"), Date: saleDate, VoidedAt: &voided},
	}
	requireAmount(t, "10", subledger.PaidAsOf(payments, saleDate.Add(15*time.Hour)))
	requireAmount(t, "30", subledger.PaidAsOf(payments, saleDate.AddDate(0, 0, 1)))
	requireAmount(t, "0", subledger.PaidAsOf(payments, saleDate.AddDate(0, 0, -1)))
}

func TestCounterparties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customers, err := f.subledger.ListCounterparties(ctx, tenantID, subledger.KindCustomer)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	all, err := f.subledger.ListCounterparties(ctx, tenantID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = f.subledger.CreateCounterparty(ctx, subledger.CounterpartyInput{TenantID: tenantID, Kind: "PARTNER", Name: "X"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.subledger.CreateCounterparty(ctx, subledger.CounterpartyInput{TenantID: tenantID, Kind: subledger.KindCustomer, Name: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}
