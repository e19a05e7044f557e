package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
)

const tenantID = 1

type ledgerFixture struct {
	services *app.Services
	cash     int64
	revenue  int64
}

func newFixture(tb testing.TB) ledgerFixture {
	tb.Helper()
	cfg := &app.Config{StoreDriver: app.DriverMemory, PeriodPolicy: "auto", FiscalYearStartMonth: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services, err := app.NewServices(cfg, app.MemoryBackend(memory.New()), nil, nil, logger)
	require.NoError(tb, err)

	create := func(code, name string, typ accounts.AccountType) int64 {
		acc, err := services.Accounts.Create(context.Background(), accounts.CreateInput{TenantID: tenantID, Code: code, Name: name, Type: typ})
		require.NoError(tb, err)
		return acc.ID
	}
	return ledgerFixture{
		services: services,
		cash:     create("1110", "Cash", accounts.AccountTypeAsset),
		revenue:  create("4100", "Sales", accounts.AccountTypeRevenue),
	}
}

func (f ledgerFixture) post(ctx context.Context, n int) error {
	amount := decimal.NewFromInt(int64(100 + n%50))
	_, err := f.services.Ledger.PostTransaction(ctx, accounting.PostingInput{
		TenantID: tenantID,
		ActorID:  1,
		Number:   fmt.Sprintf("PERF-%06d", n),
		Date:     time.Date(2025, time.Month(1+n%12), 1+n%28, 0, 0, 0, 0, time.UTC),
		Type:     accounting.TypeSale,
		Lines: []accounting.PostingLineInput{
			{AccountID: f.cash, Debit: amount},
			{AccountID: f.revenue, Credit: amount},
		},
	})
	return err
}

func TestConcurrentPostingLatencyAndConsistency(t *testing.T) {
	f := newFixture(t)
	const postings = 400

	var mu sync.Mutex
	samples := make([]time.Duration, 0, postings)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(16)
	for n := range postings {
		g.Go(func() error {
			start := time.Now()
			err := f.post(ctx, n)
			mu.Lock()
			samples = append(samples, time.Since(start))
			mu.Unlock()
			return err
		})
	}
	require.NoError(t, g.Wait())

	p95 := percentile95(samples)
	require.Less(t, p95, 250*time.Millisecond, "posting latency regression: p95=%s", p95)

	report, err := f.services.Ledger.CheckIntegrity(context.Background(), tenantID)
	require.NoError(t, err)
	require.True(t, report.OK(), "integrity: %+v", report)

	tb, err := f.services.Reports.TrialBalance(context.Background(), tenantID, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, tb.Balanced)
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func BenchmarkPostTransaction(b *testing.B) {
	f := newFixture(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for n := range b.N {
		if err := f.post(ctx, n); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPostTransactionParallel(b *testing.B) {
	f := newFixture(b)
	var mu sync.Mutex
	next := 0
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mu.Lock()
			n := next
			next++
			mu.Unlock()
			if err := f.post(context.Background(), n); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func TestPercentile95(t *testing.T) {
	require.Zero(t, percentile95(nil))
	samples := make([]time.Duration, 0, 20)
	for i := 20; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	require.Equal(t, 19*time.Millisecond, percentile95(samples))
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
