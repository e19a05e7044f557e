package reports

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const dateKey = "2006-01-02"

// Store loads aggregated balances.
type Store interface {
	// Balances returns every postable account of the tenant aggregated over r.
	Balances(ctx context.Context, tenantID int64, r Range) ([]AccountBalance, error)
	// AccountBalance aggregates one account over r.
	AccountBalance(ctx context.Context, tenantID, accountID int64, r Range) (AccountBalance, error)
}

// Balance is the normal-side view of one account over a range.
type Balance struct {
	AccountID   int64           `json:"account_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	NormalSide  shared.Side     `json:"normal_side"`
	From        *time.Time      `json:"from,omitempty"`
	To          time.Time       `json:"to"`
	Opening     decimal.Decimal `json:"opening"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balance     decimal.Decimal `json:"balance"`
	Closing     decimal.Decimal `json:"closing"`
}

// Service builds financial reports on top of Store.
type Service struct {
	store       Store
	cache       *Cache
	fiscalStart time.Month
}

// NewService wires a Store with a Cache helper. cache may be nil.
func NewService(store Store, cache *Cache, fiscalStartMonth int) *Service {
	return &Service{store: store, cache: cache, fiscalStart: time.Month(fiscalStartMonth)}
}

func (r Range) validate() error {
	if r.To.IsZero() {
		return fmt.Errorf("%w: end date required", shared.ErrValidation)
	}
	if !r.From.IsZero() && r.From.After(r.To) {
		return fmt.Errorf("%w: start date after end date", shared.ErrValidation)
	}
	return nil
}

func (r Range) key() []string {
	from := "-"
	if !r.From.IsZero() {
		from = r.From.Format(dateKey)
	}
	return []string{from, r.To.Format(dateKey)}
}

// AccountBalance returns debit and credit totals of the account over r and
// its balance on the account's normal side.
func (s *Service) AccountBalance(ctx context.Context, tenantID, accountID int64, r Range) (Balance, error) {
	if err := r.validate(); err != nil {
		return Balance{}, err
	}
	parts := append([]string{strconv.FormatInt(accountID, 10)}, r.key()...)
	return fetch(ctx, s.cache, tenantID, "account_balance", parts, func(ctx context.Context) (Balance, error) {
		acc, err := s.store.AccountBalance(ctx, tenantID, accountID, r)
		if err != nil {
			return Balance{}, err
		}
		side := acc.NormalSide
		if side == "" {
			side = acc.Type.NormalSide()
		}
		out := Balance{
			AccountID:   acc.AccountID,
			Code:        acc.Code,
			Name:        acc.Name,
			NormalSide:  side,
			To:          r.To,
			Opening:     shared.SignedBalance(side, acc.Opening),
			TotalDebit:  acc.Debit,
			TotalCredit: acc.Credit,
			Balance:     shared.SignedBalance(side, acc.Movement()),
			Closing:     shared.SignedBalance(side, acc.Closing()),
		}
		if !r.From.IsZero() {
			from := r.From
			out.From = &from
		}
		return out, nil
	})
}

// TrialBalance lists every postable account as of asOf.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) (TrialBalance, error) {
	r := Range{To: asOf}
	if err := r.validate(); err != nil {
		return TrialBalance{}, err
	}
	return fetch(ctx, s.cache, tenantID, "trial_balance", r.key(), func(ctx context.Context) (TrialBalance, error) {
		balances, err := s.store.Balances(ctx, tenantID, r)
		if err != nil {
			return TrialBalance{}, err
		}
		tb := BuildTrialBalance(balances)
		tb.AsOf = asOf
		return tb, nil
	})
}

// IncomeStatement reports revenue, expense and net income over r.
func (s *Service) IncomeStatement(ctx context.Context, tenantID int64, r Range) (ProfitAndLoss, error) {
	if err := r.validate(); err != nil {
		return ProfitAndLoss{}, err
	}
	return fetch(ctx, s.cache, tenantID, "income_statement", r.key(), func(ctx context.Context) (ProfitAndLoss, error) {
		balances, err := s.store.Balances(ctx, tenantID, r)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		pl := BuildProfitAndLoss(balances)
		pl.From, pl.To = r.From, r.To
		return pl, nil
	})
}

// BalanceSheet reports assets, liabilities and equity as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, tenantID int64, asOf time.Time) (BalanceSheet, error) {
	closingRange := Range{To: asOf}
	if err := closingRange.validate(); err != nil {
		return BalanceSheet{}, err
	}
	start := FiscalYearStart(asOf, s.fiscalStart)
	return fetch(ctx, s.cache, tenantID, "balance_sheet", closingRange.key(), func(ctx context.Context) (BalanceSheet, error) {
		var closing, current []AccountBalance
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			closing, err = s.store.Balances(gctx, tenantID, closingRange)
			return err
		})
		g.Go(func() error {
			var err error
			current, err = s.store.Balances(gctx, tenantID, Range{From: start, To: asOf})
			return err
		})
		if err := g.Wait(); err != nil {
			return BalanceSheet{}, err
		}
		bs := BuildBalanceSheet(closing, current)
		bs.AsOf = asOf
		bs.FiscalYearStart = start
		return bs, nil
	})
}
