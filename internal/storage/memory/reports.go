package memory

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func (st *state) aggregate(a accounts.Account, r reports.Range) reports.AccountBalance {
	b := reports.AccountBalance{
		AccountID:  a.ID,
		Code:       a.Code,
		Name:       a.Name,
		Type:       a.Type,
		NormalSide: a.NormalSide,
		Opening:    a.OpeningBalance,
	}
	for _, e := range st.entries {
		if e.TenantID != a.TenantID || !e.IsPosted || e.Date.After(r.To) {
			continue
		}
		before := !r.From.IsZero() && e.Date.Before(r.From)
		for _, l := range e.Lines {
			if l.AccountID != a.ID {
				continue
			}
			if before {
				b.Opening = b.Opening.Add(l.Effect())
				continue
			}
			b.Debit = b.Debit.Add(l.Debit)
			b.Credit = b.Credit.Add(l.Credit)
		}
	}
	return b
}

// Balances implements reports.Store.
func (s *Store) Balances(ctx context.Context, tenantID int64, r reports.Range) (out []reports.AccountBalance, err error) {
	err = s.view(func(st *state) error {
		for _, a := range st.tenantAccounts(tenantID) {
			if a.IsHeader {
				continue
			}
			out = append(out, st.aggregate(a, r))
		}
		return nil
	})
	return out, err
}

// AccountBalance implements reports.Store.
func (s *Store) AccountBalance(ctx context.Context, tenantID, accountID int64, r reports.Range) (out reports.AccountBalance, err error) {
	err = s.view(func(st *state) error {
		a, err := st.account(tenantID, accountID)
		if err != nil {
			return err
		}
		if a.IsHeader {
			return fmt.Errorf("%w %d", shared.ErrAccountNotFound, accountID)
		}
		out = st.aggregate(a, r)
		return nil
	})
	return out, err
}

var _ reports.Store = (*Store)(nil)
