package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Accounts exposes the chart of accounts.
type Accounts struct {
	s *Store
}

// Accounts returns the account registry view.
func (s *Store) Accounts() *Accounts {
	return &Accounts{s: s}
}

func (st *state) account(tenantID, id int64) (accounts.Account, error) {
	a, ok := st.accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, fmt.Errorf("%w %d", shared.ErrAccountNotFound, id)
	}
	return a, nil
}

func (st *state) tenantAccounts(tenantID int64) []accounts.Account {
	var out []accounts.Account
	for _, a := range st.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (st *state) hasLedgerLines(tenantID, accountID int64) bool {
	for _, e := range st.entries {
		if e.TenantID != tenantID {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				return true
			}
		}
	}
	return false
}

// Get implements accounts.Store.
func (r *Accounts) Get(ctx context.Context, tenantID, id int64) (a accounts.Account, err error) {
	err = r.s.view(func(st *state) error {
		a, err = st.account(tenantID, id)
		return err
	})
	return a, err
}

// GetByCode implements mappings.AccountLookup.
func (r *Accounts) GetByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.view(func(st *state) error {
		for _, a := range st.accounts {
			if a.TenantID == tenantID && a.Code == code {
				out = a
				return nil
			}
		}
		return fmt.Errorf("%w: code %s", shared.ErrAccountNotFound, code)
	})
	return out, err
}

// FirstByCategory implements mappings.CategoryLookup.
func (r *Accounts) FirstByCategory(ctx context.Context, tenantID int64, category string) (a accounts.Account, err error) {
	err = r.s.view(func(st *state) error {
		a, err = st.FirstByCategory(ctx, tenantID, category)
		return err
	})
	return a, err
}

// List implements accounts.Store.
func (r *Accounts) List(ctx context.Context, tenantID int64) (out []accounts.Account, err error) {
	err = r.s.view(func(st *state) error {
		out = st.tenantAccounts(tenantID)
		return nil
	})
	return out, err
}

// Insert implements accounts.Store.
func (r *Accounts) Insert(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	err := r.s.write(func(st *state) error {
		for _, existing := range st.accounts {
			if existing.TenantID == a.TenantID && existing.Code == a.Code {
				return shared.ErrDuplicateCode
			}
		}
		if a.ParentID != nil {
			if _, err := st.account(a.TenantID, *a.ParentID); err != nil {
				return err
			}
		}
		now := st.now()
		a.ID = st.nextID()
		a.Balance = a.OpeningBalance
		a.CreatedAt, a.UpdatedAt = now, now
		st.accounts[a.ID] = a
		return nil
	})
	if err != nil {
		return accounts.Account{}, err
	}
	return a, nil
}

// Delete implements accounts.Store.
func (r *Accounts) Delete(ctx context.Context, tenantID, id int64) error {
	return r.s.write(func(st *state) error {
		if _, err := st.account(tenantID, id); err != nil {
			return err
		}
		if st.hasLedgerLines(tenantID, id) {
			return shared.ErrAccountInUse
		}
		delete(st.accounts, id)
		return nil
	})
}

// HasLedgerLines implements accounts.Store.
func (r *Accounts) HasLedgerLines(ctx context.Context, tenantID, id int64) (found bool, err error) {
	err = r.s.view(func(st *state) error {
		found = st.hasLedgerLines(tenantID, id)
		return nil
	})
	return found, err
}

// HasChildren implements accounts.Store.
func (r *Accounts) HasChildren(ctx context.Context, tenantID, id int64) (found bool, err error) {
	err = r.s.view(func(st *state) error {
		for _, a := range st.accounts {
			if a.TenantID == tenantID && a.ParentID != nil && *a.ParentID == id {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// SetActive implements accounts.Store.
func (r *Accounts) SetActive(ctx context.Context, tenantID, id int64, active bool) (out accounts.Account, err error) {
	err = r.s.write(func(st *state) error {
		a, err := st.account(tenantID, id)
		if err != nil {
			return err
		}
		a.IsActive = active
		a.UpdatedAt = st.now()
		st.accounts[id] = a
		out = a
		return nil
	})
	return out, err
}

// LockForPosting implements accounts.LedgerStore. Missing ids are absent
// from the result.
func (st *state) LockForPosting(ctx context.Context, tenantID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if a, err := st.account(tenantID, id); err == nil {
			out[id] = a
		}
	}
	return out, nil
}

// ApplyDelta implements accounts.LedgerStore.
func (st *state) ApplyDelta(ctx context.Context, tenantID, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	a, err := st.account(tenantID, id)
	if err != nil {
		return decimal.Zero, err
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = st.now()
	st.accounts[id] = a
	return a.Balance, nil
}

// FirstByCategory implements accounts.LedgerStore.
func (st *state) FirstByCategory(ctx context.Context, tenantID int64, category string) (accounts.Account, error) {
	for _, a := range st.tenantAccounts(tenantID) {
		if a.Category == category && a.IsActive && !a.IsHeader {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: category %s", shared.ErrAccountNotFound, category)
}
