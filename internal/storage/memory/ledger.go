package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TransactionNumberExists implements accounting.TxRepository.
func (st *state) TransactionNumberExists(ctx context.Context, tenantID int64, number string) (bool, error) {
	_, ok := st.numbers[numberKey{tenantID, number}]
	return ok, nil
}

// InsertTransaction implements accounting.TxRepository.
func (st *state) InsertTransaction(ctx context.Context, txn accounting.Transaction) (accounting.Transaction, error) {
	key := numberKey{txn.TenantID, txn.Number}
	if _, ok := st.numbers[key]; ok {
		return accounting.Transaction{}, fmt.Errorf("%w: %s", shared.ErrDuplicatePosting, txn.Number)
	}
	if txn.CounterpartyID != nil {
		if c, ok := st.counterparties[*txn.CounterpartyID]; !ok || c.TenantID != txn.TenantID {
			return accounting.Transaction{}, fmt.Errorf("%w %d", shared.ErrCounterpartyNotFound, *txn.CounterpartyID)
		}
	}
	txn.ID = st.nextID()
	txn.Lines = slices.Clone(txn.Lines)
	for i := range txn.Lines {
		txn.Lines[i].ID = st.nextID()
		txn.Lines[i].TransactionID = txn.ID
	}
	st.transactions[txn.ID] = txn
	st.numbers[key] = txn.ID
	return txn, nil
}

// InsertVoucher implements accounting.TxRepository.
func (st *state) InsertVoucher(ctx context.Context, v accounting.Voucher) (accounting.Voucher, error) {
	if _, ok := st.transactions[v.TransactionID]; !ok {
		return accounting.Voucher{}, fmt.Errorf("%w: voucher references unknown transaction %d", shared.ErrIntegrity, v.TransactionID)
	}
	v.ID = st.nextID()
	v.Lines = slices.Clone(v.Lines)
	for i := range v.Lines {
		v.Lines[i].ID = st.nextID()
		v.Lines[i].VoucherID = v.ID
	}
	st.vouchers[v.TransactionID] = v
	return v, nil
}

func (st *state) voucherByID(id int64) (accounting.Voucher, bool) {
	for _, v := range st.vouchers {
		if v.ID == id {
			return v, true
		}
	}
	return accounting.Voucher{}, false
}

// InsertGLEntry implements accounting.TxRepository.
func (st *state) InsertGLEntry(ctx context.Context, e accounting.GLEntry) (accounting.GLEntry, error) {
	v, ok := st.voucherByID(e.VoucherID)
	if !ok {
		return accounting.GLEntry{}, fmt.Errorf("%w: entry references unknown voucher %d", shared.ErrIntegrity, e.VoucherID)
	}
	e.ID = st.nextID()
	e.Lines = slices.Clone(e.Lines)
	for i := range e.Lines {
		e.Lines[i].ID = st.nextID()
		e.Lines[i].EntryID = e.ID
	}
	st.entries[v.TransactionID] = e
	return e, nil
}

func (st *state) transaction(tenantID, id int64) (accounting.Transaction, error) {
	txn, ok := st.transactions[id]
	if !ok || txn.TenantID != tenantID {
		return accounting.Transaction{}, fmt.Errorf("%w %d", shared.ErrTransactionNotFound, id)
	}
	return txn, nil
}

// LockTransaction implements accounting.TxRepository.
func (st *state) LockTransaction(ctx context.Context, tenantID, id int64) (accounting.Transaction, error) {
	return st.transaction(tenantID, id)
}

// LoadGLEntry implements accounting.TxRepository.
func (st *state) LoadGLEntry(ctx context.Context, tenantID, transactionID int64) (accounting.GLEntry, error) {
	e, ok := st.entries[transactionID]
	if !ok || e.TenantID != tenantID {
		return accounting.GLEntry{}, fmt.Errorf("%w: ledger entry for transaction %d", shared.ErrIntegrity, transactionID)
	}
	return e, nil
}

// MarkTransactionVoid implements accounting.TxRepository.
func (st *state) MarkTransactionVoid(ctx context.Context, tenantID, id, actorID int64, reason string, at time.Time) error {
	txn, err := st.transaction(tenantID, id)
	if err != nil {
		return err
	}
	if txn.IsVoid {
		return shared.ErrAlreadyVoid
	}
	voidedAt := at
	txn.IsVoid = true
	txn.VoidedAt = &voidedAt
	if actorID != 0 {
		voidedBy := actorID
		txn.VoidedBy = &voidedBy
	}
	txn.VoidReason = reason
	st.transactions[id] = txn
	return nil
}

// CancelPosting implements accounting.TxRepository.
func (st *state) CancelPosting(ctx context.Context, tenantID, transactionID int64) error {
	if v, ok := st.vouchers[transactionID]; ok && v.TenantID == tenantID {
		v.Status = accounting.VoucherCancelled
		v.IsPosted = false
		st.vouchers[transactionID] = v
	}
	if e, ok := st.entries[transactionID]; ok && e.TenantID == tenantID {
		e.IsPosted = false
		st.entries[transactionID] = e
	}
	return nil
}

// SetPaymentStatus implements accounting.TxRepository.
func (st *state) SetPaymentStatus(ctx context.Context, tenantID, id int64, status accounting.PaymentStatus) error {
	txn, err := st.transaction(tenantID, id)
	if err != nil {
		return err
	}
	txn.PaymentStatus = status
	st.transactions[id] = txn
	return nil
}

// FindTransaction implements accounting.QueryPort.
func (s *Store) FindTransaction(ctx context.Context, tenantID, id int64) (out accounting.Posting, err error) {
	err = s.view(func(st *state) error {
		txn, err := st.transaction(tenantID, id)
		if err != nil {
			return err
		}
		v, ok := st.vouchers[id]
		if !ok {
			return fmt.Errorf("%w: voucher for transaction %d", shared.ErrIntegrity, id)
		}
		e, err := st.LoadGLEntry(ctx, tenantID, id)
		if err != nil {
			return err
		}
		out = accounting.Posting{Transaction: txn, Voucher: v, Entry: e}
		return nil
	})
	return out, err
}

// ListTransactions implements accounting.QueryPort.
func (s *Store) ListTransactions(ctx context.Context, tenantID int64, filter accounting.ListFilter, limit, offset int) ([]accounting.Transaction, int, error) {
	var matched []accounting.Transaction
	_ = s.view(func(st *state) error {
		for _, txn := range st.transactions {
			if txn.TenantID != tenantID {
				continue
			}
			if filter.Type != "" && txn.Type != filter.Type {
				continue
			}
			if filter.From != nil && txn.Date.Before(*filter.From) {
				continue
			}
			if filter.To != nil && txn.Date.After(*filter.To) {
				continue
			}
			if txn.IsVoid && !filter.IncludeVoid {
				continue
			}
			txn.Lines = nil
			matched = append(matched, txn)
		}
		return nil
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

// UnbalancedVouchers implements accounting.QueryPort.
func (s *Store) UnbalancedVouchers(ctx context.Context, tenantID int64) (out []accounting.VoucherImbalance, err error) {
	err = s.view(func(st *state) error {
		for _, v := range st.vouchers {
			if v.TenantID != tenantID || !v.IsPosted {
				continue
			}
			debit, credit := decimal.Zero, decimal.Zero
			for _, l := range v.Lines {
				debit = debit.Add(l.Debit)
				credit = credit.Add(l.Credit)
			}
			if !shared.Balanced(debit, credit) {
				out = append(out, accounting.VoucherImbalance{VoucherID: v.ID, Number: v.Number, TotalDebit: debit, TotalCredit: credit})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].VoucherID < out[j].VoucherID })
	return out, err
}

// BalanceDrift implements accounting.QueryPort.
func (s *Store) BalanceDrift(ctx context.Context, tenantID int64) (out []accounting.BalanceDrift, err error) {
	err = s.view(func(st *state) error {
		net := map[int64]decimal.Decimal{}
		for _, e := range st.entries {
			if e.TenantID != tenantID || !e.IsPosted {
				continue
			}
			for _, l := range e.Lines {
				net[l.AccountID] = net[l.AccountID].Add(l.Effect())
			}
		}
		for _, a := range st.tenantAccounts(tenantID) {
			expected := a.OpeningBalance.Add(net[a.ID])
			if !a.Balance.Equal(expected) {
				out = append(out, accounting.BalanceDrift{AccountID: a.ID, Code: a.Code, Stored: a.Balance, Expected: expected})
			}
		}
		return nil
	})
	return out, err
}

// CorruptBalance overwrites an account's running balance. It exists so
// integrity checks can be exercised.
func (s *Store) CorruptBalance(tenantID, accountID int64, balance decimal.Decimal) error {
	return s.write(func(st *state) error {
		a, err := st.account(tenantID, accountID)
		if err != nil {
			return err
		}
		a.Balance = balance
		st.accounts[accountID] = a
		return nil
	})
}
