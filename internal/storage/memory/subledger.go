package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/subledger"
)

func (st *state) counterparty(tenantID, id int64) (subledger.Counterparty, error) {
	c, ok := st.counterparties[id]
	if !ok || c.TenantID != tenantID {
		return subledger.Counterparty{}, fmt.Errorf("%w %d", shared.ErrCounterpartyNotFound, id)
	}
	return c, nil
}

func (st *state) document(tenantID, id int64) (subledger.Document, error) {
	d, ok := st.documents[id]
	if !ok || d.TenantID != tenantID {
		return subledger.Document{}, fmt.Errorf("%w %d", shared.ErrDocumentNotFound, id)
	}
	return d, nil
}

// GetCounterparty implements subledger.TxRepository.
func (st *state) GetCounterparty(ctx context.Context, tenantID, id int64) (subledger.Counterparty, error) {
	return st.counterparty(tenantID, id)
}

// InsertDocument implements subledger.TxRepository.
func (st *state) InsertDocument(ctx context.Context, d subledger.Document) (subledger.Document, error) {
	if _, err := st.counterparty(d.TenantID, d.CounterpartyID); err != nil {
		return subledger.Document{}, err
	}
	for _, existing := range st.documents {
		if existing.TransactionID == d.TransactionID {
			return subledger.Document{}, fmt.Errorf("%w: transaction %d already has a document", shared.ErrConflict, d.TransactionID)
		}
	}
	now := st.now()
	d.ID = st.nextID()
	d.CreatedAt, d.UpdatedAt = now, now
	st.documents[d.ID] = d
	return d, nil
}

// LockDocument implements subledger.TxRepository.
func (st *state) LockDocument(ctx context.Context, tenantID, id int64) (subledger.Document, error) {
	return st.document(tenantID, id)
}

// LockDocumentByTransaction implements subledger.TxRepository.
func (st *state) LockDocumentByTransaction(ctx context.Context, tenantID, transactionID int64) (subledger.Document, error) {
	for _, d := range st.documents {
		if d.TenantID == tenantID && d.TransactionID == transactionID {
			return d, nil
		}
	}
	return subledger.Document{}, fmt.Errorf("%w for transaction %d", shared.ErrDocumentNotFound, transactionID)
}

// UpdateDocument implements subledger.TxRepository.
func (st *state) UpdateDocument(ctx context.Context, d subledger.Document) error {
	current, err := st.document(d.TenantID, d.ID)
	if err != nil {
		return err
	}
	current.Paid, current.Remaining, current.Status = d.Paid, d.Remaining, d.Status
	current.UpdatedAt = st.now()
	st.documents[d.ID] = current
	return nil
}

// CountPayments implements subledger.TxRepository.
func (st *state) CountPayments(ctx context.Context, tenantID, documentID int64) (int, error) {
	n := 0
	for _, p := range st.payments {
		if p.TenantID == tenantID && p.DocumentID == documentID && p.VoidedAt == nil {
			n++
		}
	}
	return n, nil
}

// InsertPayment implements subledger.TxRepository.
func (st *state) InsertPayment(ctx context.Context, p subledger.Payment) (subledger.Payment, error) {
	if _, err := st.document(p.TenantID, p.DocumentID); err != nil {
		return subledger.Payment{}, err
	}
	p.ID = st.nextID()
	p.CreatedAt = st.now()
	st.payments[p.ID] = p
	return p, nil
}

// PaymentByTransaction implements subledger.TxRepository.
func (st *state) PaymentByTransaction(ctx context.Context, tenantID, transactionID int64) (subledger.Payment, error) {
	for _, p := range st.payments {
		if p.TenantID == tenantID && p.TransactionID == transactionID {
			return p, nil
		}
	}
	return subledger.Payment{}, fmt.Errorf("%w: payment for transaction %d", shared.ErrNotFound, transactionID)
}

// VoidPayment implements subledger.TxRepository.
func (st *state) VoidPayment(ctx context.Context, tenantID, id int64, at time.Time) error {
	p, ok := st.payments[id]
	if !ok || p.TenantID != tenantID || p.VoidedAt != nil {
		return nil
	}
	voidedAt := at
	p.VoidedAt = &voidedAt
	st.payments[id] = p
	return nil
}

// InsertCounterparty implements subledger.Store.
func (s *Store) InsertCounterparty(ctx context.Context, c subledger.Counterparty) (out subledger.Counterparty, err error) {
	err = s.write(func(st *state) error {
		c.ID = st.nextID()
		c.CreatedAt = st.now()
		st.counterparties[c.ID] = c
		out = c
		return nil
	})
	return out, err
}

// ListCounterparties implements subledger.Store.
func (s *Store) ListCounterparties(ctx context.Context, tenantID int64, kind subledger.CounterpartyKind) (out []subledger.Counterparty, err error) {
	err = s.view(func(st *state) error {
		for _, c := range st.counterparties {
			if c.TenantID == tenantID && (kind == "" || c.Kind == kind) {
				out = append(out, c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// FindDocument implements subledger.Store.
func (s *Store) FindDocument(ctx context.Context, tenantID, id int64) (d subledger.Document, err error) {
	err = s.view(func(st *state) error {
		d, err = st.document(tenantID, id)
		return err
	})
	return d, err
}

// ListDocuments implements subledger.Store.
func (s *Store) ListDocuments(ctx context.Context, tenantID int64, filter subledger.DocumentFilter) (out []subledger.Document, err error) {
	err = s.view(func(st *state) error {
		for _, d := range st.documents {
			if d.TenantID != tenantID {
				continue
			}
			if filter.Kind != "" && d.Kind != filter.Kind {
				continue
			}
			if filter.Status != "" && d.Status != filter.Status {
				continue
			}
			if filter.CounterpartyID > 0 && d.CounterpartyID != filter.CounterpartyID {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ListPayments implements subledger.Store.
func (s *Store) ListPayments(ctx context.Context, tenantID, documentID int64) (out []subledger.Payment, err error) {
	err = s.view(func(st *state) error {
		for _, p := range st.payments {
			if p.TenantID == tenantID && p.DocumentID == documentID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
