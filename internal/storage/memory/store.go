// Package memory implements every ledger storage port in process. Units of
// work run against a copy of the state and replace it on success, so a failed
// posting leaves nothing behind. Writers are serialised by a single mutex.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/subledger"
)

type numberKey struct {
	tenantID int64
	number   string
}

type mappingKey struct {
	tenantID int64
	module   string
	key      string
}

type idempotencyKey struct {
	tenantID int64
	key      string
	module   string
}

type idempotencyRecord struct {
	fingerprint string
	response    *core.IdempotentResponse
	createdAt   time.Time
}

// state is one consistent version of the data. Stored values are replaced,
// never mutated in place, so a shallow clone isolates a unit of work.
type state struct {
	now func() time.Time
	seq int64

	accounts       map[int64]accounts.Account
	periods        map[int64]periods.Period
	mappings       map[mappingKey]mappings.AccountMapping
	transactions   map[int64]accounting.Transaction
	numbers        map[numberKey]int64
	vouchers       map[int64]accounting.Voucher // by transaction id
	entries        map[int64]accounting.GLEntry // by transaction id
	counterparties map[int64]subledger.Counterparty
	documents      map[int64]subledger.Document
	payments       map[int64]subledger.Payment
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

func (st *state) clone() *state {
	return &state{
		now:            st.now,
		seq:            st.seq,
		accounts:       maps.Clone(st.accounts),
		periods:        maps.Clone(st.periods),
		mappings:       maps.Clone(st.mappings),
		transactions:   maps.Clone(st.transactions),
		numbers:        maps.Clone(st.numbers),
		vouchers:       maps.Clone(st.vouchers),
		entries:        maps.Clone(st.entries),
		counterparties: maps.Clone(st.counterparties),
		documents:      maps.Clone(st.documents),
		payments:       maps.Clone(st.payments),
	}
}

// Store is the in-memory backend.
type Store struct {
	mu          sync.Mutex
	st          *state
	audit       []core.AuditLog
	idempotency map[idempotencyKey]idempotencyRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		st: &state{
			now:            time.Now,
			accounts:       map[int64]accounts.Account{},
			periods:        map[int64]periods.Period{},
			mappings:       map[mappingKey]mappings.AccountMapping{},
			transactions:   map[int64]accounting.Transaction{},
			numbers:        map[numberKey]int64{},
			vouchers:       map[int64]accounting.Voucher{},
			entries:        map[int64]accounting.GLEntry{},
			counterparties: map[int64]subledger.Counterparty{},
			documents:      map[int64]subledger.Document{},
			payments:       map[int64]subledger.Payment{},
		},
		idempotency: map[idempotencyKey]idempotencyRecord{},
	}
}

// WithNow overrides the clock used for timestamps.
func (s *Store) WithNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.st.now = now
	}
}

// WithTx runs fn on a private copy of the state and publishes it when fn
// succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, subledger.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Ledger returns the posting engine's unit-of-work port.
func (s *Store) Ledger() accounting.RepositoryPort {
	return subledger.LedgerPort(s)
}

func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// write mutates the state outside a unit of work; single statements are
// atomic on their own.
func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

var (
	_ subledger.TxRepository = (*state)(nil)
	_ subledger.TxPort       = (*Store)(nil)
	_ subledger.Store        = (*Store)(nil)
	_ accounting.QueryPort   = (*Store)(nil)
	_ accounts.Store         = (*Accounts)(nil)
	_ periods.Store          = (*Periods)(nil)
	_ mappings.Store         = (*Mappings)(nil)
)
