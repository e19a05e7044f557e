package memory

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Periods exposes accounting periods.
type Periods struct {
	s *Store
}

// Periods returns the period manager view.
func (s *Store) Periods() *Periods {
	return &Periods{s: s}
}

// FindByMonth implements periods.TxStore.
func (st *state) FindByMonth(ctx context.Context, tenantID int64, year int, month time.Month) (periods.Period, error) {
	for _, p := range st.periods {
		if p.TenantID == tenantID && p.Year == year && p.Month == month {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrPeriodNotFound
}

// EnsurePeriod implements periods.TxStore.
func (st *state) EnsurePeriod(ctx context.Context, p periods.Period) (periods.Period, error) {
	if existing, err := st.FindByMonth(ctx, p.TenantID, p.Year, p.Month); err == nil {
		return existing, nil
	}
	now := st.now()
	p.ID = st.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	st.periods[p.ID] = p
	return p, nil
}

// FindByMonth implements periods.Store.
func (r *Periods) FindByMonth(ctx context.Context, tenantID int64, year int, month time.Month) (p periods.Period, err error) {
	err = r.s.view(func(st *state) error {
		p, err = st.FindByMonth(ctx, tenantID, year, month)
		return err
	})
	return p, err
}

// EnsurePeriod implements periods.Store.
func (r *Periods) EnsurePeriod(ctx context.Context, in periods.Period) (p periods.Period, err error) {
	err = r.s.write(func(st *state) error {
		p, err = st.EnsurePeriod(ctx, in)
		return err
	})
	return p, err
}

// Get implements periods.Store.
func (r *Periods) Get(ctx context.Context, tenantID, id int64) (p periods.Period, err error) {
	err = r.s.view(func(st *state) error {
		found, ok := st.periods[id]
		if !ok || found.TenantID != tenantID {
			return shared.ErrPeriodNotFound
		}
		p = found
		return nil
	})
	return p, err
}

// List implements periods.Store.
func (r *Periods) List(ctx context.Context, tenantID int64) (out []periods.Period, err error) {
	err = r.s.view(func(st *state) error {
		for _, p := range st.periods {
			if p.TenantID == tenantID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, err
}

// UpdateStatus implements periods.Store.
func (r *Periods) UpdateStatus(ctx context.Context, tenantID, id int64, from, to periods.PeriodStatus, actorID int64, at time.Time) (out periods.Period, err error) {
	err = r.s.write(func(st *state) error {
		p, ok := st.periods[id]
		if !ok || p.TenantID != tenantID || p.Status != from {
			return shared.ErrInvalidStatus
		}
		p.Status = to
		p.ClosedAt, p.ClosedBy = nil, nil
		if to == periods.PeriodStatusClosed {
			closedAt, closedBy := at, actorID
			p.ClosedAt, p.ClosedBy = &closedAt, &closedBy
		}
		p.UpdatedAt = st.now()
		st.periods[id] = p
		out = p
		return nil
	})
	return out, err
}

// Tenants implements periods.Store.
func (r *Periods) Tenants(ctx context.Context) (out []int64, err error) {
	err = r.s.view(func(st *state) error {
		seen := map[int64]bool{}
		for _, a := range st.accounts {
			if !seen[a.TenantID] {
				seen[a.TenantID] = true
				out = append(out, a.TenantID)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}
