package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Mappings exposes control-account mappings.
type Mappings struct {
	s *Store
}

// Mappings returns the mapping view.
func (s *Store) Mappings() *Mappings {
	return &Mappings{s: s}
}

// GetMapping implements mappings.TxStore.
func (st *state) GetMapping(ctx context.Context, tenantID int64, module, key string) (mappings.AccountMapping, error) {
	if module == "" || key == "" {
		return mappings.AccountMapping{}, fmt.Errorf("%w: module and key required", shared.ErrValidation)
	}
	m, ok := st.mappings[mappingKey{tenantID, strings.ToUpper(module), key}]
	if !ok {
		return mappings.AccountMapping{}, fmt.Errorf("%w %s/%s", shared.ErrMappingNotFound, module, key)
	}
	return m, nil
}

// GetMapping implements mappings.Store.
func (r *Mappings) GetMapping(ctx context.Context, tenantID int64, module, key string) (m mappings.AccountMapping, err error) {
	err = r.s.view(func(st *state) error {
		m, err = st.GetMapping(ctx, tenantID, module, key)
		return err
	})
	return m, err
}

// UpsertMapping implements mappings.Store.
func (r *Mappings) UpsertMapping(ctx context.Context, m mappings.AccountMapping) error {
	return r.s.write(func(st *state) error {
		m.Module = strings.ToUpper(m.Module)
		k := mappingKey{m.TenantID, m.Module, m.Key}
		now := st.now()
		if existing, ok := st.mappings[k]; ok {
			m.CreatedAt = existing.CreatedAt
		} else {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
		st.mappings[k] = m
		return nil
	})
}

// ListMappings implements mappings.Store.
func (r *Mappings) ListMappings(ctx context.Context, tenantID int64) (out []mappings.AccountMapping, err error) {
	err = r.s.view(func(st *state) error {
		for k, m := range st.mappings {
			if k.tenantID == tenantID {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Key < out[j].Key
	})
	return out, err
}
