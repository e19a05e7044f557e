package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TxStore is the mapping lookup used inside a posting unit of work.
type TxStore interface {
	GetMapping(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error)
}

// CategoryLookup finds the fallback account for a category.
type CategoryLookup interface {
	FirstByCategory(ctx context.Context, tenantID int64, category string) (accounts.Account, error)
}

// ResolveAccount returns the mapped account for module/key. When no mapping
// exists and category is set, the lowest-coded account of that category is
// used instead.
func ResolveAccount(ctx context.Context, store TxStore, lookup CategoryLookup, tenantID int64, module, key, category string) (int64, error) {
	m, err := store.GetMapping(ctx, tenantID, module, key)
	if err == nil {
		return m.AccountID, nil
	}
	if !errors.Is(err, shared.ErrMappingNotFound) {
		return 0, err
	}
	if category == "" || lookup == nil {
		return 0, err
	}
	acc, lookupErr := lookup.FirstByCategory(ctx, tenantID, category)
	if lookupErr != nil {
		if errors.Is(lookupErr, shared.ErrAccountNotFound) {
			return 0, err
		}
		return 0, lookupErr
	}
	return acc.ID, nil
}

// ResolveCash returns the cash account for a payment method: the mapping
// CASH/<method>, then CASH/default, then the first CASH category account.
func ResolveCash(ctx context.Context, store TxStore, lookup CategoryLookup, tenantID int64, method string) (int64, error) {
	key := strings.ToLower(strings.TrimSpace(method))
	if key != "" && key != KeyDefault {
		m, err := store.GetMapping(ctx, tenantID, ModuleCash, key)
		if err == nil {
			return m.AccountID, nil
		}
		if !errors.Is(err, shared.ErrMappingNotFound) {
			return 0, err
		}
	}
	return ResolveAccount(ctx, store, lookup, tenantID, ModuleCash, KeyDefault, accounts.CategoryCash)
}

// ResolveControl returns the AR or AP control account: the mapping
// <module>/control, then the first account of the matching category.
func ResolveControl(ctx context.Context, store TxStore, lookup CategoryLookup, tenantID int64, module string) (int64, error) {
	category := accounts.CategoryReceivable
	if strings.EqualFold(module, ModuleAP) {
		category = accounts.CategoryPayable
	}
	id, err := ResolveAccount(ctx, store, lookup, tenantID, strings.ToUpper(module), KeyControl, category)
	if errors.Is(err, shared.ErrMappingNotFound) {
		return 0, fmt.Errorf("%w: %s", shared.ErrControlAccountMissing, strings.ToUpper(module))
	}
	return id, err
}

// Resolver binds mapping resolution to a store and category lookup.
type Resolver struct {
	Store  TxStore
	Lookup CategoryLookup
}

// Account resolves module/key with an optional category fallback.
func (r Resolver) Account(ctx context.Context, tenantID int64, module, key, category string) (int64, error) {
	return ResolveAccount(ctx, r.Store, r.Lookup, tenantID, module, key, category)
}

// Control resolves the AR or AP control account.
func (r Resolver) Control(ctx context.Context, tenantID int64, module string) (int64, error) {
	return ResolveControl(ctx, r.Store, r.Lookup, tenantID, module)
}

// Cash resolves the cash account for a payment method.
func (r Resolver) Cash(ctx context.Context, tenantID int64, method string) (int64, error) {
	return ResolveCash(ctx, r.Store, r.Lookup, tenantID, method)
}

// Store is the persistence port used by Service.
type Store interface {
	TxStore
	UpsertMapping(ctx context.Context, m AccountMapping) error
	ListMappings(ctx context.Context, tenantID int64) ([]AccountMapping, error)
}

// AccountLookup resolves account codes during seeding.
type AccountLookup interface {
	GetByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error)
}

// Service manages account mappings.
type Service struct {
	repo     Store
	accounts AccountLookup
}

// NewService constructs the mapping service.
func NewService(repo Store, lookup AccountLookup) *Service {
	return &Service{repo: repo, accounts: lookup}
}

// Get returns a single mapping.
func (s *Service) Get(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error) {
	return s.repo.GetMapping(ctx, tenantID, module, key)
}

// List returns the tenant's mappings.
func (s *Service) List(ctx context.Context, tenantID int64) ([]AccountMapping, error) {
	return s.repo.ListMappings(ctx, tenantID)
}

// Seed applies the defaults to the tenant, resolving account codes. It
// returns the number of mappings written.
func (s *Service) Seed(ctx context.Context, tenantID int64, defaults Defaults) (int, error) {
	if tenantID <= 0 {
		return 0, fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	written := 0
	for _, entry := range defaults.Mappings {
		acc, err := s.accounts.GetByCode(ctx, tenantID, entry.AccountCode)
		if err != nil {
			return written, fmt.Errorf("mappings: %s/%s: %w", entry.Module, entry.Key, err)
		}
		if err := acc.Postable(); err != nil {
			return written, fmt.Errorf("mappings: %s/%s: %w", entry.Module, entry.Key, err)
		}
		if err := s.repo.UpsertMapping(ctx, AccountMapping{
			TenantID:  tenantID,
			Module:    entry.Module,
			Key:       entry.Key,
			AccountID: acc.ID,
		}); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
