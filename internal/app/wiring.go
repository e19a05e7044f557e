package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-ledger/internal/audit/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/subledger"
)

// AccountStore is the chart of accounts persistence including code lookups.
type AccountStore interface {
	accounts.Store
	mappings.AccountLookup
	mappings.CategoryLookup
}

// AuditStore records audit entries.
type AuditStore interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyStore is the HTTP idempotency store plus retention cleanup.
type IdempotencyStore interface {
	httpx.IdempotencyStore
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Backend bundles the persistence ports of one storage driver.
type Backend struct {
	Query       accounting.QueryPort
	Audit       AuditStore
	AuditLog    audit.Repository
	Accounts    AccountStore
	Periods     periods.Store
	Mappings    mappings.Store
	SubledgerTx subledger.TxPort
	Subledger   subledger.Store
	Reports     reports.Store
	Idempotency IdempotencyStore
	Health      Pinger
}

// PostgresBackend binds every port to pool.
func PostgresBackend(pool *pgxpool.Pool) Backend {
	sub := subledger.NewRepository(pool)
	return Backend{
		Query:       accounting.NewRepository(pool),
		Audit:       shared.NewAuditLogger(pool),
		AuditLog:    audit.NewRepository(pool),
		Accounts:    accounts.NewRepository(pool),
		Periods:     periods.NewRepository(pool),
		Mappings:    mappings.NewRepository(pool),
		SubledgerTx: sub,
		Subledger:   sub,
		Reports:     reports.NewRepository(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Health:      pool,
	}
}

// MemoryBackend binds every port to an in-memory store.
func MemoryBackend(store *memory.Store) Backend {
	return Backend{
		Query:       store,
		Audit:       store,
		AuditLog:    store,
		Accounts:    store.Accounts(),
		Periods:     store.Periods(),
		Mappings:    store.Mappings(),
		SubledgerTx: store,
		Subledger:   store,
		Reports:     store,
		Idempotency: store,
	}
}

// Services holds the wired domain services.
type Services struct {
	Ledger      *accounting.Service
	Accounts    *accounts.Service
	Periods     *periods.Service
	Mappings    *mappings.Service
	Resolver    mappings.Resolver
	Subledger   *subledger.Service
	Integration *integration.Service
	Reports     *reports.Service
	AuditLog    *audit.Service
	Cache       *reports.Cache
	Idempotency IdempotencyStore
	Health      Pinger
}

// NewServices wires the domain services on top of backend. redisClient and
// metrics may be nil.
func NewServices(cfg *Config, backend Backend, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	var cacheMetrics reports.CacheMetrics
	if metrics != nil {
		cacheMetrics = metrics
	}
	cache := reports.NewCache(redisClient, cfg.ReportCacheTTL, cacheMetrics)

	ledger := accounting.NewService(subledger.LedgerPort(backend.SubledgerTx), backend.Query, backend.Audit, logger)
	ledger.WithPolicy(policy)
	ledger.WithInvalidator(cache)
	if metrics != nil {
		ledger.WithMetrics(metrics)
	}

	resolver := mappings.Resolver{Store: backend.Mappings, Lookup: backend.Accounts}
	return &Services{
		Ledger:      ledger,
		Accounts:    accounts.NewService(backend.Accounts, backend.Audit, logger),
		Periods:     periods.NewService(backend.Periods, backend.Audit, logger),
		Mappings:    mappings.NewService(backend.Mappings, backend.Accounts),
		Resolver:    resolver,
		Subledger:   subledger.NewService(backend.SubledgerTx, backend.Subledger, ledger, logger),
		Integration: integration.NewService(ledger, resolver),
		Reports:     reports.NewService(backend.Reports, cache, cfg.FiscalYearStartMonth),
		AuditLog:    audit.NewService(backend.AuditLog),
		Cache:       cache,
		Idempotency: backend.Idempotency,
		Health:      backend.Health,
	}, nil
}

// RouterParams builds the router dependencies for svc.
func (svc *Services) RouterParams(cfg *Config, metrics *observability.Metrics, logger *slog.Logger) RouterParams {
	return RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Health:             svc.Health,
		AccountingHandler:  accounting.NewHandler(logger, svc.Ledger, svc.Idempotency),
		AccountsHandler:    accounts.NewHandler(logger, svc.Accounts),
		PeriodsHandler:     periods.NewHandler(logger, svc.Periods),
		ReportsHandler:     reports.NewHandler(logger, svc.Reports),
		IntegrationHandler: integration.NewHandler(logger, svc.Integration, svc.Idempotency),
		SubledgerHandler:   subledger.NewHandler(logger, svc.Subledger, svc.Idempotency),
		AuditHandler:       audithttp.NewHandler(logger, svc.AuditLog),
	}
}

// SeedMappings loads the default mapping file and writes it for tenantID.
func (svc *Services) SeedMappings(ctx context.Context, tenantID int64, path string) (int, error) {
	defaults, err := mappings.LoadDefaults(path)
	if err != nil {
		return 0, fmt.Errorf("load mappings %s: %w", path, err)
	}
	return svc.Mappings.Seed(ctx, tenantID, defaults)
}
