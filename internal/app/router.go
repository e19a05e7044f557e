package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	audithttp "github.com/odyssey-erp/odyssey-ledger/internal/audit/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/subledger"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	Health             Pinger
	AccountingHandler  *accounting.Handler
	AccountsHandler    *accounts.Handler
	PeriodsHandler     *periods.Handler
	ReportsHandler     *reports.Handler
	IntegrationHandler *integration.Handler
	SubledgerHandler   *subledger.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Health.Ping(ctx); err != nil {
				params.Logger.Warn("health check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireIdentity)

		if params.AccountsHandler != nil {
			r.Route("/accounts", func(r chi.Router) {
				params.AccountsHandler.MountRoutes(r)
				if params.ReportsHandler != nil {
					r.Get("/{id}/balance", params.ReportsHandler.AccountBalance)
				}
			})
		}
		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.AccountingHandler != nil {
			r.Route("/transactions", params.AccountingHandler.MountRoutes)
		}
		if params.IntegrationHandler != nil {
			r.Route("/events", params.IntegrationHandler.MountRoutes)
		}
		if params.SubledgerHandler != nil {
			r.Route("/counterparties", params.SubledgerHandler.MountCounterparties)
			r.Route("/documents", params.SubledgerHandler.MountDocuments)
		}
		if params.AuditHandler != nil {
			r.Route("/audit-logs", params.AuditHandler.MountRoutes)
		}
		r.Route("/reports", func(r chi.Router) {
			if params.ReportsHandler != nil {
				params.ReportsHandler.MountRoutes(r)
			}
			if params.SubledgerHandler != nil {
				r.Get("/aging", params.SubledgerHandler.Aging)
			}
		})
	})

	return r
}
