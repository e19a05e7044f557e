package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/storage/memory"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	"github.com/odyssey-erp/odyssey-ledger/migrations"
)

const usage = `usage: odyssey <command> [args]

commands:
  serve                                   run the HTTP API (default)
  migrate                                 apply database migrations
  seed-mappings <tenant>                  write default account mappings
  report trial-balance <tenant> [as-of]   print the trial balance
  integrity [tenant]                      check voucher balance and running balances
  jobs trigger <name> [tenant]            enqueue a background job
  jobs stats                              show queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	os.Exit(run(ctx, cfg, logger, command, args))
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string) int {
	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return migrate(cfg, logger)
	case "seed-mappings":
		return withRuntime(ctx, cfg, logger, func(rt *runtime) int { return seedMappings(ctx, cfg, rt, args) })
	case "report":
		return withRuntime(ctx, cfg, logger, func(rt *runtime) int { return report(ctx, rt, args) })
	case "integrity":
		return withRuntime(ctx, cfg, logger, func(rt *runtime) int { return integrity(ctx, rt, args) })
	case "jobs":
		return jobsCommand(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

// runtime holds the wired services and their release hooks.
type runtime struct {
	services *app.Services
	metrics  *observability.Metrics
	tenants  cli.TenantLister
	closers  []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func openRuntime(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{metrics: observability.NewMetrics()}

	var backend app.Backend
	switch cfg.StoreDriver {
	case app.DriverMemory:
		store := memory.New()
		backend = app.MemoryBackend(store)
		rt.tenants = store.Periods()
	default:
		if cfg.MigrateOnStart {
			if code := migrate(cfg, logger); code != 0 {
				return nil, errors.New("migrations failed")
			}
		}
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		backend = app.PostgresBackend(pool)
		rt.tenants = backend.Periods
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Warn("report cache disabled", slog.Any("error", err))
		} else {
			redisClient = client
			rt.closers = append(rt.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
		}
	}

	services, err := app.NewServices(cfg, backend, redisClient, rt.metrics, logger)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.services = services
	return rt, nil
}

func withRuntime(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(rt *runtime) int) int {
	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialise runtime", slog.Any("error", err))
		return 1
	}
	defer rt.close()
	return fn(rt)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	return withRuntime(ctx, cfg, logger, func(rt *runtime) int {
		params := rt.services.RouterParams(cfg, rt.metrics, logger)
		if cfg.RedisAddr != "" {
			inspector := asynq.NewInspector(redisOpts(cfg))
			defer func() {
				if err := inspector.Close(); err != nil {
					logger.Warn("inspector close", slog.Any("error", err))
				}
			}()
			params.JobHandler = jobs.NewHandler(inspector, logger)
		}

		server := &http.Server{
			Addr:         cfg.AppAddr,
			Handler:      app.NewRouter(params),
			ReadTimeout:  cfg.ServerReadTimeout,
			WriteTimeout: cfg.ServerWriteTimeout,
			IdleTimeout:  cfg.ServerIdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			logger.Error("http server", slog.Any("error", err))
			return 1
		}
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
			return 1
		}
		return 0
	})
}

func migrate(cfg *app.Config, logger *slog.Logger) int {
	if cfg.StoreDriver == app.DriverMemory {
		logger.Info("memory store selected, nothing to migrate")
		return 0
	}
	changed, err := db.Migrate(cfg.PGDSN, migrations.FS)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("migrations applied", slog.Bool("changed", changed))
	return 0
}

func seedMappings(ctx context.Context, cfg *app.Config, rt *runtime, args []string) int {
	fs := flag.NewFlagSet("seed-mappings", flag.ContinueOnError)
	file := fs.String("file", cfg.MappingsFile, "mapping defaults file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	tenantID, ok := tenantArg(fs.Args(), 0)
	if !ok {
		fmt.Fprintln(os.Stderr, "seed-mappings: tenant is required")
		return 2
	}
	n, err := rt.services.SeedMappings(ctx, tenantID, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed-mappings: %v (%d written)\n", err, n)
		return 1
	}
	fmt.Printf("seeded %d mapping(s) for tenant %d\n", n, tenantID)
	return 0
}

func report(ctx context.Context, rt *runtime, args []string) int {
	if len(args) == 0 || args[0] != "trial-balance" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("report trial-balance", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	locale := fs.String("locale", "en", "number formatting locale")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	tenantID, _ := tenantArg(fs.Args(), 0)
	asOf := ""
	if fs.NArg() > 1 {
		asOf = fs.Arg(1)
	}
	return cli.NewReportCLI(rt.services.Reports).TrialBalanceCommand(ctx, cli.TrialBalanceOptions{
		TenantID:   tenantID,
		AsOf:       asOf,
		Locale:     *locale,
		JSONOutput: *asJSON,
	})
}

func integrity(ctx context.Context, rt *runtime, args []string) int {
	fs := flag.NewFlagSet("integrity", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	tenantID, _ := tenantArg(fs.Args(), 0)
	return cli.IntegrityCommand(ctx, rt.services.Ledger, rt.tenants, cli.IntegrityOptions{
		TenantID:   tenantID,
		JSONOutput: *asJSON,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jc := cli.NewJobsCLI(redisOpts(cfg))
	defer func() { _ = jc.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: job name is required")
			return 2
		}
		tenantID, _ := tenantArg(args, 2)
		info, err := jc.Trigger(ctx, args[1], tenantID, cfg.IdempotencyTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return 2
	}
}

func tenantArg(args []string, idx int) (int64, bool) {
	if len(args) <= idx {
		return 0, false
	}
	id, err := strconv.ParseInt(args[idx], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
