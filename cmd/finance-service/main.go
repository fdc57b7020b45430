package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/finance/pkg/api"
	"github.com/platinummonkey/finance/pkg/clients"
	"github.com/platinummonkey/finance/pkg/config"
	"github.com/platinummonkey/finance/pkg/finance"
	"github.com/platinummonkey/finance/pkg/lease"
	"github.com/platinummonkey/finance/pkg/observability"
	"github.com/platinummonkey/finance/pkg/plans"
	"github.com/platinummonkey/finance/pkg/storage"
	"github.com/platinummonkey/finance/pkg/storage/archive"
	"github.com/platinummonkey/finance/pkg/storage/postgres"
	"github.com/platinummonkey/finance/pkg/storage/sqlite"
	"github.com/platinummonkey/finance/pkg/store"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "finance-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	log := observability.NewComponentLogger(cfg.Observability.LogLevel, os.Stdout)
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer observability.RecoverPanic(logger, "main")

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	backend, db, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.WithField("type", cfg.Storage.Type).Info("Storage initialized")

	deps := plans.Dependencies{
		Metrics: metrics,
		Clock:   timeutil.SystemClock{},
		Log:     log,
	}

	if cfg.Storage.S3Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize invoice archive: %w", err)
		}
		deps.Archive = archiver
		logger.WithField("bucket", cfg.Storage.S3Bucket).Info("Archiving invoices to S3")
	}

	var redisClient *redis.Client
	if cfg.Finance.LeaseEnabled {
		redisClient, err = lease.NewRedisClient(ctx, cfg.Finance.Lease)
		if err != nil {
			return err
		}

		sweepLease, err := lease.NewRedisLease(redisClient, cfg.Finance.Lease)
		if err != nil {
			return err
		}
		deps.Lease = sweepLease
		logger.WithField("owner", cfg.Finance.Lease.Owner).Info("Sweeps coordinated through Redis")
	}

	deps.Accounting, err = clients.NewAccountingClient(cfg.Clients, log)
	if err != nil {
		return err
	}
	deps.Orchestrator, err = clients.NewOrchestrationClient(cfg.Clients, metrics, log)
	if err != nil {
		return err
	}

	users := store.NewUsersHolder(backend, deps.Clock, log)
	holder := store.NewPlansHolder(backend, users, log)
	manager := finance.NewManager(holder, deps, cfg.Finance, reloadFinanceConfig)

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start finance engine: %w", err)
	}
	logger.WithField("plans", manager.PlanNames()).Info("Finance engine started")

	if cfg.Finance.WatchPath != "" {
		watcher := finance.NewWatcher(cfg.Finance.WatchPath, manager, log)
		if err := watcher.Start(); err != nil {
			return err
		}
		shutdown.Register("config watcher", func(context.Context) error { return watcher.Stop() })
	}

	if metrics != nil {
		stats := finance.NewStatsCollector(holder, metrics, dbStats(db), log)
		if err := stats.Start(cfg.Finance.StatsSchedule); err != nil {
			return err
		}
		shutdown.Register("stats collector", func(ctx context.Context) error {
			select {
			case <-stats.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	// after the servers drain, stop producers before what they depend on
	shutdown.Register("finance engine", manager.Stop)
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("store", func(context.Context) error { return backend.Close() })
	if providers != nil {
		shutdown.Register("opentelemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers)
		})
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(manager, logger, metrics).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthRouter(observability.NewHealthChecker(backend, redisClient, version), registry),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)

	serve(apiServer, logger.WithField("server", "api"))
	serve(healthServer, logger.WithField("server", "health"))

	return shutdown.Wait(ctx)
}

// openStore builds the configured backend. db is set for SQL backends.
func openStore(ctx context.Context, cfg storage.Config) (storage.Store, *storage.SQLStore, error) {
	switch cfg.Type {
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.SQLStore, nil
	case "sqlite":
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.SQLStore, nil
	case "memory":
		return storage.NewMemoryStore(), nil, nil
	default:
		s, err := storage.NewFileSystemStore(cfg.FilesystemRoot)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

func dbStats(s *storage.SQLStore) finance.DBStatser {
	if s == nil {
		return nil
	}
	return s.DB()
}

func reloadFinanceConfig() (config.FinanceConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.FinanceConfig{}, err
	}
	return cfg.Finance, nil
}

func healthRouter(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	return router
}

func serve(server *http.Server, logger *observability.Logger) {
	go func() {
		defer observability.RecoverPanic(logger, "http server")

		logger.WithField("addr", server.Addr).Info("Listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
		}
	}()
}
