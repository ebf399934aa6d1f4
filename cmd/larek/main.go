package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/larek/internal"
	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
	"github.com/dukerupert/larek/internal/handler"
	"github.com/dukerupert/larek/internal/handler/storefront"
	"github.com/dukerupert/larek/internal/larekapi"
	"github.com/dukerupert/larek/internal/middleware"
	"github.com/dukerupert/larek/internal/postgres"
	"github.com/dukerupert/larek/internal/relay"
	"github.com/dukerupert/larek/internal/router"
	"github.com/dukerupert/larek/internal/routes"
	"github.com/dukerupert/larek/internal/store"
	"github.com/dukerupert/larek/internal/telemetry"
	"github.com/dukerupert/larek/internal/workflow"
)

const usage = `usage: larek [command]

commands:
  serve     run the storefront API (default)
  migrate   apply database migrations and print their status
  sync      copy the catalog from the larek API into PostgreSQL`

// backend is the catalog source and order sink the process runs against.
type backend interface {
	domain.CatalogSource
	domain.OrderSink
}

func run(args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return migrate(cfg, logger)
	case "sync":
		return syncCatalog(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func serve(ctx context.Context, cfg *internal.Config, logger *slog.Logger) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// ==========================================================================
	// Telemetry
	// ==========================================================================

	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storeMetrics := telemetry.NewStoreMetrics(cfg.Metrics.Namespace, reg)
	httpMetrics := middleware.NewMetrics(cfg.Metrics.Namespace, reg)

	// ==========================================================================
	// State core
	// ==========================================================================

	b := bus.New(
		bus.WithLogger(logger),
		bus.WithErrorHook(func(ctx context.Context, ev bus.Event, err error) {
			storeMetrics.HandlerFailed(ctx, ev, err)
			telemetry.BusErrorHook(ctx, ev, err)
		}),
	)
	st := store.New(b, logger)
	loop := workflow.NewLoop(logger)

	source, cleanup, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	flow := workflow.NewFlow(st, b, source, source, loop, workflow.WithLogger(logger))
	flow.Bind(b)
	storeMetrics.Attach(b)
	telemetry.ReportErrors(b)

	if cfg.NATS.URL != "" {
		nc, err := relay.Connect(cfg.NATS.URL, "larek", logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		relay.New(nc, cfg.NATS.SubjectPrefix, logger).Attach(b, bus.All())
	}

	// ==========================================================================
	// HTTP
	// ==========================================================================

	session := &storefront.Session{Store: st, Flow: flow, Loop: loop, Bus: b}

	orderLimiter := middleware.NewRateLimiter(middleware.OrderRateLimiterConfig())
	defer orderLimiter.Stop()

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		telemetry.SentryMiddleware(),
		httpMetrics.Middleware,
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()),
		router.Logger(logger),
	)

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Health: func(w http.ResponseWriter, req *http.Request) {
			handler.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
		Metrics: httpMetrics.Handler(),
	})
	routes.RegisterStorefrontRoutes(r, routes.StorefrontDeps{
		State:        storefront.NewStateHandler(session),
		Catalog:      storefront.NewCatalogHandler(session),
		Basket:       storefront.NewBasketHandler(session),
		Order:        storefront.NewOrderHandler(session),
		Events:       storefront.NewEventsHandler(session, logger),
		OrderLimiter: orderLimiter,
	})
	for _, route := range r.Routes() {
		logger.Debug("route registered", "route", route)
	}

	var h http.Handler = r
	if len(cfg.CORSOrigins) > 0 {
		h = router.CORS(cfg.CORSOrigins)(r)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end when the process is asked to stop
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// ==========================================================================
	// Start
	// ==========================================================================

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()
	loop.Post(flow.Start)

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("Starting storefront server", "address", srv.Addr, "catalog_source", cfg.Catalog.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		if err != nil {
			cancelRun()
			<-loopDone
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event loop stopped: %w", err)
	}
	return nil
}

// openBackend connects to the configured catalog backend. The returned
// cleanup releases its connections.
func openBackend(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.Catalog.Source {
	case internal.CatalogSourcePostgres:
		if cfg.Catalog.MigrateOnStart {
			if err := migrate(cfg, logger); err != nil {
				return nil, nil, err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database ping failed: %w", err)
		}
		logger.Info("Database connection established")
		return postgres.NewCatalog(pool), pool.Close, nil

	default:
		return newAPIClient(cfg, logger), func() {}, nil
	}
}

func newAPIClient(cfg *internal.Config, logger *slog.Logger) *larekapi.Client {
	return larekapi.NewClient(cfg.Catalog.APIURL, cfg.Catalog.CDNURL,
		larekapi.WithHTTPClient(&http.Client{
			Timeout:   cfg.Catalog.Timeout,
			Transport: &telemetry.HTTPTransport{},
		}),
		larekapi.WithLogger(logger),
		larekapi.WithRequestID(middleware.GetRequestID),
	)
}

// migrate applies pending migrations over a database/sql connection, which
// goose requires.
func migrate(cfg *internal.Config, logger *slog.Logger) error {
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := internal.MigrationStatus(sqlDB); err != nil {
		return err
	}
	logger.Info("Database migrations completed successfully")
	return nil
}

// syncCatalog copies every product, with its full description, from the
// API into PostgreSQL.
func syncCatalog(ctx context.Context, cfg *internal.Config, logger *slog.Logger) error {
	if err := migrate(cfg, logger); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	client := newAPIClient(cfg, logger)
	products, err := client.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}
	for i, p := range products {
		if p.Description != "" {
			continue
		}
		full, err := client.GetProduct(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("fetch product %s: %w", p.ID, err)
		}
		products[i].Description = full.Description
	}

	if err := postgres.NewCatalog(pool).UpsertProducts(ctx, products); err != nil {
		return err
	}
	logger.Info("catalog synced", "products", len(products))
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
