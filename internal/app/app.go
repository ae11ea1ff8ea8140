// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/examacademy/academy-server/internal/buildinfo"
	"github.com/examacademy/academy-server/internal/catalog"
	"github.com/examacademy/academy-server/internal/config"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/lookup"
	"github.com/examacademy/academy-server/internal/metrics"
	"github.com/examacademy/academy-server/internal/objectstore"
	"github.com/examacademy/academy-server/internal/ratelimit"
	"github.com/examacademy/academy-server/internal/sentry"
	"github.com/examacademy/academy-server/internal/storage"
	mongostore "github.com/examacademy/academy-server/internal/storage/mongo"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg        *config.Config
	logger     *logger.Logger
	store      storage.Store
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	lookup     *lookup.Service
	loader     *catalog.Loader
	apiLimiter *ratelimit.KeyedLimiter
	router     *gin.Engine
	server     *http.Server
	readiness  *importReadiness
	wg         sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := NewLogger(cfg)

	// Set as default logger to enable context value extraction (requestID)
	// via ContextHandler in package-level slog.*Context() calls.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          buildinfo.Release(),
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.SentrySampleRate,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error tracking enabled")
	}

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	objects, err := OpenObjectStore(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	app := newApplication(cfg, log, store, objects, m, registry)
	app.loader.RefreshSize(ctx)

	log.Info("Initialization complete")
	return app, nil
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) *logger.Logger {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "academy-server")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}
	return log
}

// OpenStore connects the configured catalog backend.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMongoDB:
		connectCtx, cancel := context.WithTimeout(ctx, config.MongoConnect)
		defer cancel()

		store, err := mongostore.New(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongodb: %w", err)
		}
		log.WithField("database", cfg.MongoDatabase).Info("MongoDB connected")
		return store, nil
	default:
		db, err := storage.New(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		log.WithField("path", cfg.SQLitePath()).Info("Database connected")
		return db, nil
	}
}

// OpenObjectStore returns a client when any object store setting is present, nil otherwise.
func OpenObjectStore(ctx context.Context, cfg *config.Config) (*objectstore.Client, error) {
	if !cfg.ObjectStoreConfigured() {
		return nil, nil
	}
	client, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:    cfg.ObjectStore.Endpoint,
		Region:      cfg.ObjectStore.Region,
		AccessKeyID: cfg.ObjectStore.AccessKeyID,
		SecretKey:   cfg.ObjectStore.SecretKey,
		Bucket:      cfg.ObjectStore.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return client, nil
}

// newApplication wires services, middleware and routes around an open store.
func newApplication(cfg *config.Config, log *logger.Logger, store storage.Store, objects *objectstore.Client, m *metrics.Metrics, registry *prometheus.Registry) *Application {
	lookupSvc := lookup.NewService(
		[]lookup.Source{store.FacultyCourseSource(), store.StandaloneCourseSource()},
		log, m,
		lookup.Options{
			SuggestionLimit: cfg.SuggestionLimit,
			OnPanic:         sentry.CapturePanic,
		},
	)

	apiLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "api",
		Burst:         cfg.APIRateBurst,
		RefillRate:    cfg.APIRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	app := &Application{
		cfg:        cfg,
		logger:     log,
		store:      store,
		metrics:    m,
		registry:   registry,
		lookup:     lookupSvc,
		loader:     catalog.NewLoader(store, objects, log, m),
		apiLimiter: apiLimiter,
		readiness:  newImportReadiness(config.CatalogImport),
	}
	if cfg.CatalogSource == "" {
		app.readiness.MarkDone()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))
	app.registerRoutes(router)
	app.router = router

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: config.HTTPReadHeader,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	return app
}

// importOnStartup loads the configured catalog when the store is empty or
// a forced refresh is requested.
func (a *Application) importOnStartup(ctx context.Context) error {
	if a.cfg.CatalogSource == "" {
		return nil
	}

	if !a.cfg.CatalogForce {
		faculties, err := a.store.CountFaculties(ctx)
		if err != nil {
			return fmt.Errorf("count faculties: %w", err)
		}
		courses, err := a.store.CountCourses(ctx)
		if err != nil {
			return fmt.Errorf("count courses: %w", err)
		}
		if faculties > 0 || courses > 0 {
			a.logger.WithField("faculties", faculties).
				WithField("courses", courses).
				Info("Catalog already loaded, skipping startup import")
			return nil
		}
	}

	importCtx, cancel := context.WithTimeout(ctx, config.CatalogImport)
	defer cancel()

	_, err := a.loader.Load(importCtx, a.cfg.CatalogSource, catalog.TriggerStartup)
	return err
}

// Handler returns the HTTP handler serving every route.
func (a *Application) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server and background jobs.
//
// Graceful shutdown sequence:
//  1. Receive shutdown signal (SIGINT/SIGTERM)
//  2. Cancel context to signal background jobs to stop
//  3. Wait for background jobs to complete
//  4. Close resources in order (HTTP server, store, rate limiter, Sentry, logger)
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // Ensure context is always canceled

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	// Wait for shutdown signal
	sig := a.waitForShutdownSignal()

	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	// Step 1: Cancel context to signal all background jobs to stop
	cancel()

	// Step 2: Wait for all background goroutines to finish
	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	// Step 3: Perform graceful shutdown (HTTP server, resources)
	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.startupImport(ctx)
	})
	a.wg.Go(func() {
		a.updateCatalogMetrics(ctx)
	})
}

// startupImport runs the startup catalog import and opens the readiness gate
// when it finishes. Failures are logged; the service keeps serving whatever
// catalog the store already holds.
func (a *Application) startupImport(ctx context.Context) {
	defer a.readiness.MarkDone()
	if a.cfg.CatalogSource == "" {
		return
	}

	if err := a.importOnStartup(ctx); err != nil {
		a.logger.WithError(err).WithField("source", a.cfg.CatalogSource).Error("Startup catalog import failed")
		sentry.CaptureException(err)
	}
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown performs graceful shutdown of HTTP server and resources.
// This method should be called AFTER background jobs have been stopped and completed.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Closing resources...")

	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "store").Error("Component close error")
	}

	if a.apiLimiter != nil {
		a.apiLimiter.Stop()
	}

	if sentry.IsEnabled() && !sentry.Flush(2*time.Second) {
		a.logger.Warn("Sentry flush timed out")
	}

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

// updateCatalogMetrics refreshes catalog size gauges until ctx is canceled.
func (a *Application) updateCatalogMetrics(ctx context.Context) {
	a.logger.Debug("Catalog metrics job started")
	defer a.logger.Debug("Catalog metrics job stopped")

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.loader.RefreshSize(ctx)
		}
	}
}
