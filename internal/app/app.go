// Package app assembles the planning service: configuration, storage, the
// generation orchestrator, the HTTP API and the projection outbox worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mealcycle/mealcycle/internal/httpapi"
	"github.com/mealcycle/mealcycle/internal/service"
	"github.com/mealcycle/mealcycle/internal/storage/sqlite"
)

// Config holds the service configuration, loaded from the environment.
type Config struct {
	HTTPAddr              string        `env:"MEALCYCLE_HTTP_ADDR" envDefault:":8080"`
	EventsDBPath          string        `env:"MEALCYCLE_EVENTS_DB" envDefault:"mealcycle-events.db"`
	ProjectionsDBPath     string        `env:"MEALCYCLE_PROJECTIONS_DB" envDefault:"mealcycle-projections.db"`
	LogLevel              string        `env:"MEALCYCLE_LOG_LEVEL" envDefault:"info"`
	LogEncoding           string        `env:"MEALCYCLE_LOG_ENCODING" envDefault:"json"`
	OutboxInterval        time.Duration `env:"MEALCYCLE_OUTBOX_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize       int           `env:"MEALCYCLE_OUTBOX_BATCH" envDefault:"32"`
	OutboxSummaryInterval time.Duration `env:"MEALCYCLE_OUTBOX_SUMMARY_INTERVAL" envDefault:"1m"`
}

// App is the wired service.
type App struct {
	cfg         Config
	logger      *zap.Logger
	events      *sqlite.Store
	projections *sqlite.Store
	orch        *service.Orchestrator
	handler     http.Handler
}

// New opens both databases and wires the orchestrator and HTTP API.
func New(cfg Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutboxInterval <= 0 {
		cfg.OutboxInterval = 500 * time.Millisecond
	}
	if cfg.OutboxBatchSize <= 0 {
		cfg.OutboxBatchSize = 32
	}
	if cfg.OutboxSummaryInterval <= 0 {
		cfg.OutboxSummaryInterval = time.Minute
	}

	events, err := sqlite.OpenEvents(cfg.EventsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open events database: %w", err)
	}
	projections, err := sqlite.OpenProjections(cfg.ProjectionsDBPath)
	if err != nil {
		_ = events.Close()
		return nil, fmt.Errorf("open projections database: %w", err)
	}

	orch := service.New(service.Stores{
		Events:      events,
		Calendar:    projections,
		Preferences: projections,
		Favorites:   projections,
	}, logger)

	a := &App{
		cfg:         cfg,
		logger:      logger,
		events:      events,
		projections: projections,
		orch:        orch,
	}
	a.handler = a.routes(httpapi.New(orch, logger).Router())
	return a, nil
}

// Run serves HTTP and drives the outbox worker until the context ends.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.serveHTTP(ctx) })
	group.Go(func() error { return a.runOutboxWorker(ctx) })
	return group.Wait()
}

// Close releases both database handles.
func (a *App) Close() error {
	var errs []error
	if err := a.events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close events database: %w", err))
	}
	if err := a.projections.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close projections database: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) serveHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	a.logger.Info("http listening", zap.String("addr", a.cfg.HTTPAddr))
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
