// Package app initializes and holds the long-lived services a command
// needs, acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/classify"
	"github.com/lmei/steamscout/internal/clock/system"
	"github.com/lmei/steamscout/internal/config"
	"github.com/lmei/steamscout/internal/ledger"
	"github.com/lmei/steamscout/internal/logging"
	"github.com/lmei/steamscout/internal/ops"
	"github.com/lmei/steamscout/internal/pipeline"
	"github.com/lmei/steamscout/internal/policy/ratelimit"
	"github.com/lmei/steamscout/internal/sink"
	"github.com/lmei/steamscout/internal/steam"
	"github.com/lmei/steamscout/internal/worker"
)

// App holds the shared services built from configuration: logger, ledger,
// Steam client, rate limiter, classifier, and result sink. It is created
// once per command and closed when the command finishes.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      catalog.Clock
	store      *ledger.Store
	steam      *steam.Client
	limiter    *ratelimit.Limiter
	classifier *classify.Classifier
	sink       *sink.Sink
	ops        *ops.Server
}

// New builds every service, runs ledger migrations, and starts the ops
// server when enabled. Fails fast on any unavailable dependency.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	if err := ledger.Migrate(ctx, cfg.DB.DSN); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	clk := system.New()
	store, err := ledger.New(ctx, ledger.Config{
		DSN:          cfg.DB.DSN,
		MaxConns:     cfg.DB.MaxConns,
		MinConns:     cfg.DB.MinConns,
		RetryCeiling: cfg.Crawl.RetryCeiling,
	}, clk)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	classifier := classify.New(cfg.Dimensions)

	resultSink, err := sink.New(sink.Config{
		Dir:                 cfg.Data.Dir,
		Dimensions:          classifier.DimensionNames(),
		QuarantineRetention: cfg.QuarantineRetention(),
	}, clk, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open result sink: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  clk,
		store:  store,
		steam:  steam.New(cfg.Steam, logger),
		limiter: ratelimit.New(ratelimit.Config{
			RequestsPerWindow: cfg.Crawl.RequestsPerMinute,
			Window:            time.Minute,
			SlowThreshold:     cfg.SlowThreshold(),
			SlowPenalty:       cfg.SlowPenalty(),
		}, clk),
		classifier: classifier,
		sink:       resultSink,
	}

	if cfg.Ops.Enabled {
		a.ops = ops.New(cfg.Ops.Port, logger)
		if err := a.ops.Start(); err != nil {
			logger.Warn("ops server not started", zap.Error(err))
			a.ops = nil
		}
	}

	logger.Info("services initialized", zap.String("data_dir", cfg.Data.Dir))
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Ledger returns the progress store.
func (a *App) Ledger() *ledger.Store { return a.store }

// Sink returns the result sink.
func (a *App) Sink() *sink.Sink { return a.sink }

// Orchestrator builds a fresh single-pass orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	w := worker.New(
		a.limiter,
		a.steam,
		a.classifier,
		a.clock,
		worker.Config{CoolDown: a.cfg.CoolDown()},
		a.logger,
	)
	return pipeline.New(a.store, a.steam, w, a.sink, a.clock, pipeline.Config{
		BatchSize: a.cfg.Crawl.BatchSize,
		Workers:   a.cfg.Crawl.Workers,
		Staleness: a.cfg.StalenessWindow(),
	}, a.logger)
}

// Close releases every service. Called from a command post-run hook.
func (a *App) Close() {
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.ops.Stop(ctx); err != nil {
			a.logger.Warn("ops server stop", zap.Error(err))
		}
		cancel()
	}
	a.store.Close()
	// Best effort; stderr sync errors are expected on some platforms.
	_ = a.logger.Sync()
}
