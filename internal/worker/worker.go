// Package worker implements the per-identifier fetch/classify step.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/classify"
	"github.com/lmei/steamscout/internal/metrics"
)

// pauseController abstracts how the worker backs off when throttled.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Config controls Worker behavior.
type Config struct {
	// CoolDown is how long the whole worker pauses after server-side
	// rate limiting.
	CoolDown time.Duration
}

// Worker performs one rate-limited fetch and classification per identifier
// and maps failures onto retry/quarantine outcomes. It proposes results;
// it never persists them.
type Worker struct {
	limiter    catalog.Limiter
	client     catalog.DetailClient
	classifier *classify.Classifier
	clock      catalog.Clock
	pauser     pauseController
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	limiter catalog.Limiter,
	client catalog.DetailClient,
	classifier *classify.Classifier,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		limiter:    limiter,
		client:     client,
		classifier: classifier,
		clock:      clock,
		pauser:     &timerPauseController{},
		cfg:        cfg,
		logger:     logger,
	}
}

// SetPauser replaces the cool-down pause implementation (tests only).
func (w *Worker) SetPauser(p pauseController) {
	w.pauser = p
}

// Process fetches and classifies one identifier. The returned error is
// non-nil only when the context ended; every remote failure is folded into
// the outcome instead.
func (w *Worker) Process(ctx context.Context, id catalog.AppID) (catalog.Outcome, error) {
	if err := w.limiter.AwaitSlot(ctx); err != nil {
		return catalog.Outcome{}, fmt.Errorf("process %d: %w", id, err)
	}

	start := time.Now()
	details, err := w.client.AppDetails(ctx, id)
	w.limiter.RecordLatency(time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			return catalog.Outcome{}, fmt.Errorf("process %d: %w", id, ctx.Err())
		}
		return w.failureOutcome(ctx, id, err), nil
	}

	result := w.classifier.Classify(id, details, w.clock.Now())
	w.logger.Debug("app classified",
		zap.Int64("appid", int64(id)),
		zap.String("type", result.ProductType),
		zap.Strings("dimensions", result.Dimensions),
	)
	metrics.IncOutcome(string(catalog.OutcomeSuccess))
	return catalog.Outcome{
		AppID:  id,
		Kind:   catalog.OutcomeSuccess,
		Result: &result,
	}, nil
}

func (w *Worker) failureOutcome(ctx context.Context, id catalog.AppID, err error) catalog.Outcome {
	reason := catalog.FailureReason(err)

	outcome := catalog.Outcome{AppID: id, Reason: reason}
	if catalog.IsRetryable(err) {
		outcome.Kind = catalog.OutcomeRetryable
	} else {
		outcome.Kind = catalog.OutcomePermanent
	}
	metrics.IncOutcome(string(outcome.Kind))

	if reason == "rate-limited" && w.cfg.CoolDown > 0 {
		// Server-side backpressure pauses the whole worker, not just this id.
		metrics.IncCoolDown()
		w.logger.Warn("remote rate limit hit, cooling down",
			zap.Int64("appid", int64(id)),
			zap.Duration("cooldown", w.cfg.CoolDown),
		)
		w.pauser.Pause(ctx, w.cfg.CoolDown)
		outcome.CoolDown = w.cfg.CoolDown
	} else {
		w.logger.Warn("app processing failed",
			zap.Int64("appid", int64(id)),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	return outcome
}
