// Package pipeline drives one pass over the catalog: select a batch from
// the ledger, fan it out to the fetch/classify worker, and commit the
// outcomes to the ledger and the result sink.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/metrics"
)

// State names one phase of a pass.
type State string

// Pass phases, in order.
const (
	StateSeedingLedger   State = "seeding-ledger"
	StateSelectingBatch  State = "selecting-batch"
	StateProcessingBatch State = "processing-batch"
	StateFlushingResults State = "flushing-results"
	StateDone            State = "done"
)

// Pass selects which kind of batch a run works through.
type Pass string

// Pass kinds.
const (
	// PassDiscovery types never-fetched apps and records them in the
	// products document.
	PassDiscovery Pass = "discovery"
	// PassClassify derives dimension membership for fetched games.
	PassClassify Pass = "classify"
)

// Processor is the worker surface the orchestrator drives.
type Processor interface {
	Process(ctx context.Context, id catalog.AppID) (catalog.Outcome, error)
}

// ResultSink extends the shared sink with the products document used by
// discovery passes.
type ResultSink interface {
	catalog.Sink
	RecordProduct(id catalog.AppID, productType string)
}

// Config tunes one orchestrator instance.
type Config struct {
	BatchSize int
	Workers   int
	// Staleness bounds how old a successful classification may get before a
	// classify pass rechecks it.
	Staleness time.Duration
}

// Orchestrator runs a single pass. Create a fresh instance per invocation.
type Orchestrator struct {
	ledger catalog.Ledger
	lister catalog.ListingClient
	proc   Processor
	sink   ResultSink
	clock  catalog.Clock
	cfg    Config
	logger *zap.Logger

	runID string
	state State
}

// New creates an Orchestrator with a fresh run id.
func New(
	ledger catalog.Ledger,
	lister catalog.ListingClient,
	proc Processor,
	sink ResultSink,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	runID := uuid.NewString()
	return &Orchestrator{
		ledger: ledger,
		lister: lister,
		proc:   proc,
		sink:   sink,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
	}
}

// RunID returns the identifier attached to this pass.
func (o *Orchestrator) RunID() string { return o.runID }

// Seed fetches the full identifier universe from the listing endpoint and
// inserts every id the ledger does not yet know. Safe to repeat.
func (o *Orchestrator) Seed(ctx context.Context) (int, error) {
	ids, err := o.lister.AppList(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch app list: %w", err)
	}

	added, err := o.ledger.Seed(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("seed ledger: %w", err)
	}

	o.logger.Info("ledger seeded",
		zap.Int("listed", len(ids)),
		zap.Int("added", added),
	)
	return added, nil
}

// Run executes one pass of the given kind and reports what happened. Per-id
// ledger updates are committed as they occur; the document stores are
// flushed once at the end of the pass.
func (o *Orchestrator) Run(ctx context.Context, pass Pass) (catalog.Report, error) {
	report := catalog.Report{RunID: o.runID, Pass: string(pass)}

	o.transition(StateSeedingLedger)
	if err := o.seedIfEmpty(ctx); err != nil {
		return report, err
	}

	o.transition(StateSelectingBatch)
	ids, err := o.selectBatch(ctx, pass)
	if err != nil {
		return report, err
	}
	metrics.SetBatchSize(string(pass), len(ids))

	if len(ids) == 0 {
		o.logger.Info("nothing to do", zap.String("pass", string(pass)))
		o.transition(StateDone)
		return report, nil
	}

	o.transition(StateProcessingBatch)
	if err := o.processBatch(ctx, pass, ids, &report); err != nil {
		return report, err
	}

	o.transition(StateFlushingResults)
	if err := o.sink.Flush(); err != nil {
		// Ledger state is already committed; the stores can be regenerated
		// by reprocessing, so surface the error without rolling back.
		return report, fmt.Errorf("flush stores: %w", err)
	}
	report.StoreTotals = o.sink.Totals()

	o.transition(StateDone)
	o.logger.Info("pass complete",
		zap.String("pass", string(pass)),
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("quarantined", report.Quarantined),
	)
	return report, nil
}

func (o *Orchestrator) seedIfEmpty(ctx context.Context) error {
	count, err := o.ledger.Count(ctx)
	if err != nil {
		return fmt.Errorf("count ledger: %w", err)
	}
	if count > 0 {
		return nil
	}

	o.logger.Info("ledger empty, seeding from app list")
	_, err = o.Seed(ctx)
	return err
}

func (o *Orchestrator) selectBatch(ctx context.Context, pass Pass) ([]catalog.AppID, error) {
	var (
		ids []catalog.AppID
		err error
	)
	switch pass {
	case PassDiscovery:
		ids, err = o.ledger.SelectDiscoveryBatch(ctx, o.cfg.BatchSize)
	case PassClassify:
		staleBefore := o.clock.Now().Add(-o.cfg.Staleness)
		ids, err = o.ledger.SelectClassifyBatch(ctx, o.cfg.BatchSize, staleBefore)
	default:
		return nil, fmt.Errorf("unknown pass %q", pass)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s batch: %w", pass, err)
	}

	o.logger.Info("batch selected",
		zap.String("pass", string(pass)),
		zap.Int("size", len(ids)),
	)
	return ids, nil
}

// processBatch fans ids out to the worker pool and applies every outcome
// serially, so ledger and sink updates never race.
func (o *Orchestrator) processBatch(ctx context.Context, pass Pass, ids []catalog.AppID, report *catalog.Report) error {
	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan catalog.AppID)
	outcomes := make(chan catalog.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				outcome, err := o.proc.Process(workerCtx, id)
				if err != nil {
					cancel()
					return
				}
				select {
				case outcomes <- outcome:
				case <-workerCtx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-workerCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		if err := o.apply(ctx, pass, outcome, report); err != nil {
			cancel()
			for range outcomes {
			}
			return err
		}
	}
	return ctx.Err()
}

func (o *Orchestrator) apply(ctx context.Context, pass Pass, outcome catalog.Outcome, report *catalog.Report) error {
	report.Processed++

	if outcome.Kind == catalog.OutcomeSuccess {
		report.Succeeded++
		result := outcome.Result

		if pass == PassDiscovery {
			o.sink.RecordProduct(result.AppID, result.ProductType)
			if err := o.ledger.MarkFetched(ctx, result.AppID, result.IsGame()); err != nil {
				return err
			}
		} else {
			if err := o.sink.Merge([]catalog.ClassificationResult{*result}); err != nil {
				return err
			}
			if err := o.ledger.MarkClassified(ctx, result.AppID, result.IsGame()); err != nil {
				return err
			}
		}

		o.logger.Debug("identifier done",
			zap.Int64("appid", int64(result.AppID)),
			zap.String("type", result.ProductType),
			zap.Strings("dimensions", result.Dimensions),
		)
		return nil
	}

	report.Failed++
	retries, closed, err := o.ledger.RecordFailure(ctx, outcome.AppID)
	if err != nil {
		return err
	}

	if outcome.Kind == catalog.OutcomePermanent || closed {
		entry := catalog.QuarantineEntry{
			AppID:     outcome.AppID,
			Reason:    outcome.Reason,
			Timestamp: o.clock.Now(),
		}
		if err := o.sink.Quarantine(entry); err != nil {
			return err
		}
		report.Quarantined++
	}

	o.logger.Warn("identifier failed",
		zap.Int64("appid", int64(outcome.AppID)),
		zap.String("kind", string(outcome.Kind)),
		zap.String("reason", outcome.Reason),
		zap.Int("retries", retries),
		zap.Bool("closed", closed),
	)
	return nil
}

func (o *Orchestrator) transition(to State) {
	o.logger.Info("state transition",
		zap.String("from", string(o.state)),
		zap.String("to", string(to)),
	)
	o.state = to
}
