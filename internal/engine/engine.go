package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/internal/messaging"
	"github.com/stochastix/riskd/internal/sim"
	"github.com/stochastix/riskd/internal/store"
	"github.com/stochastix/riskd/pkg/metrics"
)

// ResultCache is the slice of the result cache the engine consults before
// simulating. A nil cache disables caching.
type ResultCache interface {
	Get(ctx context.Context, hash string) ([]byte, bool, error)
	Set(ctx context.Context, hash string, payload []byte) error
}

// Engine executes simulation runs on a bounded worker pool. Runs are
// reproducible: path batches are seeded from the scenario seed by batch
// index and merged in batch order, so the result does not depend on the
// worker count.
type Engine struct {
	logger *zap.Logger
	cfg    config.EngineConfig
	repo   *store.Repository
	cache  ResultCache
	events *messaging.Publisher

	mu       sync.RWMutex
	runs     map[uuid.UUID]*Run
	finished []uuid.UUID
	wg       sync.WaitGroup
}

// New creates an engine. repo is required; cache and events may be nil.
func New(logger *zap.Logger, cfg config.EngineConfig, repo *store.Repository, rc ResultCache, pub *messaging.Publisher) *Engine {
	return &Engine{
		logger: logger,
		cfg:    cfg,
		repo:   repo,
		cache:  rc,
		events: pub,
		runs:   make(map[uuid.UUID]*Run),
	}
}

// SubmitOption adjusts how a single run executes.
type SubmitOption func(*submitOpts)

type submitOpts struct {
	skipCache bool
}

// SkipCache forces a fresh simulation even when a cached result exists for
// the scenario hash.
func SkipCache() SubmitOption {
	return func(o *submitOpts) { o.skipCache = true }
}

// Submit validates and compiles the scenario, registers a run and executes it
// asynchronously. The returned run can be polled or cancelled.
func (e *Engine) Submit(ctx context.Context, sc *Scenario, opts ...SubmitOption) (*Run, error) {
	if err := sc.Validate(e.cfg); err != nil {
		return nil, err
	}
	factory, err := sc.compile()
	if err != nil {
		return nil, err
	}

	var options submitOpts
	for _, opt := range opts {
		opt(&options)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := newRun(sc.ID, sc.Paths, cancel)

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	if e.repo != nil {
		rec := &store.RunRecord{
			ID:         run.ID,
			ScenarioID: sc.ID,
			Status:     string(StatusPending),
			Paths:      sc.Paths,
			StartedAt:  run.startedAt,
		}
		if err := e.repo.CreateRun(ctx, rec); err != nil {
			cancel()
			e.mu.Lock()
			delete(e.runs, run.ID)
			e.mu.Unlock()
			return nil, err
		}
	}

	e.wg.Add(1)
	go e.execute(runCtx, run, sc, factory, options)

	return run, nil
}

// Run returns a registered run by id.
func (e *Engine) Run(id uuid.UUID) (*Run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[id]
	return run, ok
}

// Cancel cancels an in-flight run. It reports whether the run was known.
func (e *Engine) Cancel(id uuid.UUID) bool {
	run, ok := e.Run(id)
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// Shutdown cancels all in-flight runs and waits for workers to drain, up to
// the context deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	for _, run := range e.runs {
		run.Cancel()
	}
	e.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: shutdown timed out: %w", ctx.Err())
	}
}

func (e *Engine) execute(ctx context.Context, run *Run, sc *Scenario, factory func() evaluator, opts submitOpts) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Run panicked",
				zap.String("run_id", run.ID.String()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			e.finishRun(run, StatusFailed, nil, fmt.Errorf("engine: run panicked: %v", r))
		}
	}()

	start := time.Now()
	run.setRunning()
	e.updateRunRecord(run, StatusRunning, nil)

	hash := sc.Hash()

	// Identical definitions short-circuit through the result cache.
	if e.cache != nil && !opts.skipCache {
		if payload, ok, err := e.cache.Get(ctx, hash); err != nil {
			e.logger.Warn("Result cache lookup failed", zap.Error(err))
		} else if ok {
			var cached Result
			if err := json.Unmarshal(payload, &cached); err == nil {
				cached.ScenarioID = sc.ID
				cached.FromCache = true
				run.progress.Store(int64(sc.Paths))
				e.complete(run, sc, &cached, start)
				return
			}
			e.logger.Warn("Discarding malformed cache entry", zap.String("hash", hash))
		}
	}

	samples, acc, err := e.simulate(ctx, run, sc, factory)
	if err != nil {
		status := StatusFailed
		if ctx.Err() != nil {
			status = StatusCancelled
			err = ctx.Err()
		}
		e.finishRun(run, status, nil, err)
		return
	}

	result := summarize(sc, hash, samples, acc, time.Since(start))
	e.complete(run, sc, result, start)

	if e.cache != nil {
		if payload, err := json.Marshal(result); err == nil {
			if err := e.cache.Set(context.Background(), hash, payload); err != nil {
				e.logger.Warn("Result cache store failed", zap.Error(err))
			}
		}
	}
}

type batchOut struct {
	acc     sim.Accumulator
	samples []float64
}

// simulate fans path batches out over the worker pool and merges results in
// batch order.
func (e *Engine) simulate(ctx context.Context, run *Run, sc *Scenario, factory func() evaluator) ([]float64, sim.Accumulator, error) {
	batchSize := e.cfg.BatchSize
	if batchSize < 1 || batchSize > sc.Paths {
		batchSize = sc.Paths
	}
	numBatches := (sc.Paths + batchSize - 1) / batchSize

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > numBatches {
		workers = numBatches
	}

	outs := make([]batchOut, numBatches)
	batchCh := make(chan int)
	errCh := make(chan error, workers)

	var workerWG sync.WaitGroup
	for w := 0; w < workers; w++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			ev := factory()
			z := make([]float64, ev.draws)
			zNeg := make([]float64, ev.draws)

			for b := range batchCh {
				out, err := runBatch(ctx, run, sc, ev, z, zNeg, b, batchSize)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				outs[b] = out
			}
		}()
	}

	var dispatchErr error
dispatch:
	for b := 0; b < numBatches; b++ {
		select {
		case batchCh <- b:
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case dispatchErr = <-errCh:
			break dispatch
		}
	}
	close(batchCh)
	workerWG.Wait()

	if dispatchErr == nil {
		select {
		case dispatchErr = <-errCh:
		default:
		}
	}
	if dispatchErr != nil {
		return nil, sim.Accumulator{}, dispatchErr
	}

	// Merge in batch order so sample order is deterministic.
	var acc sim.Accumulator
	retain := e.cfg.ResultMemory * 1024
	if retain <= 0 {
		retain = sc.Paths
	}
	samples := make([]float64, 0, min(sc.Paths, retain))
	for _, out := range outs {
		acc.Merge(out.acc)
		if len(samples) < retain {
			take := out.samples
			if len(samples)+len(take) > retain {
				take = take[:retain-len(samples)]
			}
			samples = append(samples, take...)
		}
	}
	return samples, acc, nil
}

// runBatch generates the samples of one batch. Batch b draws from the stream
// seeded (scenario seed, b+1).
func runBatch(ctx context.Context, run *Run, sc *Scenario, ev evaluator, z, zNeg []float64, b, batchSize int) (batchOut, error) {
	lo := b * batchSize
	hi := lo + batchSize
	if hi > sc.Paths {
		hi = sc.Paths
	}
	n := hi - lo

	src := sim.NewNormalSource(sc.Seed, uint64(b)+1)
	out := batchOut{samples: make([]float64, 0, n)}

	for i := 0; i < n; i++ {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return batchOut{}, ctx.Err()
			default:
			}
		}

		src.Fill(z)
		v := ev.eval(z)
		if sc.Antithetic {
			for j := range z {
				zNeg[j] = -z[j]
			}
			v = 0.5 * (v + ev.eval(zNeg))
		}

		out.acc.Add(v)
		out.samples = append(out.samples, v)
	}

	run.progress.Add(int64(n))
	metrics.PathsGenerated.WithLabelValues(string(sc.Process)).Add(float64(n))
	return out, nil
}

// summarize reduces the sample to the persisted distribution summary.
func summarize(sc *Scenario, hash string, samples []float64, acc sim.Accumulator, elapsed time.Duration) *Result {
	sorted := sim.SortedCopy(samples)

	confidence := sc.Confidence
	if confidence == 0 {
		confidence = 0.95
	}
	baseline := sc.Baseline()

	// Loss quantile of P&L relative to the baseline value.
	cut := sim.Quantile(sorted, 1-confidence) - baseline
	varLoss := 0.0
	if cut < 0 {
		varLoss = -cut
	}

	var esSum float64
	var esN int
	for _, x := range sorted {
		if x-baseline > cut {
			break
		}
		esSum += x - baseline
		esN++
	}
	es := varLoss
	if esN > 0 && esSum < 0 {
		es = -esSum / float64(esN)
	}

	return &Result{
		ScenarioID: sc.ID,
		Hash:       hash,
		Estimate:   acc.Estimate(),
		StdDev:     acc.StdDev(),
		Min:        acc.Min(),
		Max:        acc.Max(),
		Quantiles: map[string]float64{
			"p01": sim.Quantile(sorted, 0.01),
			"p05": sim.Quantile(sorted, 0.05),
			"p25": sim.Quantile(sorted, 0.25),
			"p50": sim.Quantile(sorted, 0.50),
			"p75": sim.Quantile(sorted, 0.75),
			"p95": sim.Quantile(sorted, 0.95),
			"p99": sim.Quantile(sorted, 0.99),
		},
		Baseline:          baseline,
		Confidence:        confidence,
		VaR:               varLoss,
		ExpectedShortfall: es,
		Histogram:         sim.NewHistogram(samples, 64),
		Paths:             int(acc.N()),
		Elapsed:           elapsed.String(),
	}
}

// retire records a finished run and evicts the oldest finished runs beyond
// the retention cap. Evicted runs remain reachable through their persisted
// records.
func (e *Engine) retire(id uuid.UUID) {
	keep := e.cfg.RunHistory
	if keep < 1 {
		keep = 256
	}
	e.mu.Lock()
	e.finished = append(e.finished, id)
	for len(e.finished) > keep {
		delete(e.runs, e.finished[0])
		e.finished = e.finished[1:]
	}
	e.mu.Unlock()
}

func (e *Engine) complete(run *Run, sc *Scenario, result *Result, start time.Time) {
	run.finish(StatusCompleted, result, nil)
	e.updateRunRecord(run, StatusCompleted, nil)
	e.retire(run.ID)

	if e.repo != nil {
		if payload, err := json.Marshal(result); err == nil {
			rec := &store.ResultRecord{RunID: run.ID, Hash: result.Hash, Payload: payload}
			if err := e.repo.SaveResult(context.Background(), rec); err != nil {
				e.logger.Error("Failed to persist result", zap.Error(err))
			}
		}
	}

	elapsed := time.Since(start)
	metrics.RunsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())

	e.events.PublishRunCompleted(context.Background(), messaging.RunCompletedEvent{
		RunID:      run.ID,
		ScenarioID: sc.ID,
		Hash:       result.Hash,
		Status:     string(StatusCompleted),
		Paths:      result.Paths,
		Mean:       result.Estimate.Mean,
		StdErr:     result.Estimate.StdErr,
		Elapsed:    elapsed.String(),
	})

	e.logger.Info("Run completed",
		zap.String("run_id", run.ID.String()),
		zap.String("process", string(sc.Process)),
		zap.Int("paths", result.Paths),
		zap.Bool("from_cache", result.FromCache),
		zap.Duration("elapsed", elapsed))
}

func (e *Engine) finishRun(run *Run, status RunStatus, result *Result, err error) {
	run.finish(status, result, err)
	e.updateRunRecord(run, status, err)
	e.retire(run.ID)
	metrics.RunsTotal.WithLabelValues(string(status)).Inc()

	if status == StatusCancelled {
		e.logger.Info("Run cancelled", zap.String("run_id", run.ID.String()))
	} else {
		e.logger.Error("Run failed", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

func (e *Engine) updateRunRecord(run *Run, status RunStatus, runErr error) {
	if e.repo == nil {
		return
	}
	rec := &store.RunRecord{
		ID:     run.ID,
		Status: string(status),
		Paths:  int(run.progress.Load()),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if status == StatusCompleted || status == StatusFailed || status == StatusCancelled {
		now := time.Now()
		rec.FinishedAt = &now
	}
	if err := e.repo.UpdateRun(context.Background(), rec); err != nil {
		e.logger.Error("Failed to update run record", zap.Error(err))
	}
}
