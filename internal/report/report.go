// Package report drives the periodic re-evaluation of every in-progress
// experiment and publishes the results as a single atomic snapshot that
// many HTTP handlers can read concurrently without ever observing a
// partially-updated state.
package report

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/needle-ab/needle/internal/analytics"
	"github.com/needle-ab/needle/internal/config"
	"github.com/needle-ab/needle/internal/errs"
	"github.com/needle-ab/needle/internal/evaluate"
)

// DefaultInterval is the delay after one run completes before the next is
// armed, matching the original implementation's loop.call_later(30, ...).
const DefaultInterval = 30 * time.Second

// Snapshot is the immutable result of one completed report run: every
// experiment evaluated, keyed by experiment name, plus metadata about the
// run itself. Once published, a Snapshot is never mutated.
type Snapshot struct {
	RunID       string
	GeneratedAt time.Time
	Results     map[string]*evaluate.Result
	Err         error
}

// MetricsRecorder observes per-experiment evaluation duration. Runner
// calls it if set; production wiring supplies a Prometheus-backed
// implementation (see internal/httpapi.Metrics).
type MetricsRecorder interface {
	ObserveEvaluation(experiment string, d time.Duration)
}

// Runner periodically evaluates every in-progress, unconcluded experiment
// in the current configuration and publishes the results atomically. It
// re-arms its own timer after each run completes rather than using a
// ticker, so a slow run never causes two runs to overlap.
type Runner struct {
	configDir string
	loader    *config.Loader
	interval  time.Duration
	logger    *slog.Logger
	metrics   MetricsRecorder

	current atomic.Pointer[Snapshot]

	done chan struct{}
}

// WithMetrics attaches a MetricsRecorder used to observe per-experiment
// evaluation duration on each run.
func (r *Runner) WithMetrics(m MetricsRecorder) *Runner {
	r.metrics = m
	return r
}

// NewRunner constructs a Runner reading configuration from configDir on
// every cycle (so an edited configuration takes effect on the following
// run without a process restart) and running at the given interval.
func NewRunner(configDir string, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		configDir: configDir,
		loader:    config.NewLoader(),
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Snapshot returns the most recently published report results. It is safe
// to call from any goroutine at any time, including before the first run
// completes (in which case it returns nil).
func (r *Runner) Snapshot() *Snapshot {
	return r.current.Load()
}

// Run blocks, evaluating experiments on a re-arming timer, until ctx is
// canceled. The first run starts immediately.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.runOnce(ctx)
			timer.Reset(r.interval)
		}
	}
}

// Wait blocks until Run has returned (used by callers coordinating
// shutdown alongside the HTTP server).
func (r *Runner) Wait() { <-r.done }

func (r *Runner) runOnce(ctx context.Context) {
	runID := uuid.NewString()
	start := time.Now()

	logger := r.logger.With(slog.String("run_id", runID))
	logger.InfoContext(ctx, "report run starting")

	snapshot, err := r.evaluateAll(ctx, runID)
	if err != nil {
		logger.ErrorContext(ctx, "report run failed", slog.String("err", err.Error()))
		snapshot = &Snapshot{RunID: runID, GeneratedAt: time.Now(), Err: errs.ReportError(err)}
	}

	r.current.Store(snapshot)
	logger.InfoContext(ctx, "report run completed", slog.Duration("elapsed", time.Since(start)))
}

func (r *Runner) evaluateAll(ctx context.Context, runID string) (*Snapshot, error) {
	cfg, err := r.loader.Load(r.configDir)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	var active []*config.Experiment
	for _, e := range cfg.Experiments {
		if e.IsInProgress(now) {
			active = append(active, e)
		}
	}

	results := make(map[string]*evaluate.Result, len(active))
	if len(active) == 0 {
		return &Snapshot{RunID: runID, GeneratedAt: time.Now(), Results: results}, nil
	}

	store, err := analytics.Open(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	evaluator := evaluate.NewEvaluator(store)

	for _, e := range active {
		evalStart := time.Now()
		result, err := evaluator.Evaluate(ctx, cfg, e)
		if r.metrics != nil {
			r.metrics.ObserveEvaluation(e.Name, time.Since(evalStart))
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "experiment evaluation failed",
				slog.String("run_id", runID),
				slog.String("experiment", e.Name),
				slog.String("err", err.Error()))
			continue
		}
		results[e.Name] = result
	}

	return &Snapshot{RunID: runID, GeneratedAt: time.Now(), Results: results}, nil
}
