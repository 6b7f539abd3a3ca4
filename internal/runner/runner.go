// Package runner wires a work source, the dispatcher pool, the checkpoint
// tracker, and the progress hub into a single resumable run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/dispatcher"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/progress"
)

const flushTimeout = 30 * time.Second

// CircuitBreakerError reports a run stopped by consecutive failures.
type CircuitBreakerError struct {
	ConsecutiveFailures int
	// Failures lists the most recent failed records, oldest first.
	Failures []checkpoint.Record
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %d consecutive failures", e.ConsecutiveFailures)
}

// Config configures a Runner.
type Config struct {
	Pool    dispatcher.Config
	Emitter progress.Emitter
	Clock   checkpoint.Clock
	Logger  *zap.Logger
}

// Report summarizes a finished run.
type Report struct {
	RunID      uuid.UUID
	Summary    dispatcher.Summary
	Checkpoint *checkpoint.Checkpoint
	Started    time.Time
	Duration   time.Duration
}

// Rate returns completed items per second.
func (r Report) Rate() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Summary.Completed) / r.Duration.Seconds()
}

// Runner executes one run. It is not reusable.
type Runner struct {
	pool    *dispatcher.Dispatcher
	tracker *checkpoint.Tracker
	emitter progress.Emitter
	clock   checkpoint.Clock
	logger  *zap.Logger
	runID   uuid.UUID
	runKey  string
}

// New builds a Runner around exec and tracker.
func New(cfg Config, exec probe.Executor, tracker *checkpoint.Tracker) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = checkpoint.SystemClock{}
	}
	cfg.Pool.Logger = logger
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Runner{
		pool:    dispatcher.New(cfg.Pool, exec),
		tracker: tracker,
		emitter: cfg.Emitter,
		clock:   clock,
		logger:  logger,
		runID:   id,
		runKey:  tracker.Checkpoint().RunKey,
	}
}

// RunID identifies this run in progress events.
func (r *Runner) RunID() uuid.UUID {
	return r.runID
}

// Run drains src through the pool. The checkpoint is flushed once more after
// the pool drains, whatever the reason. A tripped breaker yields a
// *CircuitBreakerError; an interrupted run yields the context error.
func (r *Runner) Run(ctx context.Context, src dispatcher.Source) (Report, error) {
	start := r.clock.Now()
	total := src.Len()
	r.logger.Info("run starting",
		zap.String("run", r.runKey),
		zap.String("run_id", r.runID.String()),
		zap.Int("items", total),
		zap.Int("concurrency", r.pool.Concurrency()))
	r.emit(progress.Event{TS: start, Stage: progress.StageRunStart, Total: total})

	summary := r.pool.Run(ctx, src, &observer{r: r})
	if summary.Dispatched == summary.Total {
		r.tracker.SourceExhausted()
	}

	var runErr error
	switch {
	case r.tracker.Tripped():
		runErr = &CircuitBreakerError{
			ConsecutiveFailures: r.tracker.ConsecutiveFailures(),
			Failures:            r.tracker.RecentFailures(),
		}
	case summary.Canceled:
		runErr = fmt.Errorf("run interrupted: %w", context.Cause(ctx))
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := r.tracker.Flush(flushCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("final checkpoint save: %w", err))
	}

	end := r.clock.Now()
	report := Report{
		RunID:      r.runID,
		Summary:    summary,
		Checkpoint: r.tracker.Checkpoint(),
		Started:    start,
		Duration:   end.Sub(start),
	}
	final := progress.Event{TS: end, Stage: progress.StageRunDone, Completed: summary.Completed, Total: total, Dur: report.Duration}
	if runErr != nil {
		final.Stage = progress.StageRunError
		final.Note = runErr.Error()
	}
	r.emit(final)
	return report, runErr
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(r.runID)
	evt.Run = r.runKey
	r.emitter.Emit(evt)
}

// observer adapts the pool callbacks onto the tracker and the hub.
type observer struct {
	r *Runner
}

func (o *observer) Dispatched(item probe.WorkItem) {
	o.r.tracker.Dispatched(item)
}

func (o *observer) Completed(ctx context.Context, res dispatcher.Result) bool {
	out := res.Outcome
	stop := o.r.tracker.Record(ctx, out)
	note := out.Reason
	if out.Status == probe.StatusFailed {
		note = out.ErrorText()
	}
	o.r.emit(progress.Event{
		TS:        o.r.clock.Now(),
		Stage:     progress.StageItemDone,
		Item:      out.Item.ID,
		URL:       out.Item.URL,
		Status:    out.Status,
		Bytes:     out.Size,
		Completed: res.Completed,
		Total:     res.Total,
		Dur:       out.Duration,
		Note:      note,
	})
	return stop
}
