// Package dispatcher runs a bounded pool of concurrent executions over an
// ordered work source. A single coordinator goroutine owns dispatch, outcome
// delivery, and the observer; executions only send outcomes back on a channel.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/probe"
)

// Source yields work items in dispatch order.
type Source interface {
	Next() (probe.WorkItem, bool)
	Len() int
}

// Result pairs an outcome with pool-wide progress at the time it completed.
type Result struct {
	Outcome   probe.Outcome
	Completed int
	Total     int
}

// Observer receives pool callbacks on the coordinator goroutine. Completed
// returns true to request that no further items be dispatched; items already
// in flight still run to completion and are still reported.
type Observer interface {
	Dispatched(item probe.WorkItem)
	Completed(ctx context.Context, res Result) bool
}

// Pauser sleeps for delay or until ctx ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Config controls pool sizing and pacing.
type Config struct {
	// Concurrency is the maximum number of in-flight executions (K).
	Concurrency int
	// SequentialDelay is slept between items when Concurrency is 1.
	SequentialDelay time.Duration
	// StartupStagger spaces out the initial batch when Concurrency > 1.
	StartupStagger time.Duration
	Logger         *zap.Logger
	Pauser         Pauser
}

// Summary describes how a run ended.
type Summary struct {
	Total      int
	Dispatched int
	Completed  int
	// Stopped is set when the observer requested a stop.
	Stopped bool
	// Canceled is set when ctx ended before the source was exhausted.
	Canceled bool
}

// Dispatcher executes work items with bounded concurrency.
type Dispatcher struct {
	cfg    Config
	exec   probe.Executor
	logger *zap.Logger
	pauser Pauser
}

// New builds a Dispatcher. Concurrency below 1 is treated as 1.
func New(cfg Config, exec probe.Executor) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pauser := cfg.Pauser
	if pauser == nil {
		pauser = timerPauser{}
	}
	return &Dispatcher{cfg: cfg, exec: exec, logger: logger, pauser: pauser}
}

// Concurrency returns the effective pool size.
func (d *Dispatcher) Concurrency() int {
	return d.cfg.Concurrency
}

// Run drains src through the executor and blocks until every dispatched item
// has been reported to obs. Outcomes are delivered in completion order. When
// obs asks to stop or ctx ends, dispatch halts and in-flight items drain.
func (d *Dispatcher) Run(ctx context.Context, src Source, obs Observer) Summary {
	if obs == nil {
		obs = nopObserver{}
	}
	k := d.cfg.Concurrency
	summary := Summary{Total: src.Len()}
	results := make(chan probe.Outcome, k)
	inFlight := 0
	exhausted := false

	dispatch := func() bool {
		if summary.Stopped || exhausted {
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		item, ok := src.Next()
		if !ok {
			exhausted = true
			return false
		}
		obs.Dispatched(item)
		summary.Dispatched++
		inFlight++
		go d.execute(ctx, item, results)
		return true
	}

	for inFlight < k && dispatch() {
		if k > 1 && inFlight < k && summary.Dispatched < summary.Total && d.cfg.StartupStagger > 0 {
			d.pauser.Pause(ctx, d.cfg.StartupStagger)
		}
	}

	for inFlight > 0 {
		outcome := <-results
		inFlight--
		summary.Completed++
		res := Result{Outcome: outcome, Completed: summary.Completed, Total: summary.Total}
		if obs.Completed(ctx, res) && !summary.Stopped {
			summary.Stopped = true
			d.logger.Warn("dispatch stopped by observer",
				zap.Int("completed", summary.Completed),
				zap.Int("in_flight", inFlight))
		}
		if summary.Stopped {
			continue
		}
		if k == 1 && d.cfg.SequentialDelay > 0 && summary.Dispatched < summary.Total {
			d.pauser.Pause(ctx, d.cfg.SequentialDelay)
		}
		dispatch()
	}
	summary.Canceled = ctx.Err() != nil && !exhausted && summary.Dispatched < summary.Total
	return summary
}

func (d *Dispatcher) execute(ctx context.Context, item probe.WorkItem, out chan<- probe.Outcome) {
	start := time.Now()
	outcome := d.safeExecute(ctx, item)
	// Executors may fill in the item's URL; anything else is the dispatched item.
	if outcome.Item.ID != item.ID {
		outcome.Item = item
	}
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(start)
	}
	out <- outcome
}

func (d *Dispatcher) safeExecute(ctx context.Context, item probe.WorkItem) (outcome probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("executor panic", zap.String("item", item.ID), zap.Any("panic", r))
			outcome = probe.Failed(item, fmt.Errorf("executor panic: %v", r))
		}
	}()
	return d.exec.Execute(ctx, item)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
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

type nopObserver struct{}

func (nopObserver) Dispatched(probe.WorkItem) {}

func (nopObserver) Completed(context.Context, Result) bool { return false }
