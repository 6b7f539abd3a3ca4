package checkpoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/probe"
)

// DefaultMaxConsecutiveFailures is the circuit breaker threshold used when
// none is configured.
const DefaultMaxConsecutiveFailures = 10

// TrackerConfig controls persistence cadence and the circuit breaker.
type TrackerConfig struct {
	// SaveInterval is the minimum time between periodic saves.
	SaveInterval time.Duration
	// MaxConsecutiveFailures trips the breaker; negative disables it.
	MaxConsecutiveFailures int
	Clock                  Clock
	Logger                 *zap.Logger
}

// Tracker folds outcomes into a Checkpoint. It is owned by the dispatcher's
// coordinator and is not safe for concurrent use.
type Tracker struct {
	cp        *Checkpoint
	store     Store
	interval  time.Duration
	threshold int
	clock     Clock
	logger    *zap.Logger

	lastSave    time.Time
	consecutive int
	tripped     bool
	lastErrors  []Record

	// low-water mark over numbered items in dispatch order
	trackCursor bool
	exhausted   bool
	pending     map[int64]int
	order       []int64
	head        int
}

// NewTracker wraps cp. A nil store keeps the checkpoint in memory only.
func NewTracker(cp *Checkpoint, store Store, cfg TrackerConfig) *Tracker {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.MaxConsecutiveFailures
	if threshold == 0 {
		threshold = DefaultMaxConsecutiveFailures
	}
	cp.Normalize()
	return &Tracker{
		cp:          cp,
		store:       store,
		interval:    cfg.SaveInterval,
		threshold:   threshold,
		clock:       clock,
		logger:      logger,
		lastSave:    clock.Now(),
		trackCursor: cp.Mode == ModeLinear || cp.Mode == ModeOutward,
		pending:     make(map[int64]int),
	}
}

// Dispatched registers item in dispatch order for cursor tracking.
func (t *Tracker) Dispatched(item probe.WorkItem) {
	if !t.tracks(item) {
		return
	}
	if _, seen := t.pending[item.Number]; !seen {
		t.order = append(t.order, item.Number)
	}
	t.pending[item.Number]++
	t.advance()
}

// SourceExhausted tells the tracker no further items will be dispatched, so
// the most recently dispatched number can no longer gain variants.
func (t *Tracker) SourceExhausted() {
	t.exhausted = true
	t.advance()
}

// Record applies one outcome and returns true once the circuit breaker has
// tripped. Periodic save failures are logged and do not stop the run.
func (t *Tracker) Record(ctx context.Context, o probe.Outcome) bool {
	c := t.cp
	c.Counts.Checked++
	rec := Record{ID: o.Item.ID, URL: o.Item.URL}
	switch o.Status {
	case probe.StatusFound:
		c.Counts.Found++
		c.Counts.Bytes += o.Size
		rec.Size = o.Size
		c.MarkFound(rec)
		t.consecutive = 0
	case probe.StatusNotFound:
		c.Counts.NotFound++
		c.Resolve(rec.ID)
		t.consecutive = 0
	case probe.StatusSkipped:
		c.Counts.Skipped++
		rec.Reason = o.Reason
		rec.Size = o.Size
		c.MarkSkipped(rec)
		t.consecutive = 0
	default:
		c.Counts.Failed++
		rec.Error = o.ErrorText()
		c.MarkFailed(rec)
		t.consecutive++
		t.rememberFailure(rec)
		if t.threshold > 0 && t.consecutive >= t.threshold && !t.tripped {
			t.tripped = true
			t.logger.Error("circuit breaker tripped",
				zap.Int("consecutive_failures", t.consecutive),
				zap.String("run", c.RunKey))
		}
	}
	t.complete(o.Item)

	now := t.clock.Now()
	c.LastUpdated = now
	if now.Sub(t.lastSave) >= t.interval {
		if err := t.save(ctx, now); err != nil {
			t.logger.Warn("checkpoint save failed", zap.String("run", c.RunKey), zap.Error(err))
		}
	}
	return t.tripped
}

// Flush persists the checkpoint unconditionally.
func (t *Tracker) Flush(ctx context.Context) error {
	now := t.clock.Now()
	t.cp.LastUpdated = now
	return t.save(ctx, now)
}

// Tripped reports whether the breaker has tripped.
func (t *Tracker) Tripped() bool {
	return t.tripped
}

// ConsecutiveFailures returns the current failure streak.
func (t *Tracker) ConsecutiveFailures() int {
	return t.consecutive
}

// RecentFailures returns the failures that make up the current streak,
// oldest first, capped at the breaker threshold.
func (t *Tracker) RecentFailures() []Record {
	return append([]Record(nil), t.lastErrors...)
}

// Checkpoint returns a deep copy of the tracked checkpoint.
func (t *Tracker) Checkpoint() *Checkpoint {
	return t.cp.Clone()
}

func (t *Tracker) save(ctx context.Context, now time.Time) error {
	t.lastSave = now
	if t.store == nil {
		return nil
	}
	if err := t.store.Save(ctx, t.cp); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", t.cp.RunKey, err)
	}
	return nil
}

func (t *Tracker) rememberFailure(rec Record) {
	if t.consecutive == 1 {
		t.lastErrors = t.lastErrors[:0]
	}
	limit := max(t.threshold, 1)
	if len(t.lastErrors) >= limit {
		t.lastErrors = t.lastErrors[1:]
	}
	t.lastErrors = append(t.lastErrors, rec)
}

func (t *Tracker) tracks(item probe.WorkItem) bool {
	return t.trackCursor && item.Numbered && !item.Retry
}

func (t *Tracker) complete(item probe.WorkItem) {
	if !t.tracks(item) {
		return
	}
	if _, ok := t.pending[item.Number]; !ok {
		return
	}
	t.pending[item.Number]--
	t.advance()
}

// advance moves the cursor past every leading number whose variants have all
// finished. The newest number is held back until another number is
// dispatched or the source is exhausted.
func (t *Tracker) advance() {
	for t.head < len(t.order) {
		n := t.order[t.head]
		if t.pending[n] > 0 {
			break
		}
		if t.head == len(t.order)-1 && !t.exhausted {
			break
		}
		delete(t.pending, n)
		cursor := n
		t.cp.Cursor = &cursor
		t.head++
	}
	if t.head > 1024 && t.head*2 > len(t.order) {
		t.order = append([]int64(nil), t.order[t.head:]...)
		t.head = 0
	}
}
