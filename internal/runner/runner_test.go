package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/dispatcher"
	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/progress"
	"github.com/JakeFAU/docprobe/internal/queue"
	"github.com/JakeFAU/docprobe/internal/storage/memory"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

func (e *recordingEmitter) last() progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

func newRunner(t *testing.T, cp *checkpoint.Checkpoint, store checkpoint.Store, k int, exec probe.Executor) (*Runner, *recordingEmitter) {
	t.Helper()
	em := &recordingEmitter{}
	tr := checkpoint.NewTracker(cp, store, checkpoint.TrackerConfig{SaveInterval: time.Hour})
	return New(Config{Pool: dispatcher.Config{Concurrency: k}, Emitter: em}, exec, tr), em
}

func TestRunScanRecordsOutcomes(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	cp := checkpoint.New("bruteforce-9-progress", checkpoint.ModeLinear)
	cp.Start, cp.End = 5, 8
	known := inventory.Set{}
	known.Add(6, ".mp4")

	exec := probe.ExecutorFunc(func(_ context.Context, item probe.WorkItem) probe.Outcome {
		if item.Number == 7 {
			return probe.Found(item, 4096, "video/mp4")
		}
		return probe.NotFound(item, "HTTP 404")
	})
	src := ScanQueue(cp, ScanPlan{BaseURL: "https://host/DataSet%209/", Variants: []string{".mp4"}}, known)
	require.Equal(t, 3, src.Len())

	r, em := newRunner(t, cp, store, 2, exec)
	report, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	require.Equal(t, 3, report.Summary.Completed)
	require.Equal(t, int64(3), report.Checkpoint.Counts.Checked)
	require.Equal(t, int64(1), report.Checkpoint.Counts.Found)
	require.Equal(t, int64(4096), report.Checkpoint.Counts.Bytes)
	require.Equal(t, "EFTA00000007.mp4", report.Checkpoint.Found[0].ID)
	require.Equal(t, "https://host/DataSet%209/EFTA00000007.mp4", report.Checkpoint.Found[0].URL)
	require.NotNil(t, report.Checkpoint.Cursor)
	require.Equal(t, int64(8), *report.Checkpoint.Cursor)

	saved, err := store.Load(context.Background(), "bruteforce-9-progress")
	require.NoError(t, err)
	require.Equal(t, int64(3), saved.Counts.Checked)

	stages := em.stages()
	require.Equal(t, progress.StageRunStart, stages[0])
	require.Equal(t, progress.StageRunDone, stages[len(stages)-1])
	require.Len(t, stages, 5)
	require.Equal(t, "bruteforce-9-progress", em.last().Run)
}

func TestRunTripsCircuitBreaker(t *testing.T) {
	t.Parallel()

	const k = 3
	store := memory.NewStore()
	cp := checkpoint.New("dl", checkpoint.ModeDownload)
	var started atomic.Int64
	exec := probe.ExecutorFunc(func(_ context.Context, item probe.WorkItem) probe.Outcome {
		started.Add(1)
		return probe.Failed(item, errors.New("connection refused"))
	})

	items := make([]probe.WorkItem, 100)
	for i := range items {
		items[i] = probe.ItemFromFilename(probe.Filename(int64(i+1), ".mp4"), "")
	}

	r, em := newRunner(t, cp, store, k, exec)
	report, err := r.Run(context.Background(), queue.FromItems(items))

	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	require.GreaterOrEqual(t, cbErr.ConsecutiveFailures, checkpoint.DefaultMaxConsecutiveFailures)
	require.Len(t, cbErr.Failures, checkpoint.DefaultMaxConsecutiveFailures)
	require.LessOrEqual(t, report.Summary.Dispatched, checkpoint.DefaultMaxConsecutiveFailures+k)
	require.Equal(t, int64(report.Summary.Dispatched), started.Load())
	require.True(t, report.Summary.Stopped)

	saved, loadErr := store.Load(context.Background(), "dl")
	require.NoError(t, loadErr)
	require.Equal(t, int64(report.Summary.Dispatched), saved.Counts.Failed)

	last := em.last()
	require.Equal(t, progress.StageRunError, last.Stage)
	require.Contains(t, last.Note, "circuit breaker tripped")
}

func TestResumeNeverRedispatchesSettledItems(t *testing.T) {
	t.Parallel()

	cp := checkpoint.New("dl", checkpoint.ModeDownload)
	cp.MarkFound(checkpoint.Record{ID: "EFTA00000001.mp4"})
	cp.MarkSkipped(checkpoint.Record{ID: "EFTA00000002.mp4", Reason: probe.ReasonAlreadyExists})
	cp.MarkFailed(checkpoint.Record{ID: "EFTA00000003.mp4", Error: "HTTP 503"})

	files := []inventory.File{
		{Filename: "EFTA00000001.mp4", URL: "u1"},
		{Filename: "EFTA00000002.mp4", URL: "u2"},
		{Filename: "EFTA00000003.mp4", URL: "u3"},
		{Filename: "EFTA00000004.mp4", URL: "u4"},
	}

	var mu sync.Mutex
	var seen []string
	exec := probe.ExecutorFunc(func(_ context.Context, item probe.WorkItem) probe.Outcome {
		mu.Lock()
		seen = append(seen, item.ID)
		mu.Unlock()
		return probe.Found(item, 1, "video/mp4")
	})

	r, _ := newRunner(t, cp, nil, 1, exec)
	report, err := r.Run(context.Background(), DownloadQueue(files, cp, DownloadOptions{}))
	require.NoError(t, err)
	require.Equal(t, []string{"EFTA00000003.mp4", "EFTA00000004.mp4"}, seen)
	require.Empty(t, report.Checkpoint.Failed)
	require.Len(t, report.Checkpoint.Found, 3)
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cp := checkpoint.New("dl", checkpoint.ModeDownload)
	store := memory.NewStore()
	exec := probe.ExecutorFunc(func(_ context.Context, item probe.WorkItem) probe.Outcome {
		return probe.Found(item, 1, "")
	})
	items := []probe.WorkItem{{ID: "a.mp4"}, {ID: "b.mp4"}}

	r, em := newRunner(t, cp, store, 1, exec)
	report, err := r.Run(ctx, queue.FromItems(items))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, report.Summary.Canceled)
	require.Equal(t, 1, store.Saves())
	require.Equal(t, progress.StageRunError, em.last().Stage)
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (*checkpoint.Checkpoint, error) {
	return nil, checkpoint.ErrNotFound
}

func (failingStore) Save(context.Context, *checkpoint.Checkpoint) error {
	return errors.New("disk full")
}

func TestRunReportsFinalSaveFailure(t *testing.T) {
	t.Parallel()

	cp := checkpoint.New("dl", checkpoint.ModeDownload)
	exec := probe.ExecutorFunc(func(_ context.Context, item probe.WorkItem) probe.Outcome {
		return probe.Found(item, 1, "")
	})
	r, _ := newRunner(t, cp, failingStore{}, 1, exec)
	_, err := r.Run(context.Background(), queue.FromItems([]probe.WorkItem{{ID: "a.mp4"}}))
	require.ErrorContains(t, err, "disk full")
}

func TestReportRate(t *testing.T) {
	t.Parallel()

	r := Report{Summary: dispatcher.Summary{Completed: 30}, Duration: 10 * time.Second}
	require.InDelta(t, 3.0, r.Rate(), 1e-9)
	require.Zero(t, Report{}.Rate())
}
