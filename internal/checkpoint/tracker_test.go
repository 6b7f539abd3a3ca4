package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/probe"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeStore struct {
	saved []*Checkpoint
	err   error
}

func (s *fakeStore) Load(context.Context, string) (*Checkpoint, error) {
	if len(s.saved) == 0 {
		return nil, ErrNotFound
	}
	return s.saved[len(s.saved)-1].Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, cp *Checkpoint) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, cp.Clone())
	return nil
}

func item(n int64, variant string) probe.WorkItem {
	return probe.WorkItem{ID: probe.Filename(n, variant), Number: n, Numbered: true, Variant: variant}
}

func newTestTracker(mode Mode, store Store, clock Clock) *Tracker {
	return NewTracker(New("run", mode), store, TrackerConfig{
		SaveInterval: 3 * time.Second,
		Clock:        clock,
		Logger:       zap.NewNop(),
	})
}

func TestRecordCountsAndBuckets(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	tr := newTestTracker(ModeDownload, &fakeStore{}, clock)
	ctx := context.Background()

	tr.Record(ctx, probe.Found(item(1, ".mp4"), 100, "video/mp4"))
	tr.Record(ctx, probe.NotFound(item(2, ".mp4"), "HTTP 404"))
	tr.Record(ctx, probe.Skipped(item(3, ".mp4"), probe.ReasonAlreadyExists, 5000))
	tr.Record(ctx, probe.Skipped(item(3, ".mp4"), probe.ReasonAlreadyExists, 5000))
	tr.Record(ctx, probe.Failed(item(4, ".mp4"), errors.New("HTTP 500")))

	cp := tr.Checkpoint()
	require.Equal(t, Counts{Checked: 5, Found: 1, NotFound: 1, Failed: 1, Skipped: 2, Bytes: 100}, cp.Counts)
	require.Len(t, cp.Found, 1)
	require.Len(t, cp.Skipped, 1)
	require.Len(t, cp.Failed, 1)
	require.Equal(t, "HTTP 500", cp.Failed[0].Error)
	require.Equal(t, clock.now, cp.LastUpdated)
}

func TestFailureThenSuccessReclassifies(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(ModeDownload, nil, &fakeClock{})
	ctx := context.Background()
	it := item(7, ".mp4")

	tr.Record(ctx, probe.Failed(it, errors.New("timeout")))
	require.Len(t, tr.Checkpoint().Failed, 1)

	tr.Record(ctx, probe.Found(it, 10, "video/mp4"))
	cp := tr.Checkpoint()
	require.Empty(t, cp.Failed)
	require.Equal(t, []string{it.ID}, ids(cp.Found))
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(ModeLinear, nil, &fakeClock{})
	ctx := context.Background()

	for i := range 9 {
		require.False(t, tr.Record(ctx, probe.Failed(item(int64(i), ".mp4"), fmt.Errorf("fail %d", i))))
	}
	require.Equal(t, 9, tr.ConsecutiveFailures())
	require.True(t, tr.Record(ctx, probe.Failed(item(9, ".mp4"), errors.New("fail 9"))))
	require.True(t, tr.Tripped())
	require.Len(t, tr.RecentFailures(), DefaultMaxConsecutiveFailures)
	require.True(t, tr.Record(ctx, probe.NotFound(item(10, ".mp4"), "")))
}

func TestNonFailureResetsStreak(t *testing.T) {
	t.Parallel()

	tr := NewTracker(New("run", ModeDownload), nil, TrackerConfig{MaxConsecutiveFailures: 3, Clock: &fakeClock{}})
	ctx := context.Background()

	tr.Record(ctx, probe.Failed(item(1, ".mp4"), errors.New("x")))
	tr.Record(ctx, probe.Failed(item(2, ".mp4"), errors.New("x")))
	tr.Record(ctx, probe.Skipped(item(3, ".mp4"), probe.ReasonSizeTooLarge, 0))
	require.Zero(t, tr.ConsecutiveFailures())
	tr.Record(ctx, probe.Failed(item(4, ".mp4"), errors.New("y")))
	tr.Record(ctx, probe.Failed(item(5, ".mp4"), errors.New("y")))
	require.False(t, tr.Tripped())
	require.Len(t, tr.RecentFailures(), 2)
	require.True(t, tr.Record(ctx, probe.Failed(item(6, ".mp4"), errors.New("y"))))
}

func TestBreakerDisabled(t *testing.T) {
	t.Parallel()

	tr := NewTracker(New("run", ModeDownload), nil, TrackerConfig{MaxConsecutiveFailures: -1, Clock: &fakeClock{}})
	for i := range 50 {
		require.False(t, tr.Record(context.Background(), probe.Failed(item(int64(i), ".mp4"), errors.New("x"))))
	}
}

func TestSaveCadence(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	store := &fakeStore{}
	tr := newTestTracker(ModeLinear, store, clock)
	ctx := context.Background()

	tr.Record(ctx, probe.NotFound(item(1, ".mp4"), ""))
	clock.Advance(time.Second)
	tr.Record(ctx, probe.NotFound(item(2, ".mp4"), ""))
	require.Empty(t, store.saved)

	clock.Advance(2 * time.Second)
	tr.Record(ctx, probe.NotFound(item(3, ".mp4"), ""))
	require.Len(t, store.saved, 1)
	require.Equal(t, int64(3), store.saved[0].Counts.Checked)

	tr.Record(ctx, probe.NotFound(item(4, ".mp4"), ""))
	require.Len(t, store.saved, 1)

	require.NoError(t, tr.Flush(ctx))
	require.Len(t, store.saved, 2)
	require.Equal(t, int64(4), store.saved[1].Counts.Checked)
}

func TestPeriodicSaveErrorDoesNotStopRun(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	store := &fakeStore{err: errors.New("disk full")}
	tr := newTestTracker(ModeLinear, store, clock)

	clock.Advance(time.Minute)
	require.False(t, tr.Record(context.Background(), probe.NotFound(item(1, ".mp4"), "")))
	require.ErrorContains(t, tr.Flush(context.Background()), "disk full")
}

func TestCursorIsContiguousLowWaterMark(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(ModeLinear, nil, &fakeClock{})
	ctx := context.Background()

	for n := int64(5); n <= 8; n++ {
		tr.Dispatched(item(n, ".mp4"))
	}
	tr.Record(ctx, probe.NotFound(item(7, ".mp4"), ""))
	require.Nil(t, tr.Checkpoint().Cursor)

	tr.Record(ctx, probe.NotFound(item(5, ".mp4"), ""))
	require.Equal(t, int64(5), *tr.Checkpoint().Cursor)

	tr.Record(ctx, probe.NotFound(item(6, ".mp4"), ""))
	require.Equal(t, int64(7), *tr.Checkpoint().Cursor)

	tr.Record(ctx, probe.NotFound(item(8, ".mp4"), ""))
	require.Equal(t, int64(7), *tr.Checkpoint().Cursor)

	tr.SourceExhausted()
	require.Equal(t, int64(8), *tr.Checkpoint().Cursor)
}

func TestCursorWaitsForEveryVariant(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(ModeOutward, nil, &fakeClock{})
	ctx := context.Background()

	tr.Dispatched(item(10, ".mp4"))
	tr.Record(ctx, probe.NotFound(item(10, ".mp4"), ""))
	tr.Dispatched(item(10, ".mov"))
	tr.Dispatched(item(9, ".mp4"))
	require.Nil(t, tr.Checkpoint().Cursor)

	tr.Record(ctx, probe.Found(item(10, ".mov"), 1, "video/quicktime"))
	require.Equal(t, int64(10), *tr.Checkpoint().Cursor)
}

func TestCursorIgnoresRetriesAndDownloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := newTestTracker(ModeLinear, nil, &fakeClock{})
	retry := item(2, ".mp4")
	retry.Retry = true
	tr.Dispatched(retry)
	tr.Record(ctx, probe.NotFound(retry, ""))
	tr.SourceExhausted()
	require.Nil(t, tr.Checkpoint().Cursor)

	dl := newTestTracker(ModeDownload, nil, &fakeClock{})
	dl.Dispatched(item(3, ".mp4"))
	dl.Record(ctx, probe.Found(item(3, ".mp4"), 1, ""))
	dl.SourceExhausted()
	require.Nil(t, dl.Checkpoint().Cursor)
}
