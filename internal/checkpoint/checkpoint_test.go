package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ids(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestMarkFoundRemovesFromOtherBuckets(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeDownload)
	cp.MarkFailed(Record{ID: "a", Error: "HTTP 500"})
	cp.MarkSkipped(Record{ID: "b", Reason: "already_exists"})

	cp.MarkFound(Record{ID: "a"})
	cp.MarkFound(Record{ID: "b"})
	cp.MarkFound(Record{ID: "a"})

	require.Equal(t, []string{"a", "b"}, ids(cp.Found))
	require.Empty(t, cp.Failed)
	require.Empty(t, cp.Skipped)
}

func TestMarkFailedUpdatesErrorInPlace(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeDownload)
	cp.MarkFailed(Record{ID: "a", URL: "u", Error: "HTTP 500"})
	cp.MarkFailed(Record{ID: "b", Error: "HTTP 502"})
	cp.MarkFailed(Record{ID: "a", Error: "session_not_established"})

	require.Equal(t, []string{"a", "b"}, ids(cp.Failed))
	require.Equal(t, "session_not_established", cp.Failed[0].Error)
	require.Equal(t, "u", cp.Failed[0].URL)
}

func TestMarkFailedKeepsFound(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeLinear)
	cp.MarkFound(Record{ID: "a"})
	cp.MarkFailed(Record{ID: "a", Error: "timeout"})

	require.Equal(t, []string{"a"}, ids(cp.Found))
	require.Empty(t, cp.Failed)
}

func TestMarkSkippedRecordsOnce(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeDownload)
	cp.MarkFailed(Record{ID: "a", Error: "HTTP 500"})
	cp.MarkSkipped(Record{ID: "a", Reason: "size_too_large (6.00 GB > 5000MB)"})
	cp.MarkSkipped(Record{ID: "a", Reason: "already_exists"})

	require.Empty(t, cp.Failed)
	require.Len(t, cp.Skipped, 1)
	require.Equal(t, "size_too_large (6.00 GB > 5000MB)", cp.Skipped[0].Reason)
}

func TestResolveDropsFailure(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeLinear)
	cp.MarkFailed(Record{ID: "a", Error: "timeout"})
	cp.Resolve("a")
	require.Empty(t, cp.Failed)
}

func TestIndex(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeLinear)
	cp.MarkFound(Record{ID: "found"})
	cp.MarkFailed(Record{ID: "failed"})
	cp.MarkSkipped(Record{ID: "skipped"})

	idx := cp.Index()
	require.True(t, idx.Settled("found"))
	require.True(t, idx.Settled("skipped"))
	require.False(t, idx.Settled("failed"))
	require.True(t, idx.Contains("failed"))
	require.False(t, idx.Contains("other"))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	cursor := int64(4)
	cp := New("run", ModeLinear)
	cp.Cursor = &cursor
	cp.MarkFound(Record{ID: "a"})

	clone := cp.Clone()
	*clone.Cursor = 9
	clone.MarkFound(Record{ID: "b"})
	clone.Found[0].Size = 42

	require.Equal(t, int64(4), *cp.Cursor)
	require.Len(t, cp.Found, 1)
	require.Zero(t, cp.Found[0].Size)
	require.Nil(t, (*Checkpoint)(nil).Clone())
}

func TestFailedItemsAreRetries(t *testing.T) {
	t.Parallel()

	cp := New("run", ModeLinear)
	cp.MarkFailed(Record{ID: "EFTA00000012.mov", URL: "https://example.test/EFTA00000012.mov"})

	items := cp.FailedItems()
	require.Len(t, items, 1)
	require.True(t, items[0].Retry)
	require.True(t, items[0].Numbered)
	require.Equal(t, int64(12), items[0].Number)
	require.Equal(t, ".mov", items[0].Variant)

	prev := cp.ClearFailed()
	require.Len(t, prev, 1)
	require.Empty(t, cp.Failed)
}
