package runner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/probe"
)

func ids(items []probe.WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestScanQueueLinearResume(t *testing.T) {
	t.Parallel()

	cp := checkpoint.New("scan", checkpoint.ModeLinear)
	cp.Start, cp.End = 1, 5
	cursor := int64(2)
	cp.Cursor = &cursor
	cp.MarkFailed(checkpoint.Record{ID: "EFTA00000002.mov", URL: "https://h/EFTA00000002.mov", Error: "timeout"})
	cp.MarkFound(checkpoint.Record{ID: "EFTA00000004.mp4"})

	known := inventory.Set{}
	known.Add(5, ".mov")

	q := ScanQueue(cp, ScanPlan{BaseURL: "https://h", Variants: []string{".mp4", ".mov"}}, known)
	got := q.Drain()
	require.Equal(t, []string{
		"EFTA00000002.mov",
		"EFTA00000003.mp4", "EFTA00000003.mov",
		"EFTA00000004.mov",
		"EFTA00000005.mp4",
	}, ids(got))
	require.True(t, got[0].Retry)
	require.False(t, got[1].Retry)
	require.Equal(t, "https://h/EFTA00000003.mp4", got[1].URL)
	require.Equal(t, 5, q.Len())
}

func TestScanQueueOutward(t *testing.T) {
	t.Parallel()

	cp := checkpoint.New("scan", checkpoint.ModeOutward)
	cp.Start, cp.End = 98, 103
	center := int64(100)
	cp.Center = &center

	got := ScanQueue(cp, ScanPlan{BaseURL: "b", Variants: []string{".mp4"}}, nil).Drain()
	numbers := make([]int64, 0, len(got))
	for _, it := range got {
		numbers = append(numbers, it.Number)
	}
	require.Equal(t, []int64{100, 99, 101, 98, 102, 103}, numbers)

	cursor := int64(101)
	cp.Cursor = &cursor
	got = ScanQueue(cp, ScanPlan{BaseURL: "b", Variants: []string{".mp4"}}, nil).Drain()
	require.Equal(t, []string{"EFTA00000098.mp4", "EFTA00000102.mp4", "EFTA00000103.mp4"}, ids(got))
}

func TestScanQueueEmptyRange(t *testing.T) {
	t.Parallel()

	cp := checkpoint.New("scan", checkpoint.ModeLinear)
	cp.Start, cp.End = 9, 3
	require.Zero(t, ScanQueue(cp, ScanPlan{Variants: []string{".mp4"}}, nil).Len())
}

func TestDownloadQueueSelection(t *testing.T) {
	t.Parallel()

	cp := checkpoint.New("dl", checkpoint.ModeDownload)
	cp.MarkFound(checkpoint.Record{ID: "a.mp4"})
	cp.MarkSkipped(checkpoint.Record{ID: "b.mp4", Reason: "size_too_large"})
	cp.MarkFailed(checkpoint.Record{ID: "c.mp4", Error: "HTTP 500"})

	files := []inventory.File{
		{Filename: "a.mp4"}, {Filename: "b.mp4"}, {Filename: "c.mp4"},
		{Filename: "d.mp4"}, {Filename: "e.mp4"}, {Filename: "f.mp4"},
	}

	tests := []struct {
		name string
		opts DownloadOptions
		want []string
	}{
		{name: "default", want: []string{"c.mp4", "d.mp4", "e.mp4", "f.mp4"}},
		{name: "retry failed", opts: DownloadOptions{RetryFailed: true}, want: []string{"c.mp4"}},
		{name: "start from", opts: DownloadOptions{StartFrom: 2}, want: []string{"e.mp4", "f.mp4"}},
		{name: "max", opts: DownloadOptions{Max: 2}, want: []string{"c.mp4", "d.mp4"}},
		{name: "start past end", opts: DownloadOptions{StartFrom: 10}, want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ids(DownloadQueue(files, cp, tc.opts).Drain())
			require.Equal(t, tc.want, got)
		})
	}
}
