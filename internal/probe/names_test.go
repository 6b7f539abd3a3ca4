package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilenamePadsToEightDigits(t *testing.T) {
	t.Parallel()

	require.Equal(t, "EFTA00000007.mp4", Filename(7, ".mp4"))
	require.Equal(t, "EFTA01648557.mov", Filename(1648557, ".mov"))
	require.Equal(t, "EFTA123456789.mp4", Filename(123456789, ".mp4"))
}

func TestParseFilename(t *testing.T) {
	t.Parallel()

	n, ext, ok := ParseFilename("EFTA01648557.MP4")
	require.True(t, ok)
	require.Equal(t, int64(1648557), n)
	require.Equal(t, ".mp4", ext)

	n, ext, ok = ParseFilename("EFTA00000000.mov")
	require.True(t, ok)
	require.Zero(t, n)
	require.Equal(t, ".mov", ext)

	_, _, ok = ParseFilename("notes.txt")
	require.False(t, ok)
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"1648557":      1648557,
		"EFTA01648557": 1648557,
		"efta00000042": 42,
		" 0 ":          0,
	}
	for raw, want := range cases {
		got, err := ParseNumber(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseNumber("EFTA-12")
	require.Error(t, err)
	_, err = ParseNumber("")
	require.Error(t, err)
}

func TestItemFromFilename(t *testing.T) {
	t.Parallel()

	item := ItemFromFilename("EFTA00001234.mp4", "https://example.test/EFTA00001234.mp4")
	require.True(t, item.Numbered)
	require.Equal(t, int64(1234), item.Number)
	require.Equal(t, ".mp4", item.Variant)

	other := ItemFromFilename("readme.pdf", "https://example.test/readme.pdf")
	require.False(t, other.Numbered)
	require.Equal(t, "readme.pdf", other.ID)
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "512 B", FormatBytes(512))
	require.Equal(t, "1.50 KB", FormatBytes(1536))
	require.Equal(t, "5.00 GB", FormatBytes(5*1024*1024*1024))
}

func TestFailedDefaultsError(t *testing.T) {
	t.Parallel()

	out := Failed(WorkItem{ID: "a"}, nil)
	require.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)

	out = Failed(WorkItem{ID: "a"}, errors.New("HTTP 500"))
	require.Equal(t, "HTTP 500", out.ErrorText())
}

func TestExecutorFunc(t *testing.T) {
	t.Parallel()

	var exec Executor = ExecutorFunc(func(_ context.Context, item WorkItem) Outcome {
		return Found(item, 10, "video/mp4")
	})
	out := exec.Execute(context.Background(), WorkItem{ID: "x"})
	require.Equal(t, StatusFound, out.Status)
	require.Equal(t, int64(10), out.Size)
	require.True(t, out.Status.Valid())
	require.False(t, Status("bogus").Valid())
}
