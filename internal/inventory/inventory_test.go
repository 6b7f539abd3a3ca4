package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
)

func writeDataset(t *testing.T, dir string, ds Dataset) string {
	t.Helper()
	data, err := json.Marshal(ds)
	require.NoError(t, err)
	path := filepath.Join(dir, DatasetFilename(ds.DatasetID))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadKnownBuildsVariantSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeDataset(t, dir, Dataset{DatasetID: 9, Files: []File{
		{Filename: "EFTA01648557.mp4", URL: "https://example.test/EFTA01648557.mp4"},
		{Filename: "EFTA00000012.MOV", URL: "https://example.test/EFTA00000012.MOV"},
		{Filename: "cover.pdf", URL: "https://example.test/cover.pdf"},
	}})

	set, err := LoadKnown(path)
	require.NoError(t, err)
	require.Len(t, set, 2)
	require.True(t, set.Has(1648557, ".mp4"))
	require.False(t, set.Has(1648557, ".mov"))
	require.True(t, set.Has(12, ".mov"))
}

func TestLoadKnownMissingIsEmpty(t *testing.T) {
	t.Parallel()

	set, err := LoadKnown(filepath.Join(t.TempDir(), "data-set-10.json"))
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestLoadKnownCorruptFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data-set-9.json")
	require.NoError(t, os.WriteFile(path, []byte("[oops"), 0o600))
	_, err := LoadKnown(path)
	require.Error(t, err)
}

func TestUniqueFilenames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDataset(t, dir, Dataset{DatasetID: 9, Files: []File{{Filename: "b.mp4"}, {Filename: "a.mp4"}}})
	writeDataset(t, dir, Dataset{DatasetID: 10, Files: []File{{Filename: "a.mp4"}, {Filename: "c.mov"}}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data-set-10-download-progress.json"), []byte("{}"), 0o600))

	report, err := UniqueFilenames(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a.mp4", "b.mp4", "c.mov"}, report.Filenames)
	require.Equal(t, []FileCount{
		{File: "data-set-10.json", Count: 2},
		{File: "data-set-9.json", Count: 2},
	}, report.Files)
}

func TestWriteFoundReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, FoundFilename(9))
	cp := checkpoint.New("bruteforce-9-progress", checkpoint.ModeLinear)

	wrote, err := WriteFoundReport(path, 9, cp, time.Now())
	require.NoError(t, err)
	require.False(t, wrote)

	cp.MarkFound(checkpoint.Record{ID: "EFTA00000001.mp4", URL: "https://example.test/EFTA00000001.mp4"})
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	wrote, err = WriteFoundReport(path, 9, cp, at)
	require.NoError(t, err)
	require.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report FoundReport
	require.NoError(t, json.Unmarshal(data, &report))
	require.Equal(t, 9, report.Dataset)
	require.Equal(t, at, report.FoundAt)
	require.Equal(t, "EFTA00000001.mp4", report.Files[0].ID)
}

func TestLocalFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.MP4", "a.mp4", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o750))

	files, err := LocalFiles(dir, []string{".mp4"})
	require.NoError(t, err)
	require.Equal(t, []string{"a.mp4", "b.MP4"}, files)

	_, err = LocalFiles(filepath.Join(dir, "missing"), nil)
	require.Error(t, err)
}
