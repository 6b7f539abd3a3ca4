// Package inventory reads the dataset listings produced by the page scraper
// and derives the known-file sets and reports used by the probe runs.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/storage/local"
)

// File is one scraped file entry.
type File struct {
	Filename      string `json:"filename"`
	URL           string `json:"url"`
	SourcePageURL string `json:"sourcePageUrl,omitempty"`
}

// Dataset is the scraper's per-dataset listing (data-set-N.json).
type Dataset struct {
	DatasetID  int    `json:"datasetId"`
	TotalPages int    `json:"totalPages"`
	ScrapedAt  string `json:"scrapedAt"`
	Files      []File `json:"mp4Files"`
}

// DatasetFilename returns the conventional listing name for a dataset.
func DatasetFilename(dataset int) string {
	return fmt.Sprintf("data-set-%d.json", dataset)
}

// LoadDataset reads and decodes a dataset listing.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied listing path.
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return ds, nil
}

// Set holds known number/variant pairs keyed as "number:ext".
type Set map[string]struct{}

func key(number int64, variant string) string {
	return strconv.FormatInt(number, 10) + ":" + strings.ToLower(variant)
}

// Add records a number/variant pair.
func (s Set) Add(number int64, variant string) {
	s[key(number, variant)] = struct{}{}
}

// Has reports whether the pair is known.
func (s Set) Has(number int64, variant string) bool {
	_, ok := s[key(number, variant)]
	return ok
}

// SetFromDataset collects every canonical filename in ds. Entries that do not
// follow the canonical pattern are ignored.
func SetFromDataset(ds Dataset) Set {
	set := make(Set, len(ds.Files))
	for _, f := range ds.Files {
		if n, ext, ok := probe.ParseFilename(f.Filename); ok {
			set.Add(n, ext)
		}
	}
	return set
}

// LoadKnown reads the listing at path into a Set. A missing listing yields an
// empty set; an unreadable or malformed one is an error.
func LoadKnown(path string) (Set, error) {
	ds, err := LoadDataset(path)
	if errors.Is(err, os.ErrNotExist) {
		return Set{}, nil
	}
	if err != nil {
		return nil, err
	}
	return SetFromDataset(ds), nil
}

// FileCount is the number of entries found in one listing.
type FileCount struct {
	File  string `json:"file"`
	Count int    `json:"count"`
}

// UniqueReport summarizes the union of several listings.
type UniqueReport struct {
	Files     []FileCount `json:"files"`
	Filenames []string    `json:"filenames"`
}

// UniqueFilenames reads every data-set-*.json listing in dir and returns the
// per-file counts and the sorted union of filenames.
func UniqueFilenames(dir string) (UniqueReport, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "data-set-*.json"))
	if err != nil {
		return UniqueReport{}, fmt.Errorf("glob listings: %w", err)
	}
	sort.Strings(paths)
	seen := make(map[string]struct{})
	report := UniqueReport{Files: make([]FileCount, 0, len(paths))}
	for _, path := range paths {
		if strings.HasSuffix(path, "-progress.json") || strings.HasSuffix(path, "-found.json") {
			continue
		}
		ds, err := LoadDataset(path)
		if err != nil {
			return UniqueReport{}, err
		}
		report.Files = append(report.Files, FileCount{File: filepath.Base(path), Count: len(ds.Files)})
		for _, f := range ds.Files {
			seen[f.Filename] = struct{}{}
		}
	}
	report.Filenames = make([]string, 0, len(seen))
	for name := range seen {
		report.Filenames = append(report.Filenames, name)
	}
	sort.Strings(report.Filenames)
	return report, nil
}

// FoundReport lists the files a scan discovered.
type FoundReport struct {
	Dataset int                 `json:"dataset"`
	FoundAt time.Time           `json:"found_at"`
	Files   []checkpoint.Record `json:"files"`
}

// FoundFilename returns the conventional report name for a dataset scan.
func FoundFilename(dataset int) string {
	return fmt.Sprintf("bruteforce-%d-found.json", dataset)
}

// WriteFoundReport writes the found bucket of cp to path. Nothing is written
// when the bucket is empty.
func WriteFoundReport(path string, dataset int, cp *checkpoint.Checkpoint, at time.Time) (bool, error) {
	if cp == nil || len(cp.Found) == 0 {
		return false, nil
	}
	report := FoundReport{Dataset: dataset, FoundAt: at, Files: cp.Found}
	if err := local.WriteJSON(path, report); err != nil {
		return false, fmt.Errorf("write found report: %w", err)
	}
	return true, nil
}

// LocalFiles lists regular files in dir whose extension matches one of exts
// (case-insensitive), sorted by name.
func LocalFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		want[strings.ToLower(ext)] = struct{}{}
	}
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if _, ok := want[strings.ToLower(filepath.Ext(entry.Name()))]; ok || len(want) == 0 {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
