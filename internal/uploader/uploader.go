// Package uploader copies local media files into object storage, one work
// item per file.
package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/docprobe/internal/probe"
)

// ObjectWriter stores a stream under name and returns its URI.
type ObjectWriter interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// Uploader implements probe.Executor for files under SourceDir.
type Uploader struct {
	sourceDir string
	dest      ObjectWriter
}

// New returns an Uploader reading from sourceDir.
func New(sourceDir string, dest ObjectWriter) (*Uploader, error) {
	if strings.TrimSpace(sourceDir) == "" {
		return nil, fmt.Errorf("source directory is required")
	}
	if dest == nil {
		return nil, fmt.Errorf("object writer is required")
	}
	return &Uploader{sourceDir: sourceDir, dest: dest}, nil
}

// Execute uploads item.ID. The outcome URL carries the object URI.
func (u *Uploader) Execute(ctx context.Context, item probe.WorkItem) probe.Outcome {
	name := filepath.Base(item.ID)
	if name != item.ID || name == "." {
		return probe.Failed(item, fmt.Errorf("invalid filename %q", item.ID))
	}
	f, err := os.Open(filepath.Join(u.sourceDir, name)) // #nosec G304 -- name has no directory part.
	if err != nil {
		return probe.Failed(item, fmt.Errorf("open %s: %w", name, err))
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return probe.Failed(item, fmt.Errorf("stat %s: %w", name, err))
	}
	contentType := ContentType(name)
	uri, err := u.dest.Upload(ctx, name, contentType, f)
	if err != nil {
		return probe.Failed(item, fmt.Errorf("upload %s: %w", name, err))
	}
	item.URL = uri
	return probe.Found(item, info.Size(), contentType)
}

// ContentType maps the media extensions this tool handles.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// Pending returns the local names that are not yet present remotely, with
// their sizes.
func Pending(local []string, sourceDir string, remote map[string]int64) ([]probe.WorkItem, int64, error) {
	var (
		items []probe.WorkItem
		total int64
	)
	for _, name := range local {
		if _, ok := remote[name]; ok {
			continue
		}
		info, err := os.Stat(filepath.Join(sourceDir, name))
		if err != nil {
			return nil, 0, fmt.Errorf("stat %s: %w", name, err)
		}
		item := probe.ItemFromFilename(name, "")
		items = append(items, item)
		total += info.Size()
	}
	return items, total, nil
}
