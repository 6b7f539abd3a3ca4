package runner

import (
	"strings"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/queue"
)

// ScanPlan describes the candidate space of a scan.
type ScanPlan struct {
	BaseURL  string
	Variants []string
}

// ItemURL joins base and a file name.
func ItemURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}

// ScanQueue builds the work for a scan checkpoint. Previously failed items
// come first. Pairs already inventoried or present in any checkpoint bucket
// are left out, and numbers up to the saved cursor are not revisited.
func ScanQueue(cp *checkpoint.Checkpoint, plan ScanPlan, known queue.Known) *queue.Queue {
	var numbers []int64
	switch cp.Mode {
	case checkpoint.ModeOutward:
		center := cp.Start
		if cp.Center != nil {
			center = *cp.Center
		}
		numbers = queue.Outward(center, cp.Start, cp.End)
	default:
		numbers = queue.Linear(cp.Start, cp.End)
	}
	if cp.Cursor != nil {
		numbers = queue.After(numbers, *cp.Cursor)
	}

	idx := cp.Index()
	exclude := func(n int64, v string) bool {
		if known != nil && known.Has(n, v) {
			return true
		}
		return idx.Contains(probe.Filename(n, v))
	}
	build := func(n int64, v string) probe.WorkItem {
		name := probe.Filename(n, v)
		return probe.WorkItem{
			ID:       name,
			Number:   n,
			Numbered: true,
			Variant:  v,
			URL:      ItemURL(plan.BaseURL, name),
		}
	}
	return queue.New(cp.FailedItems(), numbers, plan.Variants, exclude, build)
}

// DownloadOptions narrows the download list.
type DownloadOptions struct {
	// RetryFailed keeps only the files in the failed bucket.
	RetryFailed bool
	// StartFrom drops this many files from the front of the selection.
	StartFrom int
	// Max caps the selection; zero means no cap.
	Max int
}

// DownloadQueue selects the files to fetch. By default found and skipped
// files are left out and previously failed ones are retried in list order.
func DownloadQueue(files []inventory.File, cp *checkpoint.Checkpoint, opts DownloadOptions) *queue.Queue {
	idx := cp.Index()
	items := make([]probe.WorkItem, 0, len(files))
	for _, f := range files {
		bucket, seen := idx[f.Filename]
		if opts.RetryFailed {
			if !seen || bucket != checkpoint.BucketFailed {
				continue
			}
		} else if idx.Settled(f.Filename) {
			continue
		}
		items = append(items, probe.ItemFromFilename(f.Filename, f.URL))
	}
	if opts.StartFrom > 0 {
		items = items[min(opts.StartFrom, len(items)):]
	}
	if opts.Max > 0 && len(items) > opts.Max {
		items = items[:opts.Max]
	}
	return queue.FromItems(items)
}
