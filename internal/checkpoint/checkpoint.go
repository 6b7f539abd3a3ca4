// Package checkpoint holds the durable progress record for a run and the
// tracker that folds outcomes into it.
package checkpoint

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/JakeFAU/docprobe/internal/probe"
)

// ErrNotFound is returned by Store.Load when no checkpoint exists for a key.
var ErrNotFound = errors.New("checkpoint not found")

// Mode identifies the kind of run a checkpoint belongs to.
type Mode string

// Supported run modes.
const (
	ModeLinear   Mode = "linear"
	ModeOutward  Mode = "outward"
	ModeDownload Mode = "download"
	ModeUpload   Mode = "upload"
)

// Record is one entry in a found, failed, or skipped bucket.
type Record struct {
	ID     string `json:"filename"`
	URL    string `json:"url,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Counts are monotonic per-run counters.
type Counts struct {
	Checked  int64 `json:"checked"`
	Found    int64 `json:"found"`
	NotFound int64 `json:"not_found"`
	Failed   int64 `json:"failed"`
	Skipped  int64 `json:"skipped"`
	Bytes    int64 `json:"bytes"`
}

// Checkpoint is the persisted progress of a single run. The found, failed,
// and skipped buckets are mutually exclusive by identifier.
type Checkpoint struct {
	RunKey      string    `json:"run_key"`
	Mode        Mode      `json:"mode"`
	Dataset     int       `json:"dataset,omitempty"`
	Source      string    `json:"source,omitempty"`
	Start       int64     `json:"start_num"`
	End         int64     `json:"end_num"`
	Center      *int64    `json:"center_num,omitempty"`
	Cursor      *int64    `json:"current_num,omitempty"`
	TotalItems  int       `json:"total_items"`
	Counts      Counts    `json:"counts"`
	Found       []Record  `json:"found_files"`
	Failed      []Record  `json:"failed_files"`
	Skipped     []Record  `json:"skipped_files"`
	LastUpdated time.Time `json:"last_updated"`
}

// New returns an empty checkpoint for runKey.
func New(runKey string, mode Mode) *Checkpoint {
	return &Checkpoint{
		RunKey:  runKey,
		Mode:    mode,
		Found:   []Record{},
		Failed:  []Record{},
		Skipped: []Record{},
	}
}

// Store persists checkpoints by run key.
type Store interface {
	// Load returns ErrNotFound when nothing has been saved for runKey.
	Load(ctx context.Context, runKey string) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// MarkFound records id in the found bucket and removes it from the others.
func (c *Checkpoint) MarkFound(rec Record) {
	c.Failed = removeID(c.Failed, rec.ID)
	c.Skipped = removeID(c.Skipped, rec.ID)
	if !containsID(c.Found, rec.ID) {
		c.Found = append(c.Found, rec)
	}
}

// MarkFailed records id in the failed bucket, updating the error in place
// when id has failed before, and removes it from the skipped bucket. An id
// that is already found stays found.
func (c *Checkpoint) MarkFailed(rec Record) {
	if containsID(c.Found, rec.ID) {
		return
	}
	c.Skipped = removeID(c.Skipped, rec.ID)
	if i := indexID(c.Failed, rec.ID); i >= 0 {
		c.Failed[i].Error = rec.Error
		if rec.URL != "" {
			c.Failed[i].URL = rec.URL
		}
		return
	}
	c.Failed = append(c.Failed, rec)
}

// Resolve drops id from the failed bucket after a clean negative answer.
func (c *Checkpoint) Resolve(id string) {
	c.Failed = removeID(c.Failed, id)
}

// MarkSkipped records id in the skipped bucket once and removes it from the
// failed bucket.
func (c *Checkpoint) MarkSkipped(rec Record) {
	if containsID(c.Found, rec.ID) {
		return
	}
	c.Failed = removeID(c.Failed, rec.ID)
	if !containsID(c.Skipped, rec.ID) {
		c.Skipped = append(c.Skipped, rec)
	}
}

// Bucket names the checkpoint bucket an identifier lives in.
type Bucket string

// Checkpoint buckets.
const (
	BucketFound   Bucket = "found"
	BucketFailed  Bucket = "failed"
	BucketSkipped Bucket = "skipped"
)

// Index maps identifiers to their bucket for constant-time lookups while
// planning a resumed run.
type Index map[string]Bucket

// Index builds a lookup over every bucket.
func (c *Checkpoint) Index() Index {
	idx := make(Index, len(c.Found)+len(c.Failed)+len(c.Skipped))
	for _, r := range c.Failed {
		idx[r.ID] = BucketFailed
	}
	for _, r := range c.Skipped {
		idx[r.ID] = BucketSkipped
	}
	for _, r := range c.Found {
		idx[r.ID] = BucketFound
	}
	return idx
}

// Settled reports whether id is found or skipped.
func (i Index) Settled(id string) bool {
	b, ok := i[id]
	return ok && b != BucketFailed
}

// Contains reports whether id is in any bucket.
func (i Index) Contains(id string) bool {
	_, ok := i[id]
	return ok
}

// ClearFailed empties the failed bucket and returns its previous contents.
func (c *Checkpoint) ClearFailed() []Record {
	prev := c.Failed
	c.Failed = []Record{}
	return prev
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Found = slices.Clone(c.Found)
	out.Failed = slices.Clone(c.Failed)
	out.Skipped = slices.Clone(c.Skipped)
	if c.Center != nil {
		v := *c.Center
		out.Center = &v
	}
	if c.Cursor != nil {
		v := *c.Cursor
		out.Cursor = &v
	}
	return &out
}

// Normalize replaces nil buckets with empty ones after decoding.
func (c *Checkpoint) Normalize() {
	if c.Found == nil {
		c.Found = []Record{}
	}
	if c.Failed == nil {
		c.Failed = []Record{}
	}
	if c.Skipped == nil {
		c.Skipped = []Record{}
	}
}

// FailedItems converts the failed bucket back into work items.
func (c *Checkpoint) FailedItems() []probe.WorkItem {
	out := make([]probe.WorkItem, 0, len(c.Failed))
	for _, rec := range c.Failed {
		item := probe.ItemFromFilename(rec.ID, rec.URL)
		item.Retry = true
		out = append(out, item)
	}
	return out
}

func indexID(recs []Record, id string) int {
	return slices.IndexFunc(recs, func(r Record) bool { return r.ID == id })
}

func containsID(recs []Record, id string) bool {
	return indexID(recs, id) >= 0
}

func removeID(recs []Record, id string) []Record {
	return slices.DeleteFunc(recs, func(r Record) bool { return r.ID == id })
}
