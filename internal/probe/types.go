package probe

import (
	"context"
	"errors"
	"time"
)

// Status classifies the result of executing a single WorkItem.
type Status string

// Supported outcome statuses.
const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFound, StatusNotFound, StatusSkipped, StatusFailed:
		return true
	default:
		return false
	}
}

// Skip reasons recorded by the download and upload executors.
const (
	ReasonAlreadyExists = "already_exists"
	ReasonSizeTooLarge  = "size_too_large"
)

// ErrSessionNotEstablished is reported when the remote answers with an HTML
// page instead of the requested file, usually an age gate or login wall.
var ErrSessionNotEstablished = errors.New("session_not_established")

// WorkItem is one unit of work: a candidate identifier and where to find it.
type WorkItem struct {
	// ID is the stable identifier used for checkpoint buckets (the filename).
	ID string
	// Number is the numeric component of ID; valid only when Numbered is set.
	Number   int64
	Numbered bool
	// Variant is the file extension including the dot, e.g. ".mp4".
	Variant string
	// URL locates the item remotely.
	URL string
	// Retry marks items re-enqueued from an earlier run's failed bucket.
	Retry bool
}

// Outcome is the classified result of executing a WorkItem.
type Outcome struct {
	Item        WorkItem
	Status      Status
	Reason      string
	Err         error
	Size        int64
	ContentType string
	Duration    time.Duration
}

// ErrorText returns the failure text or an empty string.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Found builds a found outcome.
func Found(item WorkItem, size int64, contentType string) Outcome {
	return Outcome{Item: item, Status: StatusFound, Size: size, ContentType: contentType}
}

// NotFound builds a not-found outcome with an optional reason such as "HTTP 404".
func NotFound(item WorkItem, reason string) Outcome {
	return Outcome{Item: item, Status: StatusNotFound, Reason: reason}
}

// Skipped builds a skipped outcome.
func Skipped(item WorkItem, reason string, size int64) Outcome {
	return Outcome{Item: item, Status: StatusSkipped, Reason: reason, Size: size}
}

// Failed builds a failed outcome.
func Failed(item WorkItem, err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Outcome{Item: item, Status: StatusFailed, Err: err}
}

// Executor performs the probe, download, or upload for a single item. It must
// be safe for concurrent use and always return an Outcome; transport problems
// are reported as StatusFailed rather than through a separate error.
type Executor interface {
	Execute(ctx context.Context, item WorkItem) Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, item WorkItem) Outcome

// Execute calls f(ctx, item).
func (f ExecutorFunc) Execute(ctx context.Context, item WorkItem) Outcome {
	return f(ctx, item)
}
