package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/progress"
)

// Run states reported by StatusSink.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// RunStatus is a point-in-time view of one run.
type RunStatus struct {
	RunID     string                 `json:"run_id"`
	Run       string                 `json:"run"`
	State     string                 `json:"state"`
	Started   time.Time              `json:"started"`
	Finished  *time.Time             `json:"finished,omitempty"`
	Completed int                    `json:"completed"`
	Total     int                    `json:"total"`
	Counts    map[probe.Status]int64 `json:"counts"`
	Bytes     int64                  `json:"bytes"`
	LastItem  string                 `json:"last_item,omitempty"`
	Note      string                 `json:"note,omitempty"`
}

// StatusSink keeps the latest status of every run seen in memory so the
// status server can answer without touching checkpoint storage.
type StatusSink struct {
	mu   sync.RWMutex
	runs map[string]*RunStatus
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{runs: make(map[string]*RunStatus)}
}

// Consume folds the batch into the run table.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		id := evt.RunUUID().String()
		st := s.runs[id]
		if st == nil {
			st = &RunStatus{RunID: id, Run: evt.Run, State: StateRunning, Started: evt.TS, Counts: make(map[probe.Status]int64)}
			s.runs[id] = st
		}
		switch evt.Stage {
		case progress.StageRunStart:
			st.Started = evt.TS
			st.Total = evt.Total
			st.Completed = evt.Completed
		case progress.StageItemDone:
			st.Counts[evt.Status]++
			st.Bytes += evt.Bytes
			st.Completed = evt.Completed
			st.Total = evt.Total
			st.LastItem = evt.Item
		case progress.StageRunDone, progress.StageRunError:
			st.State = StateSucceeded
			if evt.Stage == progress.StageRunError {
				st.State = StateFailed
			}
			ts := evt.TS
			st.Finished = &ts
			st.Note = evt.Note
		}
	}
	return nil
}

// Get returns a copy of the status for the run key or run id.
func (s *StatusSink) Get(run string) (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.runs[run]; ok {
		return st.copy(), true
	}
	var (
		latest RunStatus
		found  bool
	)
	for _, st := range s.runs {
		if st.Run == run && (!found || st.Started.After(latest.Started)) {
			latest, found = st.copy(), true
		}
	}
	return latest, found
}

// Snapshot lists every known run, newest first.
func (s *StatusSink) Snapshot() []RunStatus {
	s.mu.RLock()
	out := make([]RunStatus, 0, len(s.runs))
	for _, st := range s.runs {
		out = append(out, st.copy())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].Started.After(out[j].Started)
	})
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}

func (r *RunStatus) copy() RunStatus {
	out := *r
	out.Counts = make(map[probe.Status]int64, len(r.Counts))
	for k, v := range r.Counts {
		out.Counts[k] = v
	}
	if r.Finished != nil {
		ts := *r.Finished
		out.Finished = &ts
	}
	return out
}
