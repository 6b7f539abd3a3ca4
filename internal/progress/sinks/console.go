package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/progress"
)

// ConsoleConfig controls the operator-facing progress output.
type ConsoleConfig struct {
	Out io.Writer
	// Every prints the progress line after this many completed items.
	Every   int
	NoColor bool
}

// ConsoleSink renders per-item highlights and a periodic progress line.
type ConsoleSink struct {
	out   io.Writer
	every int

	found   *color.Color
	failed  *color.Color
	skipped *color.Color
	dim     *color.Color

	mu     sync.Mutex
	starts map[[16]byte]time.Time
	counts map[[16]byte]map[probe.Status]int
}

// NewConsoleSink builds a ConsoleSink writing to cfg.Out.
func NewConsoleSink(cfg ConsoleConfig) *ConsoleSink {
	if cfg.Every <= 0 {
		cfg.Every = 1
	}
	s := &ConsoleSink{
		out:     cfg.Out,
		every:   cfg.Every,
		found:   color.New(color.FgGreen, color.Bold),
		failed:  color.New(color.FgRed),
		skipped: color.New(color.FgYellow),
		dim:     color.New(color.Faint),
		starts:  make(map[[16]byte]time.Time),
		counts:  make(map[[16]byte]map[probe.Status]int),
	}
	if cfg.NoColor {
		for _, c := range []*color.Color{s.found, s.failed, s.skipped, s.dim} {
			c.DisableColor()
		}
	}
	return s
}

// Consume prints the batch.
func (s *ConsoleSink) Consume(_ context.Context, batch []progress.Event) error {
	if s.out == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if err := s.render(evt); err != nil {
			return fmt.Errorf("console write: %w", err)
		}
	}
	return nil
}

func (s *ConsoleSink) render(evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		s.starts[evt.RunID] = evt.TS
		s.counts[evt.RunID] = make(map[probe.Status]int)
		_, err := s.dim.Fprintf(s.out, "Starting %s: %d items\n", evt.Run, evt.Total)
		return err
	case progress.StageItemDone:
		return s.renderItem(evt)
	case progress.StageRunDone:
		defer s.forget(evt.RunID)
		_, err := fmt.Fprintf(s.out, "\nFinished %s: %s in %s\n", evt.Run, s.tally(evt.RunID), evt.Dur.Round(time.Second))
		return err
	case progress.StageRunError:
		defer s.forget(evt.RunID)
		_, err := s.failed.Fprintf(s.out, "\nStopped %s: %s (%s)\n", evt.Run, evt.Note, s.tally(evt.RunID))
		return err
	}
	return nil
}

func (s *ConsoleSink) renderItem(evt progress.Event) error {
	counts := s.counts[evt.RunID]
	if counts == nil {
		counts = make(map[probe.Status]int)
		s.counts[evt.RunID] = counts
	}
	counts[evt.Status]++

	var err error
	switch evt.Status {
	case probe.StatusFound:
		_, err = s.found.Fprintf(s.out, "\n  FOUND %s (%s)\n", evt.Item, probe.FormatBytes(evt.Bytes))
	case probe.StatusFailed:
		_, err = s.failed.Fprintf(s.out, "\n  FAILED %s: %s\n", evt.Item, evt.Note)
	case probe.StatusSkipped:
		_, err = s.skipped.Fprintf(s.out, "\n  SKIPPED %s: %s\n", evt.Item, evt.Note)
	}
	if err != nil {
		return err
	}
	if evt.Completed%s.every != 0 && evt.Completed != evt.Total {
		return nil
	}
	_, err = fmt.Fprintf(s.out, "\r  Progress: %d/%d (%.1f%%) | Found: %d | Rate: %.1f/s   ",
		evt.Completed, evt.Total, percent(evt.Completed, evt.Total), counts[probe.StatusFound], s.rate(evt))
	return err
}

func (s *ConsoleSink) rate(evt progress.Event) float64 {
	start, ok := s.starts[evt.RunID]
	if !ok {
		return 0
	}
	elapsed := evt.TS.Sub(start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(evt.Completed) / elapsed
}

func (s *ConsoleSink) tally(id [16]byte) string {
	c := s.counts[id]
	return fmt.Sprintf("%d found, %d not found, %d skipped, %d failed",
		c[probe.StatusFound], c[probe.StatusNotFound], c[probe.StatusSkipped], c[probe.StatusFailed])
}

func (s *ConsoleSink) forget(id [16]byte) {
	delete(s.starts, id)
	delete(s.counts, id)
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) * 100 / float64(total)
}
