package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/app"
	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/dispatcher"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/runner"
)

const (
	dryRunListLimit = 20
	foundListLimit  = 10
	failedListLimit = 5
)

// bindFlags binds each viper key to the named flag on cmd.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q is not defined", name))
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("bind flag %q: %v", name, err))
		}
	}
}

// loadCheckpoint returns the saved checkpoint for runKey when resume is set,
// otherwise (or when nothing was saved) the result of fresh.
func loadCheckpoint(ctx context.Context, a *app.App, w io.Writer, runKey string, resume bool, fresh func() *checkpoint.Checkpoint) (*checkpoint.Checkpoint, error) {
	if !resume {
		return fresh(), nil
	}
	cp, err := a.Store.Load(ctx, runKey)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		fmt.Fprintln(w, "  No previous progress found, starting fresh")
		return fresh(), nil
	case err != nil:
		return nil, fmt.Errorf("load checkpoint %s: %w", runKey, err)
	}
	a.Logger.Info("resuming checkpoint",
		zap.String("run", runKey),
		zap.Int("found", len(cp.Found)),
		zap.Int("failed", len(cp.Failed)),
		zap.Int("skipped", len(cp.Skipped)))
	return cp, nil
}

// pass is one pool run over a prepared queue.
type pass struct {
	Checkpoint   *checkpoint.Checkpoint
	Source       dispatcher.Source
	Exec         probe.Executor
	Concurrency  int
	SaveInterval time.Duration
}

// runPass wires the tracker, hub, and optional status server around a
// runner and drives p to completion.
func runPass(ctx context.Context, a *app.App, w io.Writer, p pass) (runner.Report, error) {
	tracker := checkpoint.NewTracker(p.Checkpoint, a.Store, checkpoint.TrackerConfig{
		SaveInterval:           p.SaveInterval,
		MaxConsecutiveFailures: a.Config.Pool.MaxConsecutiveFailures,
		Logger:                 a.Logger,
	})
	hub := a.NewHub(app.HubOptions{Console: w})

	statusCtx, stopStatus := context.WithCancel(ctx)
	waitStatus, err := a.StartStatusServer(statusCtx)
	if err != nil {
		stopStatus()
		return runner.Report{}, err
	}

	r := runner.New(runner.Config{
		Pool: dispatcher.Config{
			Concurrency:     p.Concurrency,
			SequentialDelay: a.Config.Pool.SequentialDelay,
			StartupStagger:  a.Config.Pool.StartupStagger,
		},
		Emitter: hub,
		Logger:  a.Logger,
	}, p.Exec, tracker)
	report, runErr := r.Run(ctx, p.Source)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		a.Logger.Warn("progress hub close failed", zap.Error(err))
	}
	stopStatus()
	if err := waitStatus(); err != nil {
		a.Logger.Warn("status server stopped with error", zap.Error(err))
	}

	cp := report.Checkpoint
	a.Logger.Info("run finished",
		zap.String("run", cp.RunKey),
		zap.String("run_id", report.RunID.String()),
		zap.Int("completed", report.Summary.Completed),
		zap.Int("total", report.Summary.Total),
		zap.Int64("found", cp.Counts.Found),
		zap.Int64("failed", cp.Counts.Failed),
		zap.Int64("skipped", cp.Counts.Skipped),
		zap.Int64("bytes", cp.Counts.Bytes),
		zap.Duration("duration", report.Duration),
		zap.Float64("rate", report.Rate()),
		zap.Error(runErr))

	var cbErr *runner.CircuitBreakerError
	if errors.As(runErr, &cbErr) {
		fmt.Fprintf(w, "\nStopping: %d consecutive failures. Recent errors:\n", cbErr.ConsecutiveFailures)
		for _, rec := range cbErr.Failures {
			fmt.Fprintf(w, "  %s: %s\n", rec.ID, rec.Error)
		}
	}
	return report, runErr
}

// printBanner writes a boxed heading.
func printBanner(w io.Writer, title string) {
	rule := strings.Repeat("=", 45)
	fmt.Fprintf(w, "\n\n%s\n%s\n%s\n", rule, title, rule)
}

// printSummary writes the end-of-run totals for report.
func printSummary(w io.Writer, pass string, report runner.Report, runErr error) {
	cp := report.Checkpoint
	if runErr != nil {
		printBanner(w, pass+" STOPPED")
	} else {
		printBanner(w, pass+" COMPLETE")
	}
	fmt.Fprintf(w, "Checked: %d this run (%d total)\n", report.Summary.Completed, cp.Counts.Checked)
	fmt.Fprintf(w, "Found: %d (%s)\n", cp.Counts.Found, probe.FormatBytes(cp.Counts.Bytes))
	fmt.Fprintf(w, "Skipped: %d\n", cp.Counts.Skipped)
	fmt.Fprintf(w, "Failed: %d\n", len(cp.Failed))
	fmt.Fprintf(w, "Duration: %s\n", report.Duration.Round(time.Second))
	fmt.Fprintf(w, "Rate: %.1f items/sec\n", report.Rate())
}

// printRecords lists up to limit records, with errors when withError is set.
func printRecords(w io.Writer, heading string, recs []checkpoint.Record, limit int, withError bool) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", heading)
	for _, rec := range recs[:min(limit, len(recs))] {
		if withError && rec.Error != "" {
			fmt.Fprintf(w, "  %s: %s\n", rec.ID, rec.Error)
			continue
		}
		fmt.Fprintf(w, "  %s\n", rec.ID)
	}
	if len(recs) > limit {
		fmt.Fprintf(w, "  ... and %d more\n", len(recs)-limit)
	}
}

// printPreview lists the first dry-run items of total.
func printPreview(w io.Writer, heading string, items []string, total int) {
	fmt.Fprintf(w, "\n%s\n", heading)
	for _, line := range items {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if total > len(items) {
		fmt.Fprintf(w, "  ... and %d more\n", total-len(items))
	}
}
