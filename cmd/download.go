package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/config"
	"github.com/JakeFAU/docprobe/internal/fetcher/direct"
	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/runner"
)

// newDownloadCmd creates the 'download' subcommand, which fetches every file
// in a dataset listing into the output directory.
func newDownloadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [dataset-file]",
		Short: "Download the files named in a dataset listing",
		Long: `Downloads every file in a data-set-<n>.json listing that has not been
downloaded or skipped yet. Files that already exist locally are skipped, as
are files larger than --max-size. Progress is checkpointed as
<listing>-download-progress so an interrupted run picks up where it stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDownloadCommand,
	}
	f := cmd.Flags()
	f.String("output", "", "directory to write files into")
	f.Int("concurrency", 0, "parallel downloads")
	f.Int64("max-size", 0, "skip files larger than this many MB (0 disables)")
	f.Int("max", 0, "download at most this many files")
	f.Int("start-from", 0, "skip this many files of the selection")
	f.Bool("retry-failed", false, "only retry files that failed before")
	f.Bool("clear-progress", false, "ignore the saved checkpoint and start over")
	f.Bool("dry-run", false, "list the files that would be downloaded")
	f.String("cookie", "", "Cookie header sent with every request")
	bindFlags(v, cmd, map[string]string{
		"download.output_dir":     "output",
		"download.concurrency":    "concurrency",
		"download.max_size_mb":    "max-size",
		"download.max":            "max",
		"download.start_from":     "start-from",
		"download.retry_failed":   "retry-failed",
		"download.clear_progress": "clear-progress",
		"download.dry_run":        "dry-run",
		"download.cookie":         "cookie",
	})
	return cmd
}

func runDownloadCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config
	if len(args) == 1 {
		cfg.Download.DatasetFile = args[0]
	}
	if err := cfg.ValidateDownload(); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	dc := cfg.Download

	ds, err := inventory.LoadDataset(dc.DatasetFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Dataset file downloader")
	fmt.Fprintf(w, "Dataset: %d (%d files, scraped %s)\n", ds.DatasetID, len(ds.Files), ds.ScrapedAt)
	fmt.Fprintf(w, "Output: %s\n", dc.OutputDir)
	fmt.Fprintf(w, "Concurrency: %d\n", dc.Concurrency)
	if dc.MaxSizeMB > 0 {
		fmt.Fprintf(w, "Max file size: %d MB\n", dc.MaxSizeMB)
	}

	runKey := config.DownloadRunKey(dc.DatasetFile)
	cp, err := loadCheckpoint(ctx, a, w, runKey, !dc.ClearProgress, func() *checkpoint.Checkpoint {
		cp := checkpoint.New(runKey, checkpoint.ModeDownload)
		cp.Dataset = ds.DatasetID
		cp.Source = dc.DatasetFile
		return cp
	})
	if err != nil {
		return err
	}
	cp.TotalItems = len(ds.Files)

	q := runner.DownloadQueue(ds.Files, cp, runner.DownloadOptions{
		RetryFailed: dc.RetryFailed,
		StartFrom:   dc.StartFrom,
		Max:         dc.Max,
	})
	if dc.RetryFailed {
		fmt.Fprintf(w, "Retry mode: %d failed files to retry\n", q.Len())
	}
	if dc.StartFrom > 0 {
		fmt.Fprintf(w, "Starting from index %d\n", dc.StartFrom)
	}
	fmt.Fprintf(w, "Progress: %d done, %d skipped, %d failed\n", len(cp.Found), len(cp.Skipped), len(cp.Failed))
	fmt.Fprintf(w, "Files to download: %d\n", q.Len())
	if q.Len() == 0 {
		fmt.Fprintln(w, "\nNo files to download!")
		return nil
	}
	if dc.DryRun {
		preview := q.Peek(dryRunListLimit)
		lines := make([]string, len(preview))
		for i, item := range preview {
			lines[i] = item.ID
		}
		printPreview(w, "Dry run - files that would be downloaded:", lines, q.Len())
		return nil
	}

	downloader, err := direct.New(direct.Config{
		OutputDir:     dc.OutputDir,
		MaxSizeMB:     dc.MaxSizeMB,
		UserAgent:     cfg.HTTP.UserAgent,
		Cookie:        dc.Cookie,
		HeaderTimeout: cfg.HTTP.HeaderTimeout,
		IdleTimeout:   cfg.HTTP.IdleTimeout,
	}, nil, a.Limiter)
	if err != nil {
		return fmt.Errorf("init downloader: %w", err)
	}

	report, runErr := runPass(ctx, a, w, pass{
		Checkpoint:   cp,
		Source:       q,
		Exec:         downloader,
		Concurrency:  dc.Concurrency,
		SaveInterval: dc.SaveInterval,
	})

	printSummary(w, "DOWNLOAD", report, runErr)
	fmt.Fprintf(w, "\nTotal progress: %d/%d files\n", len(report.Checkpoint.Found), len(ds.Files))
	printRecords(w, "Failed files (use --retry-failed to retry):", report.Checkpoint.Failed, failedListLimit, true)
	return runErr
}
