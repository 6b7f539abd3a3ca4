package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/config"
	collyfetcher "github.com/JakeFAU/docprobe/internal/fetcher/colly"
	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/runner"
)

// newScanCmd creates the 'scan' subcommand, which probes candidate numbers
// linearly or outward from a center and records the files that exist.
func newScanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Probe EFTA numbers for files missing from the dataset listing",
		Long: `Probes <base>/EFTA<8 digits><ext> for every number in [start, end] and
every configured extension. With --center the scan expands outward from that
number, lower side first. Names already present in the dataset listing are
not probed. Progress is checkpointed as bruteforce-<dataset>-progress and the
discovered files are written to bruteforce-<dataset>-found.json.`,
		Args: cobra.NoArgs,
		RunE: runScanCommand,
	}
	f := cmd.Flags()
	f.Int("dataset", 0, "dataset number")
	f.Int64("start", 0, "lowest number to probe")
	f.Int64("end", 0, "highest number to probe")
	f.String("center", "", "expand outward from this number or EFTA name")
	f.Int("concurrency", 0, "parallel probes")
	f.Bool("resume", false, "continue from the saved checkpoint")
	f.Bool("dry-run", false, "list the first candidates without probing")
	f.String("inventory-dir", "", "directory holding data-set-<n>.json listings")
	f.String("cookie", "", "Cookie header sent with every probe")
	bindFlags(v, cmd, map[string]string{
		"scan.dataset":       "dataset",
		"scan.start":         "start",
		"scan.end":           "end",
		"scan.center":        "center",
		"scan.concurrency":   "concurrency",
		"scan.resume":        "resume",
		"scan.dry_run":       "dry-run",
		"scan.inventory_dir": "inventory-dir",
		"scan.cookie":        "cookie",
	})
	return cmd
}

func runScanCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config
	if err := cfg.ValidateScan(); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	sc := cfg.Scan
	baseURL, err := cfg.DatasetURL(sc.Dataset)
	if err != nil {
		return err
	}
	center, hasCenter, err := cfg.ScanCenter()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "EFTA file scanner")
	fmt.Fprintf(w, "Dataset: %d (%s)\n", sc.Dataset, baseURL)
	if hasCenter {
		fmt.Fprintf(w, "Mode: outward from %s\n", probe.Filename(center, ""))
		fmt.Fprintf(w, "Bounds: %d to %d\n", sc.Start, sc.End)
	} else {
		fmt.Fprintf(w, "Mode: linear\n")
		fmt.Fprintf(w, "Range: %d to %d\n", sc.Start, sc.End)
	}
	fmt.Fprintf(w, "Concurrency: %d\n", sc.Concurrency)

	known, err := inventory.LoadKnown(filepath.Join(sc.InventoryDir, inventory.DatasetFilename(sc.Dataset)))
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	fmt.Fprintf(w, "  Known files: %d\n", len(known))

	runKey := config.ScanRunKey(sc.Dataset)
	cp, err := loadCheckpoint(ctx, a, w, runKey, sc.Resume, func() *checkpoint.Checkpoint {
		cp := checkpoint.New(runKey, checkpoint.ModeLinear)
		cp.Dataset = sc.Dataset
		cp.Source = baseURL
		cp.Start = sc.Start
		cp.End = sc.End
		if hasCenter {
			cp.Mode = checkpoint.ModeOutward
			cp.Center = &center
		}
		return cp
	})
	if err != nil {
		return err
	}
	if cp.Cursor != nil {
		fmt.Fprintf(w, "  Resuming after %d (%d found so far)\n", *cp.Cursor, len(cp.Found))
	}

	q := runner.ScanQueue(cp, runner.ScanPlan{BaseURL: baseURL, Variants: sc.Variants}, known)
	cp.TotalItems = q.Len()
	fmt.Fprintf(w, "  Candidates to check: %d\n", q.Len())
	if q.Len() == 0 {
		fmt.Fprintln(w, "\nNo numbers to check!")
		return nil
	}
	if sc.DryRun {
		preview := q.Peek(dryRunListLimit)
		lines := make([]string, len(preview))
		for i, item := range preview {
			lines[i] = item.ID
		}
		printPreview(w, "Dry run - candidates that would be probed:", lines, q.Len())
		return nil
	}

	prober := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Cookie:    sc.Cookie,
		Timeout:   cfg.HTTP.ProbeTimeout,
	}, a.Limiter)

	report, runErr := runPass(ctx, a, w, pass{
		Checkpoint:   cp,
		Source:       q,
		Exec:         prober,
		Concurrency:  sc.Concurrency,
		SaveInterval: sc.SaveInterval,
	})

	reportPath := filepath.Join(cfg.Checkpoint.Dir, inventory.FoundFilename(sc.Dataset))
	wrote, err := inventory.WriteFoundReport(reportPath, sc.Dataset, report.Checkpoint, report.Started.Add(report.Duration))
	if err != nil {
		return errors.Join(runErr, err)
	}

	printSummary(w, "SCAN", report, runErr)
	if wrote {
		fmt.Fprintf(w, "\nResults saved to: %s\n", reportPath)
	}
	printRecords(w, "Found files:", report.Checkpoint.Found, foundListLimit, false)
	return runErr
}
