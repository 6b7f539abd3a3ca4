package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/config"
	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/queue"
	"github.com/JakeFAU/docprobe/internal/storage/gcs"
	"github.com/JakeFAU/docprobe/internal/uploader"
)

// newUploadCmd creates the 'upload' subcommand, which copies finished
// downloads into a GCS bucket.
func newUploadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload downloaded files to a GCS bucket",
		Long: `Lists gs://<bucket>/<prefix>/ and uploads every local file with a
configured extension that is not there yet. Uploads run through the same pool
and checkpoint as downloads, sequentially unless --concurrency is raised.`,
		Args: cobra.NoArgs,
		RunE: runUploadCommand,
	}
	f := cmd.Flags()
	f.String("bucket", "", "destination bucket")
	f.String("prefix", "", "object prefix inside the bucket")
	f.String("source", "", "directory holding the files to upload")
	f.Int("concurrency", 0, "parallel uploads")
	f.Bool("dry-run", false, "list the files that would be uploaded")
	bindFlags(v, cmd, map[string]string{
		"upload.bucket":      "bucket",
		"upload.prefix":      "prefix",
		"upload.source_dir":  "source",
		"upload.concurrency": "concurrency",
		"upload.dry_run":     "dry-run",
	})
	return cmd
}

func runUploadCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config
	if err := cfg.ValidateUpload(); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	uc := cfg.Upload

	client, err := a.StorageClient(ctx)
	if err != nil {
		return err
	}
	bucket, err := gcs.New(client, gcs.Config{Bucket: uc.Bucket, Prefix: uc.Prefix})
	if err != nil {
		return err
	}

	dest := strings.TrimSuffix(bucket.URI(""), "/") + "/"
	fmt.Fprintln(w, "Upload files to GCS")
	fmt.Fprintf(w, "Bucket: %s\n", dest)
	fmt.Fprintf(w, "Source: %s\n", uc.SourceDir)
	if uc.DryRun {
		fmt.Fprintln(w, "Mode: dry run")
	}

	remote, err := bucket.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Found %d existing files in bucket\n", len(remote))
	local, err := inventory.LocalFiles(uc.SourceDir, uc.Extensions)
	if err != nil {
		return err
	}
	items, totalBytes, err := uploader.Pending(local, uc.SourceDir, remote)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Local files: %d\n", len(local))
	fmt.Fprintf(w, "To upload: %d (%s)\n", len(items), probe.FormatBytes(totalBytes))
	fmt.Fprintf(w, "To skip: %d\n", len(local)-len(items))
	if len(items) == 0 {
		fmt.Fprintln(w, "\nAll files already exist in bucket. Nothing to upload!")
		return nil
	}
	if uc.DryRun {
		preview := items[:min(dryRunListLimit, len(items))]
		lines := make([]string, len(preview))
		for i, item := range preview {
			var size int64
			if info, err := os.Stat(filepath.Join(uc.SourceDir, item.ID)); err == nil {
				size = info.Size()
			}
			lines[i] = fmt.Sprintf("%s (%s)", item.ID, probe.FormatBytes(size))
		}
		printPreview(w, "Files that would be uploaded:", lines, len(items))
		return nil
	}

	runKey := config.UploadRunKey(uc.Bucket)
	cp, err := loadCheckpoint(ctx, a, w, runKey, true, func() *checkpoint.Checkpoint {
		cp := checkpoint.New(runKey, checkpoint.ModeUpload)
		cp.Source = uc.SourceDir
		return cp
	})
	if err != nil {
		return err
	}
	cp.TotalItems = len(local)

	exec, err := uploader.New(uc.SourceDir, bucket)
	if err != nil {
		return err
	}
	report, runErr := runPass(ctx, a, w, pass{
		Checkpoint:   cp,
		Source:       queue.FromItems(items),
		Exec:         exec,
		Concurrency:  uc.Concurrency,
		SaveInterval: uc.SaveInterval,
	})

	printSummary(w, "UPLOAD", report, runErr)
	printRecords(w, "Failed files:", report.Checkpoint.Failed, foundListLimit, true)
	fmt.Fprintf(w, "\nFiles accessible at: %s<filename>\n", dest)
	return runErr
}
