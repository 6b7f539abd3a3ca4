// Package cmd defines and implements the CLI commands for the docprobe executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/app"
	"github.com/JakeFAU/docprobe/internal/config"
	"github.com/JakeFAU/docprobe/internal/logging"
	pkgconfig "github.com/JakeFAU/docprobe/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// exitInterrupted is the conventional status for a run stopped by SIGINT.
const exitInterrupted = 130

// appFactory builds the application services. Tests swap it to inject
// in-memory backends.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// session owns what PersistentPreRunE builds so it can be torn down even
// when a subcommand fails.
type session struct {
	app     *app.App
	restore func()
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
		_ = s.app.Logger.Sync()
		s.app = nil
	}
	if s.restore != nil {
		s.restore()
		s.restore = nil
	}
}

// newRootCmd creates the root command and its subcommands around a private
// Viper instance.
func newRootCmd(newApp appFactory) (*cobra.Command, *session) {
	v := viper.New()
	sess := &session{}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "docprobe",
		Short: "Probe, download, and upload numbered dataset files.",
		Long: `docprobe discovers files on a public document server by probing
predictable EFTA<number> names, downloads the files a dataset listing names,
and uploads finished downloads to a GCS bucket. Every pass runs through the
same bounded worker pool and resumable checkpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config is loaded here so subcommand flags bound to Viper are visible.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			used, err := pkgconfig.InitConfig(v, cfgFile)
			if err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			sess.restore = logging.Install(logger)
			if used != "" {
				logger.Debug("loaded config file", zap.String("path", used))
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			sess.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			sess.close()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, /etc/docprobe/config.yaml or $HOME/.docprobe/config.yaml)")
	cmd.PersistentFlags().String("checkpoint-dir", "", "directory for file checkpoints")
	cmd.PersistentFlags().String("status-addr", "", "serve live progress and metrics on this address")
	cmd.PersistentFlags().Bool("quiet", false, "suppress the console progress line")
	bindFlags(v, cmd, map[string]string{
		"checkpoint.dir": "checkpoint-dir",
		"status.addr":    "status-addr",
		"progress.quiet": "quiet",
	})

	cmd.AddCommand(
		newScanCmd(v),
		newDownloadCmd(v),
		newUploadCmd(v),
		newInventoryCmd(),
	)
	return cmd, sess
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, sess := newRootCmd(defaultAppFactory)
	err := root.ExecuteContext(ctx)
	sess.close()
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted; progress saved.")
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
