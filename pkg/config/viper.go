// Package config wires Viper defaults, search paths, and environment binding
// for the docprobe commands.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// DOCPROBE_SCAN_CONCURRENCY=20.
const EnvPrefix = "DOCPROBE"

// DefaultUserAgent is sent by both fetchers unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Configure installs defaults, search paths, and environment binding on v.
func Configure(v *viper.Viper) {
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/docprobe/")
	v.AddConfigPath("$HOME/.docprobe")

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// SetDefaults registers every known key so environment overrides and
// Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("datasets.9", "https://www.justice.gov/epstein/files/DataSet%209")
	v.SetDefault("datasets.10", "https://www.justice.gov/epstein/files/DataSet%2010")

	v.SetDefault("scan.dataset", 9)
	v.SetDefault("scan.start", 0)
	v.SetDefault("scan.end", 2_000_000)
	v.SetDefault("scan.center", "")
	v.SetDefault("scan.concurrency", 10)
	v.SetDefault("scan.variants", []string{".mp4", ".mov"})
	v.SetDefault("scan.resume", false)
	v.SetDefault("scan.save_interval", 3*time.Second)
	v.SetDefault("scan.inventory_dir", ".")
	v.SetDefault("scan.cookie", "")
	v.SetDefault("scan.dry_run", false)

	v.SetDefault("download.dataset_file", "")
	v.SetDefault("download.output_dir", "./downloads")
	v.SetDefault("download.concurrency", 2)
	v.SetDefault("download.max_size_mb", 5000)
	v.SetDefault("download.max", 0)
	v.SetDefault("download.start_from", 0)
	v.SetDefault("download.retry_failed", false)
	v.SetDefault("download.clear_progress", false)
	v.SetDefault("download.dry_run", false)
	v.SetDefault("download.save_interval", 30*time.Second)
	v.SetDefault("download.cookie", "")

	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.prefix", "videos")
	v.SetDefault("upload.source_dir", "./downloads")
	v.SetDefault("upload.extensions", []string{".mp4", ".mov"})
	v.SetDefault("upload.concurrency", 1)
	v.SetDefault("upload.dry_run", false)
	v.SetDefault("upload.save_interval", 3*time.Second)

	v.SetDefault("pool.max_consecutive_failures", 10)
	v.SetDefault("pool.sequential_delay", 500*time.Millisecond)
	v.SetDefault("pool.startup_stagger", 200*time.Millisecond)

	v.SetDefault("http.probe_timeout", 15*time.Second)
	v.SetDefault("http.header_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 2*time.Minute)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.rate_per_host", 0)
	v.SetDefault("http.burst", 1)

	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.dir", ".")
	v.SetDefault("checkpoint.postgres_dsn", "")
	v.SetDefault("checkpoint.table", "checkpoints")
	v.SetDefault("checkpoint.bucket", "")
	v.SetDefault("checkpoint.prefix", "checkpoints")

	v.SetDefault("notify.backend", "none")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "docprobe-found")
	v.SetDefault("notify.brokers", []string{})

	v.SetDefault("status.addr", "")

	v.SetDefault("progress.console_every", 1)
	v.SetDefault("progress.no_color", false)
	v.SetDefault("progress.quiet", false)
}

// InitConfig configures v and reads the config file. An explicit cfgFile must
// exist; otherwise a missing file in the search paths is not an error. It
// returns the file used, if any.
func InitConfig(v *viper.Viper, cfgFile string) (string, error) {
	Configure(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
