// Package config loads and validates docprobe configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/docprobe/internal/probe"
	pkgconfig "github.com/JakeFAU/docprobe/pkg/config"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Logging    LoggingConfig     `mapstructure:"logging"`
	Datasets   map[string]string `mapstructure:"datasets"`
	Scan       ScanConfig        `mapstructure:"scan"`
	Download   DownloadConfig    `mapstructure:"download"`
	Upload     UploadConfig      `mapstructure:"upload"`
	Pool       PoolConfig        `mapstructure:"pool"`
	HTTP       HTTPConfig        `mapstructure:"http"`
	Checkpoint CheckpointConfig  `mapstructure:"checkpoint"`
	Notify     NotifyConfig      `mapstructure:"notify"`
	Status     StatusConfig      `mapstructure:"status"`
	Progress   ProgressConfig    `mapstructure:"progress"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScanConfig drives the brute-force probe pass.
type ScanConfig struct {
	Dataset int   `mapstructure:"dataset"`
	Start   int64 `mapstructure:"start"`
	End     int64 `mapstructure:"end"`
	// Center switches to outward mode; accepts "EFTA01622053" or "1622053".
	Center       string        `mapstructure:"center"`
	Concurrency  int           `mapstructure:"concurrency"`
	Variants     []string      `mapstructure:"variants"`
	Resume       bool          `mapstructure:"resume"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
	InventoryDir string        `mapstructure:"inventory_dir"`
	Cookie       string        `mapstructure:"cookie"`
	DryRun       bool          `mapstructure:"dry_run"`
}

// DownloadConfig drives the download pass.
type DownloadConfig struct {
	DatasetFile   string        `mapstructure:"dataset_file"`
	OutputDir     string        `mapstructure:"output_dir"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxSizeMB     int64         `mapstructure:"max_size_mb"`
	Max           int           `mapstructure:"max"`
	StartFrom     int           `mapstructure:"start_from"`
	RetryFailed   bool          `mapstructure:"retry_failed"`
	ClearProgress bool          `mapstructure:"clear_progress"`
	DryRun        bool          `mapstructure:"dry_run"`
	SaveInterval  time.Duration `mapstructure:"save_interval"`
	Cookie        string        `mapstructure:"cookie"`
}

// UploadConfig drives the upload pass.
type UploadConfig struct {
	Bucket       string        `mapstructure:"bucket"`
	Prefix       string        `mapstructure:"prefix"`
	SourceDir    string        `mapstructure:"source_dir"`
	Extensions   []string      `mapstructure:"extensions"`
	Concurrency  int           `mapstructure:"concurrency"`
	DryRun       bool          `mapstructure:"dry_run"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// PoolConfig tunes the worker pool and the circuit breaker.
type PoolConfig struct {
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	SequentialDelay        time.Duration `mapstructure:"sequential_delay"`
	StartupStagger         time.Duration `mapstructure:"startup_stagger"`
}

// HTTPConfig configures both fetchers.
type HTTPConfig struct {
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	HeaderTimeout time.Duration `mapstructure:"header_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RatePerHost   float64       `mapstructure:"rate_per_host"`
	Burst         int           `mapstructure:"burst"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
}

// NotifyConfig selects where found-file notifications go.
type NotifyConfig struct {
	Backend   string   `mapstructure:"backend"`
	ProjectID string   `mapstructure:"project_id"`
	Topic     string   `mapstructure:"topic"`
	Brokers   []string `mapstructure:"brokers"`
}

// StatusConfig controls the optional status server.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig tunes console output.
type ProgressConfig struct {
	ConsoleEvery int  `mapstructure:"console_every"`
	NoColor      bool `mapstructure:"no_color"`
	Quiet        bool `mapstructure:"quiet"`
}

// Checkpoint backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
)

// Notification backends.
const (
	NotifyNone   = "none"
	NotifyPubSub = "pubsub"
	NotifyKafka  = "kafka"
	NotifyMemory = "memory"
)

// Load builds a Config from defaults, the environment, and an optional file.
func Load(path string) (Config, error) {
	v := viper.New()
	pkgconfig.Configure(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces settings shared by every command.
func (c Config) Validate() error {
	if c.Pool.SequentialDelay < 0 || c.Pool.StartupStagger < 0 {
		return errors.New("pool delays must be >= 0")
	}
	if c.HTTP.ProbeTimeout <= 0 {
		return errors.New("http.probe_timeout must be > 0")
	}
	if c.HTTP.IdleTimeout < 0 {
		return errors.New("http.idle_timeout must be >= 0")
	}
	if c.HTTP.RatePerHost < 0 {
		return errors.New("http.rate_per_host must be >= 0")
	}
	switch c.Checkpoint.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Checkpoint.Dir) == "" {
			return errors.New("checkpoint.dir is required for the file backend")
		}
	case BackendPostgres:
		if c.Checkpoint.PostgresDSN == "" {
			return errors.New("checkpoint.postgres_dsn is required for the postgres backend")
		}
	case BackendGCS:
		if c.Checkpoint.Bucket == "" {
			return errors.New("checkpoint.bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	switch c.Notify.Backend {
	case NotifyNone, NotifyMemory, "":
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return errors.New("notify.project_id and notify.topic are required for pubsub")
		}
	case NotifyKafka:
		if len(c.Notify.Brokers) == 0 || c.Notify.Topic == "" {
			return errors.New("notify.brokers and notify.topic are required for kafka")
		}
	default:
		return fmt.Errorf("unknown notify backend %q", c.Notify.Backend)
	}
	return nil
}

// ValidateScan checks the settings used by the scan command.
func (c Config) ValidateScan() error {
	if _, err := c.DatasetURL(c.Scan.Dataset); err != nil {
		return err
	}
	if c.Scan.Concurrency <= 0 {
		return errors.New("scan.concurrency must be > 0")
	}
	if len(c.Scan.Variants) == 0 {
		return errors.New("scan.variants must not be empty")
	}
	if c.Scan.Start < 0 || c.Scan.End < 0 {
		return errors.New("scan.start and scan.end must be >= 0")
	}
	if c.Scan.Start > probe.MaxNumber || c.Scan.End > probe.MaxNumber {
		return fmt.Errorf("scan.start and scan.end must be <= %d", probe.MaxNumber)
	}
	center, ok, err := c.ScanCenter()
	if err != nil {
		return err
	}
	if ok && center > probe.MaxNumber {
		return fmt.Errorf("scan.center must be <= %d", probe.MaxNumber)
	}
	return nil
}

// ScanCenter parses scan.center; ok is false when no center is configured.
func (c Config) ScanCenter() (int64, bool, error) {
	raw := strings.TrimSpace(c.Scan.Center)
	if raw == "" {
		return 0, false, nil
	}
	n, err := probe.ParseNumber(raw)
	if err != nil {
		return 0, false, fmt.Errorf("scan.center: %w", err)
	}
	return n, true, nil
}

// ValidateDownload checks the settings used by the download command.
func (c Config) ValidateDownload() error {
	if strings.TrimSpace(c.Download.DatasetFile) == "" {
		return errors.New("download.dataset_file is required")
	}
	if strings.TrimSpace(c.Download.OutputDir) == "" {
		return errors.New("download.output_dir is required")
	}
	if c.Download.Concurrency <= 0 {
		return errors.New("download.concurrency must be > 0")
	}
	if c.Download.MaxSizeMB < 0 || c.Download.Max < 0 || c.Download.StartFrom < 0 {
		return errors.New("download.max_size_mb, download.max and download.start_from must be >= 0")
	}
	return nil
}

// ValidateUpload checks the settings used by the upload command.
func (c Config) ValidateUpload() error {
	if c.Upload.Bucket == "" {
		return errors.New("upload.bucket is required")
	}
	if strings.TrimSpace(c.Upload.SourceDir) == "" {
		return errors.New("upload.source_dir is required")
	}
	if c.Upload.Concurrency <= 0 {
		return errors.New("upload.concurrency must be > 0")
	}
	return nil
}

// DatasetURL returns the base URL registered for dataset n.
func (c Config) DatasetURL(n int) (string, error) {
	url, ok := c.Datasets[strconv.Itoa(n)]
	if !ok || url == "" {
		return "", fmt.Errorf("unknown dataset %d", n)
	}
	return url, nil
}

// ScanRunKey names the checkpoint of a scan over dataset n.
func ScanRunKey(dataset int) string {
	return fmt.Sprintf("bruteforce-%d-progress", dataset)
}

// DownloadRunKey names the checkpoint of a download over a dataset listing.
func DownloadRunKey(datasetFile string) string {
	base := datasetFile
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".json") + "-download-progress"
}

// UploadRunKey names the checkpoint of an upload into bucket.
func UploadRunKey(bucket string) string {
	return "upload-" + bucket + "-progress"
}
