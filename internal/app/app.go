// Package app holds the long-lived services shared by the commands: logger,
// configuration, checkpoint store, notification publisher, metrics registry,
// and the optional status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/docprobe/internal/api"
	"github.com/JakeFAU/docprobe/internal/checkpoint"
	"github.com/JakeFAU/docprobe/internal/config"
	"github.com/JakeFAU/docprobe/internal/policy/ratelimit"
	"github.com/JakeFAU/docprobe/internal/progress"
	"github.com/JakeFAU/docprobe/internal/progress/sinks"
	kafkapublisher "github.com/JakeFAU/docprobe/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/docprobe/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/docprobe/internal/publisher/pubsub"
	"github.com/JakeFAU/docprobe/internal/storage/gcs"
	"github.com/JakeFAU/docprobe/internal/storage/local"
	"github.com/JakeFAU/docprobe/internal/storage/memory"
	"github.com/JakeFAU/docprobe/internal/storage/postgres"
)

// Publisher is a notification publisher the App owns.
type Publisher interface {
	sinks.Publisher
	io.Closer
}

// Option overrides a dependency, mainly for tests.
type Option func(*App)

// WithCheckpointStore replaces the configured checkpoint backend.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(a *App) { a.Store = store }
}

// WithPublisher replaces the configured notification backend.
func WithPublisher(pub Publisher) Option {
	return func(a *App) { a.Publisher = pub }
}

// WithStorageClient supplies the GCS client instead of dialing one.
func WithStorageClient(client *storage.Client) Option {
	return func(a *App) { a.storageClient = client }
}

// App is the dependency container built once per command invocation.
type App struct {
	Logger    *zap.Logger
	Config    config.Config
	Registry  *prometheus.Registry
	Store     checkpoint.Store
	Publisher Publisher
	Status    *sinks.StatusSink
	Limiter   *ratelimit.Limiter

	metrics       *sinks.PrometheusSink
	mu            sync.Mutex
	storageClient *storage.Client
	ownsStorage   bool
	closers       []func()
}

// New builds the services selected by cfg. Backends are dialed eagerly so a
// misconfiguration fails before any work is dispatched.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Logger:   logger,
		Config:   cfg,
		Registry: reg,
		Status:   sinks.NewStatusSink(),
		Limiter:  ratelimit.New(ratelimit.Config{RatePerHost: cfg.HTTP.RatePerHost, Burst: cfg.HTTP.Burst}),
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	a.metrics = metrics
	if a.Store == nil {
		store, err := a.newCheckpointStore(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store
	}
	if a.Publisher == nil {
		pub, err := a.newPublisher(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
	}
	if a.Publisher != nil {
		pub := a.Publisher
		a.closers = append(a.closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("publisher close failed", zap.Error(err))
			}
		})
	}
	return a, nil
}

func (a *App) newCheckpointStore(ctx context.Context) (checkpoint.Store, error) {
	cfg := a.Config.Checkpoint
	switch cfg.Backend {
	case config.BackendFile, "":
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("init file checkpoint store: %w", err)
		}
		a.Logger.Debug("using file checkpoint store", zap.String("dir", cfg.Dir))
		return store, nil
	case config.BackendMemory:
		a.Logger.Info("using in-memory checkpoint store; progress will not survive the process")
		return memory.NewStore(), nil
	case config.BackendPostgres:
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("init postgres checkpoint store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.Logger.Info("using postgres checkpoint store", zap.String("table", cfg.Table))
		return store, nil
	case config.BackendGCS:
		client, err := a.StorageClient(ctx)
		if err != nil {
			return nil, err
		}
		bucket, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs checkpoint store: %w", err)
		}
		a.Logger.Info("using gcs checkpoint store", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
		return gcs.NewCheckpointStore(bucket), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func (a *App) newPublisher(ctx context.Context) (Publisher, error) {
	cfg := a.Config.Notify
	switch cfg.Backend {
	case config.NotifyNone, "":
		return nil, nil
	case config.NotifyMemory:
		return memorypublisher.New(), nil
	case config.NotifyPubSub:
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{ProjectID: cfg.ProjectID, Topic: cfg.Topic})
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.Logger.Info("publishing found files to pubsub", zap.String("topic", cfg.Topic))
		return pub, nil
	case config.NotifyKafka:
		pub, err := kafkapublisher.New(kafkapublisher.Config{Brokers: cfg.Brokers, Topic: cfg.Topic})
		if err != nil {
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		a.Logger.Info("publishing found files to kafka", zap.String("topic", cfg.Topic), zap.Strings("brokers", cfg.Brokers))
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}

// StorageClient returns the shared GCS client, dialing it on first use with
// Application Default Credentials.
func (a *App) StorageClient(ctx context.Context) (*storage.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storageClient != nil {
		return a.storageClient, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a.storageClient = client
	a.ownsStorage = true
	return client, nil
}

// HubOptions selects the interactive sinks.
type HubOptions struct {
	// Console receives the human-readable progress line; nil disables it.
	Console io.Writer
}

// NewHub builds a progress hub fanning out to the log, metrics, status, and
// optional console and notification sinks.
func (a *App) NewHub(opts HubOptions) *progress.Hub {
	hubSinks := []progress.Sink{sinks.NewLogSink(a.Logger), a.metrics, a.Status}
	if opts.Console != nil && !a.Config.Progress.Quiet {
		hubSinks = append(hubSinks, sinks.NewConsoleSink(sinks.ConsoleConfig{
			Out:     opts.Console,
			Every:   a.Config.Progress.ConsoleEvery,
			NoColor: a.Config.Progress.NoColor,
		}))
	}
	if a.Publisher != nil {
		hubSinks = append(hubSinks, sinks.NewNotifySink(a.Publisher, a.Config.Notify.Topic))
	}
	return progress.NewHub(progress.Config{Logger: a.Logger}, hubSinks...)
}

// StartStatusServer serves the status API on status.addr until ctx ends. It
// returns a wait function; with no address configured it does nothing.
func (a *App) StartStatusServer(ctx context.Context) (func() error, error) {
	addr := a.Config.Status.Addr
	if addr == "" {
		return func() error { return nil }, nil
	}
	srv, err := api.NewServer(api.Config{Status: a.Status, Registry: a.Registry, Logger: a.Logger})
	if err != nil {
		return nil, fmt.Errorf("init status server: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, addr) }()
	return func() error {
		err := <-done
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}, nil
}

// Close releases every owned resource in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.mu.Lock()
	if a.ownsStorage && a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.Logger.Warn("storage client close failed", zap.Error(err))
		}
		a.storageClient = nil
	}
	a.mu.Unlock()
}
