// Package app initializes the long-lived services of the tool and builds one
// Processor per run from them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/pubsub"
	gcsapi "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/cache"
	"github.com/JakeFAU/imagesize-intrinsic/internal/config"
	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/pipeline"
	"github.com/JakeFAU/imagesize-intrinsic/internal/probe"
	"github.com/JakeFAU/imagesize-intrinsic/internal/progress"
	"github.com/JakeFAU/imagesize-intrinsic/internal/progress/sinks"
	pubsubpub "github.com/JakeFAU/imagesize-intrinsic/internal/publisher/pubsub"
	"github.com/JakeFAU/imagesize-intrinsic/internal/ratelimit"
	"github.com/JakeFAU/imagesize-intrinsic/internal/report"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage/gcs"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage/local"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage/memory"
	"github.com/JakeFAU/imagesize-intrinsic/internal/storage/postgres"
)

// notifyEvent is attached to every run summary.
const notifyEvent = "imgsize.run.finalized"

// App holds the services shared by every run: document storage, the probe
// client, and the notification publisher.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	storage   storage.Provider
	prober    imgsize.Prober
	publisher imgsize.Publisher
	metrics   *sinks.PrometheusSink
	barOutput io.Writer
	closers   []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	storage    storage.Provider
	fetcher    probe.Fetcher
	publisher  imgsize.Publisher
	registerer prometheus.Registerer
	barOutput  io.Writer
}

// WithStorage replaces the configured storage backend.
func WithStorage(p storage.Provider) Option {
	return func(o *options) { o.storage = p }
}

// WithFetcher replaces the colly fetcher used by the probe client.
func WithFetcher(f probe.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p imgsize.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRegisterer registers progress collectors on reg instead of the default
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithProgressOutput draws the progress bar on w instead of stderr.
func WithProgressOutput(w io.Writer) Option {
	return func(o *options) { o.barOutput = w }
}

// New builds the shared services. Construction failures are wrapped with
// imgsize.ErrMissingDependency so hosts can degrade to pipeline.Passthrough.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger, barOutput: o.barOutput}
	if a.barOutput == nil {
		a.barOutput = os.Stderr
	}

	a.storage = o.storage
	if a.storage == nil {
		store, err := a.buildStorage(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build storage: %w: %w", imgsize.ErrMissingDependency, err)
		}
		a.storage = store
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = probe.NewCollyFetcher(probe.CollyConfig{
			Timeout:      cfg.ProbeTimeout(),
			MaxBodyBytes: cfg.MaxProbeBytes,
		})
	}
	prober, err := probe.New(fetcher, probe.Config{
		Timeout: cfg.ProbeTimeout(),
		Retry:   cfg.Retry,
		Headers: probe.BuildHeaders(cfg.Headers, cfg.Referer),
	}, ratelimit.New(ratelimit.Config{RPS: cfg.HostRPS}), logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build prober: %w", err)
	}
	a.prober = prober

	a.publisher = o.publisher
	if a.publisher == nil && cfg.Notify.Topic != "" {
		pub, err := a.buildPublisher(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build publisher: %w: %w", imgsize.ErrMissingDependency, err)
		}
		a.publisher = pub
	}

	reg := o.registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build progress metrics: %w", err)
	}
	a.metrics = promSink

	logger.Info("imgsize services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Bool("notify", a.publisher != nil),
	)
	return a, nil
}

func (a *App) buildStorage(ctx context.Context) (storage.Provider, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case config.BackendLocal, "":
		return local.New(local.Config{BaseDir: sc.Dir})
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendGCS:
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return gcs.New(client, gcs.Config{Bucket: sc.GCSBucket, Prefix: sc.Prefix})
	case config.BackendPostgres:
		store, err := postgres.New(ctx, postgres.Config{DSN: sc.PostgresDSN, Table: sc.PostgresTable})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context) (*pubsubpub.Publisher, error) {
	client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpub.New(client.Topic(a.cfg.Notify.Topic))
	a.closers = append(a.closers, pub.Close, client.Close)
	return pub, nil
}

// Storage exposes the document storage backend.
func (a *App) Storage() storage.Provider {
	return a.storage
}

// NewProcessor builds the Processor for one run. A disabled configuration
// yields pipeline.Passthrough, as does any collaborator that cannot be built.
func (a *App) NewProcessor() imgsize.Processor {
	if !a.cfg.Enabled {
		a.logger.Info("imgsize disabled, pages pass through unchanged")
		return pipeline.Passthrough{}
	}
	p, err := a.newPipeline()
	if err != nil {
		a.logger.Warn("falling back to pass-through", zap.Error(err))
		return pipeline.Passthrough{}
	}
	return p
}

func (a *App) newPipeline() (*pipeline.Pipeline, error) {
	c, err := cache.New(a.storage, a.cfg.CacheFile, a.logger)
	if err != nil {
		return nil, err
	}
	rep, err := report.New(a.storage, a.cfg.ReportFile, a.logger)
	if err != nil {
		return nil, err
	}
	progressSinks := []progress.Sink{a.metrics, sinks.NewLogSink(a.logger.Named("progress"))}
	if a.cfg.ShowProgress() {
		progressSinks = append(progressSinks, sinks.NewBarSink(a.barOutput))
	}
	hub := progress.NewHub(progress.Config{Logger: a.logger}, progressSinks...)

	p, err := pipeline.New(pipeline.Config{
		Concurrency:          a.cfg.Concurrency,
		StripQuery:           a.cfg.StripQuery,
		Whitelist:            a.cfg.Whitelist,
		CachePresentWithSize: a.cfg.CachePresentWithSize,
		CheckpointPages:      a.cfg.CheckpointPages,
		NotifyTopic:          notifyEvent,
	}, pipeline.Deps{
		Prober:    a.prober,
		Cache:     c,
		Reporter:  rep,
		Progress:  hub,
		Publisher: a.publisher,
		Logger:    a.logger,
	})
	if err != nil {
		_ = hub.Close(context.Background())
		return nil, err
	}
	return p, nil
}

// Close releases clients in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
