// Package app initializes and holds long-lived application services, acting as a
// dependency injection container for the sync, stats and serve commands.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/archive"
	"github.com/JakeFAU/feedsync/internal/clock/system"
	"github.com/JakeFAU/feedsync/internal/config"
	"github.com/JakeFAU/feedsync/internal/extract"
	collyfetcher "github.com/JakeFAU/feedsync/internal/fetcher/colly"
	"github.com/JakeFAU/feedsync/internal/id/uuid"
	"github.com/JakeFAU/feedsync/internal/metrics"
	"github.com/JakeFAU/feedsync/internal/policy/ratelimit"
	"github.com/JakeFAU/feedsync/internal/publisher"
	pubmemory "github.com/JakeFAU/feedsync/internal/publisher/memory"
	"github.com/JakeFAU/feedsync/internal/publisher/pubsub"
	"github.com/JakeFAU/feedsync/internal/reconcile"
	"github.com/JakeFAU/feedsync/internal/retry"
	"github.com/JakeFAU/feedsync/internal/storage"
	"github.com/JakeFAU/feedsync/internal/storage/gcs"
	"github.com/JakeFAU/feedsync/internal/storage/local"
	"github.com/JakeFAU/feedsync/internal/storage/memory"
	"github.com/JakeFAU/feedsync/internal/storage/postgres"
)

// Store is the article store the app runs against.
type Store interface {
	reconcile.ArticleStore
	reconcile.StatsReader
}

// App holds the shared, long-lived services. It is built once per process; every
// sync run gets a fresh orchestrator over these services.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     Store
	fetcher   reconcile.PageFetcher
	backfill  reconcile.PageFetcher
	extractor *extract.Extractor
	pacer     *ratelimit.Limiter
	notifier  reconcile.Notifier
	recorder  reconcile.Recorder
	closers   []func() error
}

// Option overrides a service New would otherwise build from config.
type Option func(*App)

// WithStore injects the article store.
func WithStore(s Store) Option {
	return func(a *App) { a.store = s }
}

// WithFetcher injects the page fetcher used for every request.
func WithFetcher(f reconcile.PageFetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithNotifier injects the new-article notifier.
func WithNotifier(n reconcile.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// New builds every service described by cfg. It fails fast when a configured
// dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("cleanup after failed init", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	a.logger.Info("initializing services", zap.Bool("dry_run", a.cfg.Sync.DryRun))

	if a.store == nil {
		if err := a.initStore(ctx); err != nil {
			return err
		}
	}
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.HTTP.UserAgent,
			Timeout:       a.cfg.HTTP.Timeout,
			RespectRobots: a.cfg.HTTP.RespectRobots,
			MaxBodySize:   a.cfg.HTTP.MaxBodyBytes,
		})
	}
	a.backfill = a.fetcher
	if a.cfg.Archive.Enabled {
		if err := a.initArchive(ctx); err != nil {
			return err
		}
	}
	if a.notifier == nil && a.cfg.Notify.Enabled {
		if err := a.initNotifier(ctx); err != nil {
			return err
		}
	}

	a.extractor = extract.New(extract.Selectors{}, a.logger)
	a.pacer = ratelimit.New(ratelimit.Config{Interval: a.cfg.Sync.Sleep})
	a.recorder = metrics.NewRecorder()
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Sync.DryRun {
		a.logger.Warn("dry run: articles are kept in memory and discarded on exit")
		a.store = memory.NewArticleStore()
		return nil
	}
	pg, err := postgres.NewArticleStore(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		RetryCount:      a.cfg.DB.RetryCount,
		RetryDelay:      a.cfg.DB.RetryDelay,
	}, a.logger, retry.WithObserver(func(op string, _ int, _ error) {
		metrics.ObserveStoreRetry(op)
	}))
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	var blobs storage.BlobStore
	switch a.cfg.Archive.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return fmt.Errorf("initialize local archive: %w", err)
		}
		blobs = store
	case config.BackendGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("initialize gcs archive: %w", err)
		}
		blobs = store
	case config.BackendMemory:
		blobs = memory.NewBlobStore()
	default:
		return fmt.Errorf("unknown archive backend: %s", a.cfg.Archive.Backend)
	}

	fetcher, err := archive.New(a.fetcher, blobs, a.cfg.Archive.Prefix, a.logger)
	if err != nil {
		return fmt.Errorf("initialize archive: %w", err)
	}
	a.backfill = fetcher
	a.logger.Info("archiving backfilled pages", zap.String("backend", a.cfg.Archive.Backend))
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	var pub publisher.Publisher
	switch a.cfg.Notify.Backend {
	case config.BackendPubSub:
		client, err := gpubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		p := pubsub.New(client)
		a.closers = append(a.closers, func() error {
			p.Stop()
			return client.Close()
		})
		pub = p
	case config.BackendMemory:
		pub = pubmemory.New()
	default:
		return fmt.Errorf("unknown notify backend: %s", a.cfg.Notify.Backend)
	}

	n, err := publisher.NewNotifier(pub, a.cfg.Notify.Topic, a.logger)
	if err != nil {
		return fmt.Errorf("initialize notifier: %w", err)
	}
	a.notifier = n
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store returns the article store.
func (a *App) Store() Store {
	return a.store
}

// Ping checks the store when it supports it.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("ping store: %w", err)
		}
	}
	return nil
}

// NewOrchestrator builds an orchestrator for one run.
func (a *App) NewOrchestrator() (*reconcile.Orchestrator, error) {
	o, err := reconcile.NewOrchestrator(reconcile.Config{
		FeedURL:            a.cfg.Site.FeedURL,
		SitemapURL:         a.cfg.Site.SitemapURL,
		PostSitemapPattern: a.cfg.Site.PostSitemapPattern,
		PageParam:          a.cfg.Site.PageParam,
		ItemsPerPage:       a.cfg.Sync.ItemsPerPage,
		MaxFeedPages:       a.cfg.Sync.MaxFeedPages,
		BatchSize:          a.cfg.Sync.BatchSize,
		DescriptionLength:  a.cfg.Sync.DescriptionLength,
		Categories:         a.cfg.Sync.Categories,
		TopCategories:      a.cfg.Sync.TopCategories,
	}, reconcile.Dependencies{
		Store:           a.store,
		Fetcher:         a.fetcher,
		BackfillFetcher: a.backfill,
		Extractor:       a.extractor,
		Sitemaps:        a.extractor,
		Pacer:           a.pacer,
		Clock:           system.New(),
		IDs:             uuid.New(),
		Notifier:        a.notifier,
		Recorder:        a.recorder,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return o, nil
}

// Run performs one sync run.
func (a *App) Run(ctx context.Context) (reconcile.Report, error) {
	o, err := a.NewOrchestrator()
	if err != nil {
		return reconcile.Report{}, err
	}
	report, err := o.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("sync run %s: %w", report.RunID, err)
	}
	return report, nil
}

// PushMetrics sends the collected metrics to the configured Pushgateway, if any.
func (a *App) PushMetrics(ctx context.Context) error {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return nil
	}
	if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		return err //nolint:wrapcheck // already wrapped by metrics.Push
	}
	a.logger.Info("metrics pushed", zap.String("gateway", a.cfg.Metrics.PushgatewayURL))
	return nil
}

// Close releases every service in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close services: %w", errors.Join(errs...))
	}
	return nil
}
