package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds the site coordinates and tunables of a run.
type Config struct {
	FeedURL            string
	SitemapURL         string
	PostSitemapPattern string
	PageParam          string
	ItemsPerPage       int
	// MaxFeedPages overrides the computed page budget when positive.
	MaxFeedPages      int
	BatchSize         int
	DescriptionLength int
	Categories        []string
	// TopCategories is how many category counts the final report carries.
	TopCategories int
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Store   ArticleStore
	Fetcher PageFetcher
	// BackfillFetcher fetches article pages. Fetcher is used when nil.
	BackfillFetcher PageFetcher
	Extractor       ContentExtractor
	Sitemaps        SitemapParser
	Pacer           Pacer
	Clock           Clock
	IDs             IDGenerator
	Notifier        Notifier
	Recorder        Recorder
}

// Orchestrator drives one sync run through its states.
type Orchestrator struct {
	cfg        Config
	store      ArticleStore
	clock      Clock
	ids        IDGenerator
	notifier   Notifier
	recorder   Recorder
	planner    Planner
	paginator  *FeedPaginator
	enumerator *SitemapEnumerator
	checker    *ExistenceChecker
	backfiller *BackfillWorker
	logger     *zap.Logger
}

// NewOrchestrator validates the dependencies and builds the run components.
func NewOrchestrator(cfg Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("reconcile: store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("reconcile: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("reconcile: extractor is required")
	case deps.Sitemaps == nil:
		return nil, errors.New("reconcile: sitemap parser is required")
	case strings.TrimSpace(cfg.FeedURL) == "":
		return nil, errors.New("reconcile: feed url is required")
	case strings.TrimSpace(cfg.SitemapURL) == "":
		return nil, errors.New("reconcile: sitemap url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Pacer == nil {
		deps.Pacer = noPacer{}
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.IDs == nil {
		deps.IDs = clockIDs{clock: deps.Clock}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.BackfillFetcher == nil {
		deps.BackfillFetcher = deps.Fetcher
	}
	if cfg.Categories == nil {
		cfg.Categories = DefaultCategories
	}
	filter := NewCategoryFilter(cfg.Categories)

	return &Orchestrator{
		cfg:      cfg,
		store:    deps.Store,
		clock:    deps.Clock,
		ids:      deps.IDs,
		notifier: deps.Notifier,
		recorder: deps.Recorder,
		planner:  Planner{ItemsPerPage: cfg.ItemsPerPage, PageOverride: cfg.MaxFeedPages},
		paginator: NewFeedPaginator(cfg.FeedURL, cfg.PageParam,
			deps.Fetcher, deps.Extractor, deps.Pacer, filter, logger),
		enumerator: NewSitemapEnumerator(cfg.SitemapURL, cfg.PostSitemapPattern,
			deps.Fetcher, deps.Sitemaps, deps.Pacer, logger),
		checker: NewExistenceChecker(deps.Store, cfg.BatchSize),
		backfiller: NewBackfillWorker(deps.BackfillFetcher, deps.Extractor,
			deps.Pacer, filter, cfg.DescriptionLength, logger),
		logger: logger.Named("sync"),
	}, nil
}

// Run executes one sync. The returned report is populated even when the run fails;
// the error names the state that aborted.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	report := Report{
		RunID:     o.ids.NewID(),
		StartedAt: o.clock.Now(),
	}
	logger := o.logger.With(zap.String("run_id", report.RunID))
	logger.Info("sync run starting",
		zap.String("feed_url", o.cfg.FeedURL),
		zap.String("sitemap_url", o.cfg.SitemapURL),
	)

	err := o.run(ctx, &report, logger)
	report.FinishedAt = o.clock.Now()
	if err != nil {
		report.Error = err.Error()
	}
	o.recorder.ObserveReport(report)

	fields := []zap.Field{
		zap.String("state", string(report.LastState())),
		zap.Int("sitemap_count", report.SitemapCount),
		zap.Int("store_count_before", report.StoreCountBefore),
		zap.Bool("feed_crawled", report.Plan.NeedCrawl),
		zap.Int("feed_pages", report.Feed.Pages),
		zap.Int("feed_stored", report.FeedOutcomes.Stored),
		zap.Int("missing_urls", report.MissingURLs),
		zap.Int("backfill_stored", report.Backfill.Stored),
		zap.Int("backfill_skipped", report.Backfill.Skipped),
		zap.Int("store_count_after", report.StoreCountAfter),
		zap.Duration("duration", report.Duration()),
	}
	if err != nil {
		logger.Error("sync run failed", append(fields, zap.Error(err))...)
		return report, err
	}
	logger.Info("sync run complete", fields...)
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, r *Report, logger *zap.Logger) error {
	if err := o.step(ctx, r, StateInit, o.store.EnsureSchema); err != nil {
		return err
	}

	err := o.step(ctx, r, StateCountCompare, func(ctx context.Context) error {
		sitemapCount, err := o.enumerator.Count(ctx)
		if err != nil {
			return fmt.Errorf("count sitemap: %w", err)
		}
		storeCount, err := o.store.CountArticles(ctx)
		if err != nil {
			return fmt.Errorf("count store: %w", err)
		}
		r.SitemapCount = sitemapCount
		r.StoreCountBefore = storeCount
		r.Plan = o.planner.Plan(sitemapCount, storeCount)
		logger.Info("counts compared",
			zap.Int("sitemap", sitemapCount),
			zap.Int("store", storeCount),
			zap.Bool("need_crawl", r.Plan.NeedCrawl),
			zap.Int("page_budget", r.Plan.PageBudget),
		)
		return nil
	})
	if err != nil {
		return err
	}

	if r.Plan.NeedCrawl {
		err = o.step(ctx, r, StateFeedCrawl, func(ctx context.Context) error {
			stats, err := o.paginator.Crawl(ctx, r.Plan.PageBudget, func(c Candidate) error {
				out, err := o.persist(ctx, r.RunID, SourceFeed, c, logger)
				r.FeedOutcomes.Add(out)
				return err
			})
			r.Feed = stats
			return err
		})
	} else {
		err = o.step(ctx, r, StateSkipFeed, func(context.Context) error {
			logger.Info("store is current with the sitemap, skipping feed")
			return nil
		})
	}
	if err != nil {
		return err
	}

	var urls []string
	err = o.step(ctx, r, StateSitemapEnumerate, func(ctx context.Context) error {
		var err error
		urls, err = o.enumerator.Enumerate(ctx)
		r.SitemapURLs = len(urls)
		return err
	})
	if err != nil {
		return err
	}

	var missing []string
	err = o.step(ctx, r, StateExistenceCheck, func(ctx context.Context) error {
		var err error
		missing, err = o.checker.FindMissing(ctx, urls)
		r.MissingURLs = len(missing)
		return err
	})
	if err != nil {
		return err
	}

	err = o.step(ctx, r, StateBackfill, func(ctx context.Context) error {
		return o.backfill(ctx, r, missing, logger)
	})
	if err != nil {
		return err
	}

	return o.step(ctx, r, StateDone, func(ctx context.Context) error {
		o.summarize(ctx, r, logger)
		return nil
	})
}

func (o *Orchestrator) step(ctx context.Context, r *Report, state State, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		r.FailedState = state
		return fmt.Errorf("%s: %w", state, err)
	}
	r.States = append(r.States, state)
	start := time.Now()
	err := fn(ctx)
	o.recorder.ObserveState(state, time.Since(start), err)
	if err != nil {
		r.FailedState = state
		return fmt.Errorf("%s: %w", state, err)
	}
	return nil
}

func (o *Orchestrator) backfill(ctx context.Context, r *Report, missing []string, logger *zap.Logger) error {
	for i, pageURL := range missing {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := o.backfiller.Backfill(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reason := ReasonExtractFailed
			if FetchErrorKindOf(err) != "" {
				reason = ReasonFetchFailed
			}
			out := skipped(SourceBackfill, pageURL, reason, err)
			r.Backfill.Add(out)
			o.recorder.ObserveOutcome(out)
			logger.Warn("backfill skipped",
				zap.String("url", pageURL), zap.String("reason", string(reason)), zap.Error(err))
			continue
		}
		out, err := o.persist(ctx, r.RunID, SourceBackfill, c, logger)
		r.Backfill.Add(out)
		if err != nil {
			return err
		}
		if (i+1)%50 == 0 {
			logger.Info("backfill progress", zap.Int("done", i+1), zap.Int("total", len(missing)))
		}
	}
	return nil
}

// persist stores one candidate. Failures confined to the article produce a skipped
// outcome and a nil error; an unavailable store or a cancelled context is returned.
func (o *Orchestrator) persist(ctx context.Context, runID string, src Source, c Candidate, logger *zap.Logger) (Outcome, error) {
	link := strings.TrimSpace(c.Link)
	if link == "" {
		out := skipped(src, "", ReasonEmptyLink, nil)
		o.recorder.ObserveOutcome(out)
		logger.Debug("candidate without link dropped", zap.String("guid", c.GUID), zap.String("title", c.Title))
		return out, nil
	}

	article := NewArticle(c, o.clock.Now())
	if article.CreatorName != "" {
		id, err := o.store.GetOrCreateCreator(ctx, article.CreatorName)
		if err != nil {
			return o.storeFailed(ctx, src, link, err, logger)
		}
		article.CreatorID = id
	}

	id, created, err := o.store.InsertArticleIfAbsent(ctx, article)
	if err != nil {
		return o.storeFailed(ctx, src, link, err, logger)
	}
	if !created {
		out := existing(src, link, id)
		o.recorder.ObserveOutcome(out)
		return out, nil
	}

	out := stored(src, link, id)
	o.recorder.ObserveOutcome(out)
	logger.Debug("article stored", zap.String("source", string(src)), zap.Int64("id", id), zap.String("link", link))
	if o.notifier != nil {
		event := ArticleEvent{
			RunID:       runID,
			ArticleID:   id,
			GUID:        article.GUID,
			Link:        article.Link,
			Title:       article.Title,
			Source:      src,
			PublishedAt: article.PublishedAt,
			Categories:  article.Categories,
		}
		if err := o.notifier.ArticleStored(ctx, event); err != nil {
			logger.Warn("article notification failed", zap.Int64("id", id), zap.Error(err))
		}
	}
	return out, nil
}

func (o *Orchestrator) storeFailed(ctx context.Context, src Source, link string, err error, logger *zap.Logger) (Outcome, error) {
	out := skipped(src, link, ReasonStoreFailed, err)
	o.recorder.ObserveOutcome(out)
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return out, fmt.Errorf("persist %s: %w", link, err)
	}
	logger.Warn("article not stored", zap.String("link", link), zap.Error(err))
	return out, nil
}

func (o *Orchestrator) summarize(ctx context.Context, r *Report, logger *zap.Logger) {
	count, err := o.store.CountArticles(ctx)
	if err != nil {
		logger.Warn("final article count failed", zap.Error(err))
	} else {
		r.StoreCountAfter = count
	}

	stats, ok := o.store.(StatsReader)
	if !ok || o.cfg.TopCategories <= 0 {
		return
	}
	top, err := stats.CategoryStats(ctx, o.cfg.TopCategories)
	if err != nil {
		logger.Warn("category stats failed", zap.Error(err))
		return
	}
	r.TopCategories = top
	for _, c := range top {
		logger.Info("category", zap.String("name", c.Name), zap.Int("articles", c.Count))
	}
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context) error { return ctx.Err() }

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type clockIDs struct{ clock Clock }

func (c clockIDs) NewID() string { return fmt.Sprintf("run-%d", c.clock.Now().UnixNano()) }

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(Outcome) {}
func (nopRecorder) ObserveState(State, time.Duration, error) {}
func (nopRecorder) ObserveReport(Report) {}
