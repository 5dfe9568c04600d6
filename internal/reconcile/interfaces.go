package reconcile

import (
	"context"
	"time"
)

// PageFetcher retrieves the body at a URL. Failures are reported as *FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// ContentExtractor turns fetched bytes into candidates.
type ContentExtractor interface {
	// ExtractFeed returns the entries of a feed page in document order.
	ExtractFeed(body []byte) ([]Candidate, error)
	// ExtractPage returns the article found in an HTML page.
	ExtractPage(pageURL string, body []byte) (Candidate, error)
}

// SitemapParser reads sitemap documents.
type SitemapParser interface {
	// ParseIndex returns the <sitemap><loc> entries of a sitemap index.
	ParseIndex(body []byte) ([]string, error)
	// ParseURLSet returns the <url><loc> entries of a sitemap.
	ParseURLSet(body []byte) ([]string, error)
}

// LinkChecker answers which links are already stored.
type LinkChecker interface {
	ExistsByLink(ctx context.Context, links []string) (map[string]struct{}, error)
}

// ArticleStore is the persistence contract the sync flow relies on.
type ArticleStore interface {
	LinkChecker
	EnsureSchema(ctx context.Context) error
	GetOrCreateCreator(ctx context.Context, name string) (int64, error)
	GetOrCreateCategory(ctx context.Context, name string) (int64, error)
	// InsertArticleIfAbsent stores the article unless its GUID is already present, in
	// which case the existing id is returned with created=false. Category associations
	// are added in both cases.
	InsertArticleIfAbsent(ctx context.Context, article Article) (id int64, created bool, err error)
	CountArticles(ctx context.Context) (int, error)
}

// StatsReader exposes the reporting queries of a store.
type StatsReader interface {
	CategoryStats(ctx context.Context, limit int) ([]CategoryCount, error)
	RecentArticles(ctx context.Context, limit int) ([]ArticleSummary, error)
	Totals(ctx context.Context) (Totals, error)
}

// Pacer spaces out outbound requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() string
}

// Notifier is told about each article that a run stores for the first time.
type Notifier interface {
	ArticleStored(ctx context.Context, event ArticleEvent) error
}

// ArticleEvent describes a newly stored article.
type ArticleEvent struct {
	RunID       string    `json:"run_id"`
	ArticleID   int64     `json:"article_id"`
	GUID        string    `json:"guid"`
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	Source      Source    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Categories  []string  `json:"categories,omitempty"`
}

// Recorder receives run telemetry.
type Recorder interface {
	ObserveOutcome(outcome Outcome)
	ObserveState(state State, elapsed time.Duration, err error)
	ObserveReport(report Report)
}
