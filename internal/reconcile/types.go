package reconcile

import (
	"strings"
	"time"
)

// Candidate is an article harvested from the feed or a backfilled page, before it is
// persisted. Every field except Link may be empty.
type Candidate struct {
	GUID         string
	Link         string
	Title        string
	Creator      string
	Description  string
	Content      string
	CommentsLink string
	// PublishedAt is nil when the source carried no usable timestamp.
	PublishedAt *time.Time
	Categories  []string
}

// Identity returns the key used to deduplicate the candidate: the GUID when present,
// otherwise the link.
func (c Candidate) Identity() string {
	if guid := strings.TrimSpace(c.GUID); guid != "" {
		return guid
	}
	return strings.TrimSpace(c.Link)
}

// Article is the persisted form of a Candidate.
type Article struct {
	GUID         string
	Link         string
	Title        string
	CreatorID    int64
	CreatorName  string
	PublishedAt  time.Time
	Description  string
	Content      string
	CommentsLink string
	Categories   []string
}

// NewArticle converts a candidate into an article, filling the GUID from the link and
// the publication time from now when the candidate lacks them.
func NewArticle(c Candidate, now time.Time) Article {
	published := now
	if c.PublishedAt != nil && !c.PublishedAt.IsZero() {
		published = *c.PublishedAt
	}
	return Article{
		GUID:         c.Identity(),
		Link:         strings.TrimSpace(c.Link),
		Title:        c.Title,
		CreatorName:  strings.TrimSpace(c.Creator),
		PublishedAt:  published.UTC(),
		Description:  c.Description,
		Content:      c.Content,
		CommentsLink: c.CommentsLink,
		Categories:   append([]string(nil), c.Categories...),
	}
}

// Page is the raw result of fetching a URL.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
	Duration   time.Duration
}

// Plan is the outcome of comparing the sitemap with the store.
type Plan struct {
	NeedCrawl       bool
	PageBudget      int
	MissingEstimate int
}

// PageStats summarizes one feed crawl.
type PageStats struct {
	Pages      int
	Candidates int
	// ReachedEnd is set when the crawl stopped on an empty page.
	ReachedEnd bool
	// Truncated is set when a fetch or parse failure cut the crawl short.
	Truncated bool
}

// CategoryCount is the number of articles filed under a category.
type CategoryCount struct {
	Name  string
	Count int
}

// ArticleSummary is a short listing of a stored article.
type ArticleSummary struct {
	ID          int64
	Title       string
	Link        string
	Creator     string
	PublishedAt time.Time
	Categories  []string
}

// Totals counts the rows held by the store.
type Totals struct {
	Articles   int
	Creators   int
	Categories int
}
