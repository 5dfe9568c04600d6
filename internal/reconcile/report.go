package reconcile

import "time"

// State is a step of a sync run.
type State string

const (
	StateInit             State = "INIT"
	StateCountCompare     State = "COUNT_COMPARE"
	StateSkipFeed         State = "SKIP_FEED"
	StateFeedCrawl        State = "FEED_CRAWL"
	StateSitemapEnumerate State = "SITEMAP_ENUMERATE"
	StateExistenceCheck   State = "EXISTENCE_CHECK"
	StateBackfill         State = "BACKFILL"
	StateDone             State = "DONE"
)

// Report summarizes a sync run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// States lists every state entered, in order.
	States      []State `json:"states"`
	FailedState State   `json:"failed_state,omitempty"`
	Error       string  `json:"error,omitempty"`

	SitemapCount     int       `json:"sitemap_count"`
	StoreCountBefore int       `json:"store_count_before"`
	Plan             Plan      `json:"plan"`
	Feed             PageStats `json:"feed"`
	FeedOutcomes     Tally     `json:"feed_outcomes"`
	SitemapURLs      int       `json:"sitemap_urls"`
	MissingURLs      int       `json:"missing_urls"`
	Backfill         Tally     `json:"backfill"`
	StoreCountAfter  int       `json:"store_count_after"`

	TopCategories []CategoryCount `json:"top_categories,omitempty"`
}

// Failed reports whether the run aborted.
func (r Report) Failed() bool {
	return r.FailedState != ""
}

// LastState returns the last state the run entered.
func (r Report) LastState() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
