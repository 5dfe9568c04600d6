package reconcile

// Source names the path an article arrived through.
type Source string

const (
	SourceFeed     Source = "feed"
	SourceBackfill Source = "backfill"
)

// OutcomeKind is the result of handling one unit of work.
type OutcomeKind string

const (
	OutcomeStored   OutcomeKind = "stored"
	OutcomeExisting OutcomeKind = "existing"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// SkipReason explains a skipped unit.
type SkipReason string

const (
	ReasonNone          SkipReason = ""
	ReasonFetchFailed   SkipReason = "fetch_failed"
	ReasonExtractFailed SkipReason = "extract_failed"
	ReasonStoreFailed   SkipReason = "store_failed"
	ReasonEmptyLink     SkipReason = "empty_link"
)

// Outcome records what happened to a single candidate or URL.
type Outcome struct {
	Source    Source
	URL       string
	Kind      OutcomeKind
	Reason    SkipReason
	ArticleID int64
	Err       error
}

func stored(src Source, url string, id int64) Outcome {
	return Outcome{Source: src, URL: url, Kind: OutcomeStored, ArticleID: id}
}

func existing(src Source, url string, id int64) Outcome {
	return Outcome{Source: src, URL: url, Kind: OutcomeExisting, ArticleID: id}
}

func skipped(src Source, url string, reason SkipReason, err error) Outcome {
	return Outcome{Source: src, URL: url, Kind: OutcomeSkipped, Reason: reason, Err: err}
}

// Tally aggregates outcomes.
type Tally struct {
	Stored   int                `json:"stored"`
	Existing int                `json:"existing"`
	Skipped  int                `json:"skipped"`
	Reasons  map[SkipReason]int `json:"reasons,omitempty"`
}

// Add counts an outcome.
func (t *Tally) Add(o Outcome) {
	switch o.Kind {
	case OutcomeStored:
		t.Stored++
	case OutcomeExisting:
		t.Existing++
	case OutcomeSkipped:
		t.Skipped++
		if t.Reasons == nil {
			t.Reasons = make(map[SkipReason]int)
		}
		t.Reasons[o.Reason]++
	}
}

// Total is the number of outcomes counted.
func (t Tally) Total() int {
	return t.Stored + t.Existing + t.Skipped
}
