package reconcile

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultDescriptionLength is the number of runes of content used as a description
// when the page carries none.
const DefaultDescriptionLength = 200

// BackfillWorker fetches and extracts a single article page.
type BackfillWorker struct {
	fetcher           PageFetcher
	extractor         ContentExtractor
	pacer             Pacer
	filter            CategoryFilter
	descriptionLength int
	logger            *zap.Logger
}

// NewBackfillWorker wires a worker. A non-positive descriptionLength selects
// DefaultDescriptionLength.
func NewBackfillWorker(
	fetcher PageFetcher,
	extractor ContentExtractor,
	pacer Pacer,
	filter CategoryFilter,
	descriptionLength int,
	logger *zap.Logger,
) *BackfillWorker {
	if descriptionLength <= 0 {
		descriptionLength = DefaultDescriptionLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackfillWorker{
		fetcher:           fetcher,
		extractor:         extractor,
		pacer:             pacer,
		filter:            filter,
		descriptionLength: descriptionLength,
		logger:            logger.Named("backfill"),
	}
}

// Backfill fetches pageURL and returns the article it holds. The URL becomes both the
// link and the GUID. Fetch failures come back as *FetchError; pages without a title
// or content yield ErrEmptyPage.
func (w *BackfillWorker) Backfill(ctx context.Context, pageURL string) (Candidate, error) {
	if err := w.pacer.Wait(ctx); err != nil {
		return Candidate{}, fmt.Errorf("pace %s: %w", pageURL, err)
	}
	page, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return Candidate{}, err
	}
	c, err := w.extractor.ExtractPage(pageURL, page.Body)
	if err != nil {
		return Candidate{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Content) == "" {
		return Candidate{}, fmt.Errorf("extract %s: %w", pageURL, ErrEmptyPage)
	}
	c.GUID = pageURL
	c.Link = pageURL
	c.Categories = w.filter.Apply(c.Categories)
	if strings.TrimSpace(c.Description) == "" {
		c.Description = truncateRunes(strings.TrimSpace(c.Content), w.descriptionLength)
	}
	w.logger.Debug("page extracted",
		zap.String("url", pageURL),
		zap.String("title", c.Title),
		zap.Int("categories", len(c.Categories)),
	)
	return c, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
