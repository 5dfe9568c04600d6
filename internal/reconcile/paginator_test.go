package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

const testFeedURL = "https://ludepress.com/feed"

func feedEntries(page, n int) []reconcile.Candidate {
	out := make([]reconcile.Candidate, 0, n)
	for i := range n {
		link := fmt.Sprintf("https://ludepress.com/p%d-%d/", page, i)
		out = append(out, reconcile.Candidate{
			GUID:       link,
			Link:       link,
			Title:      fmt.Sprintf("page %d item %d", page, i),
			Categories: []string{"专栏评论", "Sports"},
		})
	}
	return out
}

func newPaginator(f *fakeFetcher, e *fakeExtractor, p reconcile.Pacer) *reconcile.FeedPaginator {
	return reconcile.NewFeedPaginator(testFeedURL, "", f, e, p,
		reconcile.NewCategoryFilter(reconcile.DefaultCategories), nil)
}

func TestFeedPaginatorPageURL(t *testing.T) {
	t.Parallel()

	p := newPaginator(newFakeFetcher(), newFakeExtractor(), &countingPacer{})
	assert.Equal(t, testFeedURL, p.PageURL(1))
	assert.Equal(t, testFeedURL+"?paged=2", p.PageURL(2))

	withQuery := reconcile.NewFeedPaginator("https://ludepress.com/?feed=rss2", "page",
		newFakeFetcher(), newFakeExtractor(), &countingPacer{}, reconcile.CategoryFilter{}, nil)
	assert.Equal(t, "https://ludepress.com/?feed=rss2&page=5", withQuery.PageURL(5))
}

func TestFeedPaginatorStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	extractor := newFakeExtractor()
	pacer := &countingPacer{}
	p := newPaginator(fetcher, extractor, pacer)
	extractor.feeds[p.PageURL(1)] = feedEntries(1, 12)
	extractor.feeds[p.PageURL(2)] = feedEntries(2, 7)
	extractor.feeds[p.PageURL(4)] = feedEntries(4, 3)

	var got []reconcile.Candidate
	stats, err := p.Crawl(context.Background(), 0, func(c reconcile.Candidate) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{p.PageURL(1), p.PageURL(2), p.PageURL(3)}, fetcher.Calls())
	assert.Equal(t, 3, pacer.Waits())
	assert.Len(t, got, 19)
	assert.Equal(t, reconcile.PageStats{Pages: 3, Candidates: 19, ReachedEnd: true}, stats)
	assert.Equal(t, []string{"专栏评论"}, got[0].Categories)
	assert.Equal(t, "page 1 item 0", got[0].Title)
	assert.Equal(t, "page 2 item 6", got[18].Title)
}

func TestFeedPaginatorHonorsBudget(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	extractor := newFakeExtractor()
	p := newPaginator(fetcher, extractor, &countingPacer{})
	for page := 1; page <= 5; page++ {
		extractor.feeds[p.PageURL(page)] = feedEntries(page, 10)
	}

	stats, err := p.Crawl(context.Background(), 2, func(reconcile.Candidate) error { return nil })
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 2)
	assert.Equal(t, 20, stats.Candidates)
	assert.False(t, stats.ReachedEnd)
}

func TestFeedPaginatorFetchFailureKeepsHarvest(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	extractor := newFakeExtractor()
	p := newPaginator(fetcher, extractor, &countingPacer{})
	extractor.feeds[p.PageURL(1)] = feedEntries(1, 10)
	fetcher.status[p.PageURL(2)] = 503

	count := 0
	stats, err := p.Crawl(context.Background(), 0, func(reconcile.Candidate) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, count)
	assert.True(t, stats.Truncated)
	assert.Equal(t, 1, stats.Pages)
}

func TestFeedPaginatorParseFailureTruncates(t *testing.T) {
	t.Parallel()

	extractor := newFakeExtractor()
	p := newPaginator(newFakeFetcher(), extractor, &countingPacer{})
	extractor.feedErrs[p.PageURL(1)] = errors.New("not xml")

	stats, err := p.Crawl(context.Background(), 0, func(reconcile.Candidate) error { return nil })
	require.NoError(t, err)
	assert.True(t, stats.Truncated)
	assert.Zero(t, stats.Candidates)
}

func TestFeedPaginatorYieldErrorAborts(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	extractor := newFakeExtractor()
	p := newPaginator(fetcher, extractor, &countingPacer{})
	extractor.feeds[p.PageURL(1)] = feedEntries(1, 10)
	extractor.feeds[p.PageURL(2)] = feedEntries(2, 10)
	boom := errors.New("store down")

	stats, err := p.Crawl(context.Background(), 0, func(reconcile.Candidate) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, stats.Candidates)
	assert.Len(t, fetcher.Calls(), 1)
}

func TestFeedPaginatorCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := newFakeFetcher()
	p := newPaginator(fetcher, newFakeExtractor(), &countingPacer{})

	_, err := p.Crawl(ctx, 0, func(reconcile.Candidate) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.Calls())
}
