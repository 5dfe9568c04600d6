package reconcile_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

func newBackfiller(f *fakeFetcher, e *fakeExtractor, descLen int) *reconcile.BackfillWorker {
	return reconcile.NewBackfillWorker(f, e, &countingPacer{},
		reconcile.NewCategoryFilter(reconcile.DefaultCategories), descLen, nil)
}

func TestBackfillWorkerBuildsCandidate(t *testing.T) {
	t.Parallel()

	url := "https://ludepress.com/a/"
	extractor := newFakeExtractor()
	extractor.pages[url] = reconcile.Candidate{
		Title:      "标题",
		Creator:    "卢德",
		Content:    strings.Repeat("字", 300),
		Categories: []string{"Sports", "专栏评论"},
	}
	w := newBackfiller(newFakeFetcher(), extractor, 0)

	c, err := w.Backfill(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, url, c.GUID)
	assert.Equal(t, url, c.Link)
	assert.Equal(t, []string{"专栏评论"}, c.Categories)
	assert.Equal(t, strings.Repeat("字", 200), c.Description)
}

func TestBackfillWorkerKeepsExplicitDescription(t *testing.T) {
	t.Parallel()

	url := "https://ludepress.com/b/"
	extractor := newFakeExtractor()
	extractor.pages[url] = reconcile.Candidate{Title: "t", Content: "body text", Description: "summary"}
	w := newBackfiller(newFakeFetcher(), extractor, 3)

	c, err := w.Backfill(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "summary", c.Description)
}

func TestBackfillWorkerShortContent(t *testing.T) {
	t.Parallel()

	url := "https://ludepress.com/c/"
	extractor := newFakeExtractor()
	extractor.pages[url] = reconcile.Candidate{Title: "t", Content: "  short  "}
	w := newBackfiller(newFakeFetcher(), extractor, 0)

	c, err := w.Backfill(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "short", c.Description)
}

func TestBackfillWorkerFetchFailure(t *testing.T) {
	t.Parallel()

	url := "https://ludepress.com/gone/"
	fetcher := newFakeFetcher()
	fetcher.status[url] = 404
	w := newBackfiller(fetcher, newFakeExtractor(), 0)

	_, err := w.Backfill(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, reconcile.FetchHTTPStatus, reconcile.FetchErrorKindOf(err))
}

func TestBackfillWorkerEmptyPage(t *testing.T) {
	t.Parallel()

	url := "https://ludepress.com/empty/"
	extractor := newFakeExtractor()
	extractor.pages[url] = reconcile.Candidate{Creator: "someone"}
	w := newBackfiller(newFakeFetcher(), extractor, 0)

	_, err := w.Backfill(context.Background(), url)
	require.ErrorIs(t, err, reconcile.ErrEmptyPage)
	assert.Empty(t, reconcile.FetchErrorKindOf(err))
}
