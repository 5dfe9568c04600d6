package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// fakeFetcher serves the requested URL back as the body so the fake extractor and
// sitemap parser can key their answers on it.
type fakeFetcher struct {
	mu     sync.Mutex
	fail   map[string]error
	status map[string]int
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: map[string]error{}, status: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (reconcile.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.fail[url]; ok {
		return reconcile.Page{}, err
	}
	if code, ok := f.status[url]; ok {
		return reconcile.Page{}, &reconcile.FetchError{Kind: reconcile.FetchHTTPStatus, URL: url, StatusCode: code}
	}
	return reconcile.Page{URL: url, StatusCode: 200, Body: []byte(url)}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeExtractor struct {
	feeds    map[string][]reconcile.Candidate
	feedErrs map[string]error
	pages    map[string]reconcile.Candidate
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		feeds:    map[string][]reconcile.Candidate{},
		feedErrs: map[string]error{},
		pages:    map[string]reconcile.Candidate{},
	}
}

func (e *fakeExtractor) ExtractFeed(body []byte) ([]reconcile.Candidate, error) {
	if err, ok := e.feedErrs[string(body)]; ok {
		return nil, err
	}
	return e.feeds[string(body)], nil
}

func (e *fakeExtractor) ExtractPage(pageURL string, _ []byte) (reconcile.Candidate, error) {
	c, ok := e.pages[pageURL]
	if !ok {
		return reconcile.Candidate{}, errors.New("no article markup")
	}
	return c, nil
}

type fakeSitemaps struct {
	indexes map[string][]string
	urlsets map[string][]string
}

func newFakeSitemaps() *fakeSitemaps {
	return &fakeSitemaps{indexes: map[string][]string{}, urlsets: map[string][]string{}}
}

func (s *fakeSitemaps) ParseIndex(body []byte) ([]string, error) {
	locs, ok := s.indexes[string(body)]
	if !ok {
		return nil, errors.New("not a sitemap index")
	}
	return locs, nil
}

func (s *fakeSitemaps) ParseURLSet(body []byte) ([]string, error) {
	locs, ok := s.urlsets[string(body)]
	if !ok {
		return nil, errors.New("not a urlset")
	}
	return locs, nil
}

type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *countingPacer) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedIDs string

func (f fixedIDs) NewID() string { return string(f) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []reconcile.ArticleEvent
}

func (n *recordingNotifier) ArticleStored(_ context.Context, event reconcile.ArticleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []reconcile.ArticleEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]reconcile.ArticleEvent(nil), n.events...)
}

// batchStore records ExistsByLink batches and reports links in present as stored.
type batchStore struct {
	present map[string]struct{}
	batches [][]string
	err     error
}

func (s *batchStore) ExistsByLink(_ context.Context, links []string) (map[string]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, append([]string(nil), links...))
	out := map[string]struct{}{}
	for _, l := range links {
		if _, ok := s.present[l]; ok {
			out[l] = struct{}{}
		}
	}
	return out, nil
}
