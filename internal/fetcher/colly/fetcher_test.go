package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "feedsync-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte("<rss></rss>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "feedsync-test", Timeout: time.Second})
	for range 2 {
		page, err := f.Fetch(context.Background(), srv.URL+"/feed")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, page.StatusCode)
		assert.Equal(t, "<rss></rss>", string(page.Body))
		assert.Equal(t, srv.URL+"/feed", page.URL)
		assert.False(t, page.FetchedAt.IsZero())
	}
}

func TestFetchHTTPStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL+"/missing")
	var fe *reconcile.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, reconcile.FetchHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Contains(t, fe.Error(), "404")
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	assert.Equal(t, reconcile.FetchTimeout, reconcile.FetchErrorKindOf(err))
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), target)
	assert.Equal(t, reconcile.FetchTransport, reconcile.FetchErrorKindOf(err))
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	state := &fetchState{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Now(), state)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://ludepress.com/feed")},
	})
	assert.Equal(t, "body", string(state.page.Body))
	assert.Equal(t, "https://ludepress.com/feed", state.page.URL)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	assert.Equal(t, http.StatusBadGateway, state.status)
	require.EqualError(t, state.err, "Bad Gateway")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	assert.Equal(t, DefaultUserAgent, f.baseCollector.UserAgent)
	assert.Equal(t, DefaultTimeout, f.cfg.Timeout)
	assert.True(t, f.baseCollector.IgnoreRobotsTxt)
	assert.True(t, f.baseCollector.AllowURLRevisit)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func TestClassifyStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		err    error
		want   reconcile.FetchErrorKind
	}{
		{name: "no content", status: http.StatusNoContent, err: errors.New("No Content"), want: reconcile.FetchHTTPStatus},
		{name: "non authoritative", status: http.StatusNonAuthoritativeInfo, err: errors.New("x"), want: reconcile.FetchHTTPStatus},
		{name: "partial content", status: http.StatusPartialContent, err: errors.New("x"), want: reconcile.FetchHTTPStatus},
		{name: "redirect", status: http.StatusFound, err: errors.New("x"), want: reconcile.FetchHTTPStatus},
		{name: "server error", status: http.StatusBadGateway, err: errors.New("x"), want: reconcile.FetchHTTPStatus},
		{name: "informational", status: http.StatusContinue, err: errors.New("x"), want: reconcile.FetchHTTPStatus},
		{name: "deadline", err: context.DeadlineExceeded, want: reconcile.FetchTimeout},
		{name: "accepted with error", status: http.StatusAccepted, err: errors.New("read: connection reset"), want: reconcile.FetchTransport},
		{name: "no response", err: errors.New("dial tcp: connection refused"), want: reconcile.FetchTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fe := classify("https://ludepress.com/a/", tt.status, tt.err)
			assert.Equal(t, tt.want, fe.Kind)
			if tt.want == reconcile.FetchHTTPStatus {
				assert.Equal(t, tt.status, fe.StatusCode)
			}
		})
	}
}
