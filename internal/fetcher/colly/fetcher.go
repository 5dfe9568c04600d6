// Package collyfetcher implements reconcile.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/feedsync/internal/metrics"
	"github.com/JakeFAU/feedsync/internal/reconcile"
)

const (
	// DefaultUserAgent is a desktop browser string; some WordPress hosts reject
	// library user agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
	// MaxBodySize caps the bytes read per response; 0 keeps the colly default.
	MaxBodySize int
}

// Fetcher implements reconcile.PageFetcher using the Colly collector. Fetches are
// never retried.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ reconcile.PageFetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the collector callbacks observed for one visit.
type fetchState struct {
	page   reconcile.Page
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.UserAgent(cfg.UserAgent))
	// Feed and sitemap URLs are read on every run.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Failures are returned as *reconcile.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (reconcile.Page, error) {
	start := time.Now()
	state := &fetchState{}
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, start, state)

	err := f.runCollector(ctx, collector, url)
	if err == nil && state.err != nil {
		err = state.err
	}
	if err != nil {
		fe := classify(url, state.status, err)
		metrics.ObserveFetch(string(fe.Kind), 0, time.Since(start))
		return reconcile.Page{}, fe
	}
	metrics.ObserveFetch("ok", len(state.page.Body), state.page.Duration)
	return state.page, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.page = reconcile.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			FetchedAt:  time.Now().UTC(),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func classify(url string, status int, err error) *reconcile.FetchError {
	if status > 0 && (status < http.StatusOK || status >= http.StatusNonAuthoritativeInfo) {
		return &reconcile.FetchError{Kind: reconcile.FetchHTTPStatus, URL: url, StatusCode: status, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &reconcile.FetchError{Kind: reconcile.FetchTimeout, URL: url, Err: err}
	}
	return &reconcile.FetchError{Kind: reconcile.FetchTransport, URL: url, Err: fmt.Errorf("colly visit failed: %w", err)}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
