package reconcile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultPostSitemapPattern selects the post sitemaps of a WordPress sitemap index.
const DefaultPostSitemapPattern = "post-sitemap"

// SitemapEnumerator lists the article URLs published in a sitemap index.
type SitemapEnumerator struct {
	indexURL string
	pattern  string
	fetcher  PageFetcher
	parser   SitemapParser
	pacer    Pacer
	logger   *zap.Logger
}

// NewSitemapEnumerator wires an enumerator. An empty pattern selects
// DefaultPostSitemapPattern.
func NewSitemapEnumerator(
	indexURL, pattern string,
	fetcher PageFetcher,
	parser SitemapParser,
	pacer Pacer,
	logger *zap.Logger,
) *SitemapEnumerator {
	if pattern == "" {
		pattern = DefaultPostSitemapPattern
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitemapEnumerator{
		indexURL: indexURL,
		pattern:  pattern,
		fetcher:  fetcher,
		parser:   parser,
		pacer:    pacer,
		logger:   logger.Named("sitemap"),
	}
}

// IndexSitemaps returns the post sitemaps listed in the root index, in index order.
func (e *SitemapEnumerator) IndexSitemaps(ctx context.Context) ([]string, error) {
	body, err := e.fetch(ctx, e.indexURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrSitemapIndexUnavailable, err)
	}
	locs, err := e.parser.ParseIndex(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrSitemapIndexUnavailable, e.indexURL, err)
	}
	out := make([]string, 0, len(locs))
	for _, loc := range locs {
		if strings.Contains(loc, e.pattern) {
			out = append(out, loc)
		}
	}
	e.logger.Debug("sitemap index read", zap.Int("entries", len(locs)), zap.Int("post_sitemaps", len(out)))
	return out, nil
}

// ListURLs returns the URLs of one sitemap in file order.
func (e *SitemapEnumerator) ListURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	body, err := e.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	urls, err := e.parser.ParseURLSet(body)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}
	return urls, nil
}

// Enumerate concatenates the URLs of every post sitemap. A sitemap that cannot be
// read contributes nothing.
func (e *SitemapEnumerator) Enumerate(ctx context.Context) ([]string, error) {
	var all []string
	err := e.walk(ctx, func(urls []string) {
		all = append(all, urls...)
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Count sums the entries of every post sitemap.
func (e *SitemapEnumerator) Count(ctx context.Context) (int, error) {
	total := 0
	err := e.walk(ctx, func(urls []string) {
		total += len(urls)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (e *SitemapEnumerator) walk(ctx context.Context, visit func([]string)) error {
	sitemaps, err := e.IndexSitemaps(ctx)
	if err != nil {
		return err
	}
	for _, sm := range sitemaps {
		urls, err := e.ListURLs(ctx, sm)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("sitemap unreadable, skipping", zap.String("sitemap", sm), zap.Error(err))
			continue
		}
		visit(urls)
	}
	return nil
}

func (e *SitemapEnumerator) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pace sitemap %s: %w", target, err)
	}
	page, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return page.Body, nil
}
