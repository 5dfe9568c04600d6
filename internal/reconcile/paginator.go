package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// DefaultPageParam is the query parameter WordPress uses for feed pagination.
const DefaultPageParam = "paged"

// FeedPaginator walks the numbered pages of a feed.
type FeedPaginator struct {
	feedURL   string
	pageParam string
	fetcher   PageFetcher
	extractor ContentExtractor
	pacer     Pacer
	filter    CategoryFilter
	logger    *zap.Logger
}

// NewFeedPaginator wires a paginator. An empty pageParam selects DefaultPageParam.
func NewFeedPaginator(
	feedURL, pageParam string,
	fetcher PageFetcher,
	extractor ContentExtractor,
	pacer Pacer,
	filter CategoryFilter,
	logger *zap.Logger,
) *FeedPaginator {
	if pageParam == "" {
		pageParam = DefaultPageParam
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedPaginator{
		feedURL:   feedURL,
		pageParam: pageParam,
		fetcher:   fetcher,
		extractor: extractor,
		pacer:     pacer,
		filter:    filter,
		logger:    logger.Named("feed"),
	}
}

// PageURL returns the URL of feed page n. Page 1 is the bare feed URL.
func (p *FeedPaginator) PageURL(n int) string {
	if n <= 1 {
		return p.feedURL
	}
	u, err := url.Parse(p.feedURL)
	if err != nil {
		return fmt.Sprintf("%s?%s=%d", p.feedURL, p.pageParam, n)
	}
	q := u.Query()
	q.Set(p.pageParam, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// Crawl reads pages from 1 upward and hands every entry to yield as soon as its page is
// parsed. It stops on an empty page, once pageBudget pages have been read (0 means no
// limit), or when a page cannot be fetched or parsed. Only context cancellation and
// errors returned by yield are reported as errors.
func (p *FeedPaginator) Crawl(ctx context.Context, pageBudget int, yield func(Candidate) error) (PageStats, error) {
	var stats PageStats
	for page := 1; pageBudget <= 0 || page <= pageBudget; page++ {
		if err := p.pacer.Wait(ctx); err != nil {
			return stats, fmt.Errorf("pace feed page %d: %w", page, err)
		}
		pageURL := p.PageURL(page)
		resp, err := p.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			p.logger.Warn("feed page fetch failed, stopping crawl",
				zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
			stats.Truncated = true
			return stats, nil
		}
		stats.Pages++

		entries, err := p.extractor.ExtractFeed(resp.Body)
		if err != nil {
			p.logger.Warn("feed page parse failed, stopping crawl",
				zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
			stats.Truncated = true
			return stats, nil
		}
		if len(entries) == 0 {
			p.logger.Info("empty feed page, end of feed", zap.Int("page", page))
			stats.ReachedEnd = true
			return stats, nil
		}
		p.logger.Debug("feed page read", zap.Int("page", page), zap.Int("entries", len(entries)))

		for _, entry := range entries {
			entry.Categories = p.filter.Apply(entry.Categories)
			stats.Candidates++
			if err := yield(entry); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}
