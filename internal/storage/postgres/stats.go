package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// CategoryStats returns categories ordered by article count, largest first.
func (s *ArticleStore) CategoryStats(ctx context.Context, limit int) ([]reconcile.CategoryCount, error) {
	var out []reconcile.CategoryCount
	err := s.do(ctx, "category stats", func(ctx context.Context) error {
		out = out[:0]
		rows, err := s.pool.Query(ctx, categoryStatsSQL, limit)
		if err != nil {
			return fmt.Errorf("query category stats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				name  string
				count int64
			)
			if err := rows.Scan(&name, &count); err != nil {
				return fmt.Errorf("scan category stats: %w", err)
			}
			out = append(out, reconcile.CategoryCount{Name: name, Count: int(count)})
		}
		return rows.Err()
	})
	return out, err
}

// RecentArticles lists the most recently published articles with their categories.
func (s *ArticleStore) RecentArticles(ctx context.Context, limit int) ([]reconcile.ArticleSummary, error) {
	var out []reconcile.ArticleSummary
	err := s.do(ctx, "recent articles", func(ctx context.Context) error {
		out = out[:0]
		rows, err := s.pool.Query(ctx, recentArticlesSQL, limit)
		if err != nil {
			return fmt.Errorf("query recent articles: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				a         reconcile.ArticleSummary
				published *time.Time
			)
			if err := rows.Scan(&a.ID, &a.Title, &a.Link, &a.Creator, &published, &a.Categories); err != nil {
				return fmt.Errorf("scan recent article: %w", err)
			}
			if published != nil {
				a.PublishedAt = published.UTC()
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

// Totals counts stored articles, creators and categories.
func (s *ArticleStore) Totals(ctx context.Context) (reconcile.Totals, error) {
	var articles, creators, categories int64
	err := s.do(ctx, "totals", func(ctx context.Context) error {
		if err := s.pool.QueryRow(ctx, totalsSQL).Scan(&articles, &creators, &categories); err != nil {
			return fmt.Errorf("query totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return reconcile.Totals{}, err
	}
	return reconcile.Totals{
		Articles:   int(articles),
		Creators:   int(creators),
		Categories: int(categories),
	}, nil
}
