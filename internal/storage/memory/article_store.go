// Package memory provides in-process stores for dry runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// ArticleStore keeps articles in process memory. It backs dry runs and tests.
type ArticleStore struct {
	mu         sync.RWMutex
	nextID     int64
	creators   map[string]int64
	categories map[string]int64
	articles   []storedArticle
	byGUID     map[string]int
	byLink     map[string]int
}

type storedArticle struct {
	id         int64
	article    reconcile.Article
	categories map[int64]struct{}
}

// NewArticleStore constructs an empty ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		creators:   make(map[string]int64),
		categories: make(map[string]int64),
		byGUID:     make(map[string]int),
		byLink:     make(map[string]int),
	}
}

// EnsureSchema is a no-op.
func (s *ArticleStore) EnsureSchema(context.Context) error { return nil }

// GetOrCreateCreator returns the id for name, creating it when needed.
func (s *ArticleStore) GetOrCreateCreator(_ context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("creator name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(s.creators, name), nil
}

// GetOrCreateCategory returns the id for name, creating it when needed.
func (s *ArticleStore) GetOrCreateCategory(_ context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("category name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(s.categories, name), nil
}

func (s *ArticleStore) getOrCreate(names map[string]int64, name string) int64 {
	if id, ok := names[name]; ok {
		return id
	}
	s.nextID++
	names[name] = s.nextID
	return s.nextID
}

// ExistsByLink returns the subset of links already stored.
func (s *ArticleStore) ExistsByLink(_ context.Context, links []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, link := range links {
		if _, ok := s.byLink[link]; ok {
			out[link] = struct{}{}
		}
	}
	return out, nil
}

// InsertArticleIfAbsent stores article unless its GUID or link is already present.
// Categories are attached either way.
func (s *ArticleStore) InsertArticleIfAbsent(_ context.Context, article reconcile.Article) (int64, bool, error) {
	if article.GUID == "" || article.Link == "" {
		return 0, false, errors.New("article guid and link are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byGUID[article.GUID]
	if !ok {
		idx, ok = s.byLink[article.Link]
	}
	created := !ok
	if created {
		s.nextID++
		stored := article
		stored.Categories = nil
		s.articles = append(s.articles, storedArticle{
			id:         s.nextID,
			article:    stored,
			categories: make(map[int64]struct{}),
		})
		idx = len(s.articles) - 1
		s.byGUID[article.GUID] = idx
		s.byLink[article.Link] = idx
	}
	for _, name := range article.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.articles[idx].categories[s.getOrCreate(s.categories, name)] = struct{}{}
	}
	return s.articles[idx].id, created, nil
}

// CountArticles returns the number of stored articles.
func (s *ArticleStore) CountArticles(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles), nil
}

// Article returns the stored article with the given GUID.
func (s *ArticleStore) Article(guid string) (reconcile.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byGUID[guid]
	if !ok {
		return reconcile.Article{}, false
	}
	out := s.articles[idx].article
	out.Categories = s.categoryNames(s.articles[idx].categories)
	return out, true
}

// CategoryStats returns categories ordered by article count, largest first.
func (s *ArticleStore) CategoryStats(_ context.Context, limit int) ([]reconcile.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for _, a := range s.articles {
		for id := range a.categories {
			counts[id]++
		}
	}
	out := make([]reconcile.CategoryCount, 0, len(s.categories))
	for name, id := range s.categories {
		out = append(out, reconcile.CategoryCount{Name: name, Count: counts[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentArticles lists the most recently published articles.
func (s *ArticleStore) RecentArticles(_ context.Context, limit int) ([]reconcile.ArticleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reconcile.ArticleSummary, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, reconcile.ArticleSummary{
			ID:          a.id,
			Title:       a.article.Title,
			Link:        a.article.Link,
			Creator:     a.article.CreatorName,
			PublishedAt: a.article.PublishedAt,
			Categories:  s.categoryNames(a.categories),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Totals counts stored rows.
func (s *ArticleStore) Totals(context.Context) (reconcile.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reconcile.Totals{
		Articles:   len(s.articles),
		Creators:   len(s.creators),
		Categories: len(s.categories),
	}, nil
}

func (s *ArticleStore) categoryNames(ids map[int64]struct{}) []string {
	if len(ids) == 0 {
		return nil
	}
	names := make([]string, 0, len(ids))
	for name, id := range s.categories {
		if _, ok := ids[id]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
