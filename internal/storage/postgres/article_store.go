// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
	"github.com/JakeFAU/feedsync/internal/retry"
)

// Config controls the connection pool and the connection retry policy.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	RetryCount      int
	RetryDelay      time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// ArticleStore persists articles, creators and categories in Postgres. Every call is
// retried on connection failures; failures that outlive the retries are reported as
// reconcile.ErrStoreUnavailable.
type ArticleStore struct {
	pool   pool
	retry  *retry.LinearPolicy
	logger *zap.Logger
}

// NewArticleStore opens a pool and waits until the database answers a ping.
func NewArticleStore(ctx context.Context, cfg Config, logger *zap.Logger, opts ...retry.Option) (*ArticleStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]retry.Option{retry.WithLogger(logger.Named("retry"))}, opts...)
	store, err := NewArticleStoreWithPool(p, retry.NewLinearPolicy(cfg.RetryCount, cfg.RetryDelay, opts...), logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(p pool, policy *retry.LinearPolicy, logger *zap.Logger) (*ArticleStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if policy == nil {
		policy = retry.NewLinearPolicy(retry.DefaultMaxRetries, retry.DefaultDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleStore{pool: p, retry: policy, logger: logger.Named("postgres")}, nil
}

// Close releases the pool.
func (s *ArticleStore) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *ArticleStore) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", func(ctx context.Context) error {
		if err := s.pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		return nil
	})
}

// EnsureSchema creates the tables and indexes when they are missing.
func (s *ArticleStore) EnsureSchema(ctx context.Context) error {
	return s.do(ctx, "ensure schema", func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	})
}

// GetOrCreateCreator returns the id of the named creator, inserting it when absent.
func (s *ArticleStore) GetOrCreateCreator(ctx context.Context, name string) (int64, error) {
	return s.getOrCreateNamed(ctx, creators, name)
}

// GetOrCreateCategory returns the id of the named category, inserting it when absent.
func (s *ArticleStore) GetOrCreateCategory(ctx context.Context, name string) (int64, error) {
	return s.getOrCreateNamed(ctx, categories, name)
}

func (s *ArticleStore) getOrCreateNamed(ctx context.Context, t namedTable, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%s name is empty", t.singular)
	}
	var id int64
	err := s.do(ctx, "get or create "+t.singular, func(ctx context.Context) error {
		var err error
		id, err = getOrCreateNamed(ctx, s.pool, t, name)
		return err
	})
	return id, err
}

// ExistsByLink returns the subset of links already stored.
func (s *ArticleStore) ExistsByLink(ctx context.Context, links []string) (map[string]struct{}, error) {
	present := make(map[string]struct{}, len(links))
	if len(links) == 0 {
		return present, nil
	}
	err := s.do(ctx, "exists by link", func(ctx context.Context) error {
		clear(present)
		rows, err := s.pool.Query(ctx, existsByLinkSQL, links)
		if err != nil {
			return fmt.Errorf("query links: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var link string
			if err := rows.Scan(&link); err != nil {
				return fmt.Errorf("scan link: %w", err)
			}
			present[link] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate links: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return present, nil
}

// InsertArticleIfAbsent stores the article and its category links in one
// transaction. An article whose GUID or link is already stored is left untouched and
// its id returned with created=false; its category links are still added.
func (s *ArticleStore) InsertArticleIfAbsent(ctx context.Context, a reconcile.Article) (int64, bool, error) {
	if strings.TrimSpace(a.GUID) == "" || strings.TrimSpace(a.Link) == "" {
		return 0, false, errors.New("article guid and link are required")
	}
	var (
		id      int64
		created bool
	)
	err := s.do(ctx, "insert article", func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin article tx: %w", err)
		}
		id, created, err = insertArticle(ctx, tx, a)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit article: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

// CountArticles returns the number of stored articles.
func (s *ArticleStore) CountArticles(ctx context.Context) (int, error) {
	var n int64
	err := s.do(ctx, "count articles", func(ctx context.Context) error {
		if err := s.pool.QueryRow(ctx, countArticlesSQL).Scan(&n); err != nil {
			return fmt.Errorf("count articles: %w", err)
		}
		return nil
	})
	return int(n), err
}

func (s *ArticleStore) do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := s.retry.Do(ctx, op, fn)
	if err != nil && retry.IsTransient(err) {
		return fmt.Errorf("%w: %w", reconcile.ErrStoreUnavailable, err)
	}
	return err
}

func insertArticle(ctx context.Context, tx pgx.Tx, a reconcile.Article) (int64, bool, error) {
	var id int64
	created := false
	err := tx.QueryRow(ctx, selectArticleByGUIDSQL, a.GUID).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, insertArticleSQL,
			a.GUID,
			a.Title,
			a.Link,
			nullableID(a.CreatorID),
			a.PublishedAt,
			a.Description,
			a.Content,
			nullableString(a.CommentsLink),
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			// Another row already owns the link.
			if err := tx.QueryRow(ctx, selectArticleByLinkSQL, a.Link).Scan(&id); err != nil {
				return 0, false, fmt.Errorf("select article by link: %w", err)
			}
		} else if err != nil {
			return 0, false, fmt.Errorf("insert article: %w", err)
		} else {
			created = true
		}
	case err != nil:
		return 0, false, fmt.Errorf("select article by guid: %w", err)
	}

	for _, name := range a.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		categoryID, err := getOrCreateNamed(ctx, tx, categories, name)
		if err != nil {
			return 0, false, err
		}
		if _, err := tx.Exec(ctx, linkCategorySQL, id, categoryID); err != nil {
			return 0, false, fmt.Errorf("link category %q: %w", name, err)
		}
	}
	return id, created, nil
}

func getOrCreateNamed(ctx context.Context, q querier, t namedTable, name string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, t.selectSQL, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("select %s: %w", t.singular, err)
	}
	err = q.QueryRow(ctx, t.insertSQL, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Inserted concurrently between the select and the insert.
		err = q.QueryRow(ctx, t.selectSQL, name).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.singular, err)
	}
	return id, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
