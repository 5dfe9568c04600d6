package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedsync/internal/reconcile"
	"github.com/JakeFAU/feedsync/internal/retry"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newMockStore(t *testing.T) (*ArticleStore, pgxmock.PgxPoolIface, *sleepRecorder) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	sleeper := &sleepRecorder{}
	policy := retry.NewLinearPolicy(3, time.Second, retry.WithSleeper(sleeper.sleep))
	store, err := NewArticleStoreWithPool(mock, policy, nil)
	require.NoError(t, err)
	return store, mock, sleeper
}

func noRows(cols ...string) *pgxmock.Rows {
	return pgxmock.NewRows(cols)
}

func idRow(id int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id"}).AddRow(id)
}

func TestInsertArticleIfAbsentCreatesArticle(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	published := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	article := reconcile.Article{
		GUID:        "https://ludepress.com/?p=10",
		Link:        "https://ludepress.com/article/",
		Title:       "标题",
		CreatorID:   7,
		PublishedAt: published,
		Description: "摘要",
		Content:     "正文",
		Categories:  []string{"专栏评论"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles WHERE guid").
		WithArgs(article.GUID).
		WillReturnRows(noRows("id"))
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(article.GUID, article.Title, article.Link, int64(7), published, "摘要", "正文", nil).
		WillReturnRows(idRow(42))
	mock.ExpectQuery("SELECT id FROM categories WHERE name").
		WithArgs("专栏评论").
		WillReturnRows(noRows("id"))
	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("专栏评论").
		WillReturnRows(idRow(3))
	mock.ExpectExec("INSERT INTO article_categories").
		WithArgs(int64(42), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, created, err := store.InsertArticleIfAbsent(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleIfAbsentKeepsExistingRow(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	article := reconcile.Article{
		GUID:  "https://ludepress.com/?p=10",
		Link:  "https://ludepress.com/article/",
		Title: "a different title",
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles WHERE guid").
		WithArgs(article.GUID).
		WillReturnRows(idRow(42))
	mock.ExpectCommit()

	id, created, err := store.InsertArticleIfAbsent(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleIfAbsentLinkConflict(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	published := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	article := reconcile.Article{
		GUID:         "https://ludepress.com/article/",
		Link:         "https://ludepress.com/article/",
		PublishedAt:  published,
		CommentsLink: "https://ludepress.com/article/#comments",
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles WHERE guid").
		WithArgs(article.GUID).
		WillReturnRows(noRows("id"))
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(article.GUID, "", article.Link, nil, published, "", "", article.CommentsLink).
		WillReturnRows(noRows("id"))
	mock.ExpectQuery("SELECT id FROM articles WHERE link").
		WithArgs(article.Link).
		WillReturnRows(idRow(9))
	mock.ExpectCommit()

	id, created, err := store.InsertArticleIfAbsent(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleIfAbsentPermanentFailure(t *testing.T) {
	t.Parallel()

	store, mock, sleeper := newMockStore(t)
	article := reconcile.Article{GUID: "g", Link: "https://ludepress.com/g/"}
	tooLong := &pgconn.PgError{Code: "22001", Message: "value too long"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles WHERE guid").
		WithArgs("g").
		WillReturnError(tooLong)
	mock.ExpectRollback()

	_, _, err := store.InsertArticleIfAbsent(context.Background(), article)
	require.ErrorIs(t, err, tooLong)
	assert.NotErrorIs(t, err, reconcile.ErrStoreUnavailable)
	assert.Empty(t, sleeper.delays)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleIfAbsentRequiresKeys(t *testing.T) {
	t.Parallel()

	store, _, _ := newMockStore(t)
	_, _, err := store.InsertArticleIfAbsent(context.Background(), reconcile.Article{Link: "x"})
	require.Error(t, err)
}

func TestCountArticlesRetriesConnectionFailures(t *testing.T) {
	t.Parallel()

	store, mock, sleeper := newMockStore(t)
	for range 3 {
		mock.ExpectQuery("SELECT COUNT").
			WillReturnError(&pgconn.PgError{Code: "57P01", Message: "terminating connection"})
	}
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := store.CountArticles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, sleeper.delays)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountArticlesGivesUpAsUnavailable(t *testing.T) {
	t.Parallel()

	store, mock, sleeper := newMockStore(t)
	last := &pgconn.PgError{Code: "08006", Message: "connection failure 4"}
	for range 3 {
		mock.ExpectQuery("SELECT COUNT").
			WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	}
	mock.ExpectQuery("SELECT COUNT").WillReturnError(last)

	_, err := store.CountArticles(context.Background())
	require.ErrorIs(t, err, reconcile.ErrStoreUnavailable)
	require.ErrorIs(t, err, last)
	assert.Len(t, sleeper.delays, 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByLink(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	links := []string{"https://ludepress.com/a/", "https://ludepress.com/b/"}
	mock.ExpectQuery("SELECT link FROM articles").
		WithArgs(links).
		WillReturnRows(pgxmock.NewRows([]string{"link"}).AddRow("https://ludepress.com/b/"))

	present, err := store.ExistsByLink(context.Background(), links)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"https://ludepress.com/b/": {}}, present)
	require.NoError(t, mock.ExpectationsWereMet())

	empty, err := store.ExistsByLink(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetOrCreateCreator(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM creators WHERE name").
		WithArgs("卢德").
		WillReturnRows(idRow(5))
	mock.ExpectQuery("SELECT id FROM creators WHERE name").
		WithArgs("新作者").
		WillReturnRows(noRows("id"))
	mock.ExpectQuery("INSERT INTO creators").
		WithArgs("新作者").
		WillReturnRows(idRow(6))

	id, err := store.GetOrCreateCreator(context.Background(), " 卢德 ")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	id, err = store.GetOrCreateCreator(context.Background(), "新作者")
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)

	_, err = store.GetOrCreateCreator(context.Background(), "")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	mock.ExpectBegin()
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectCommit()

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaRollsBack(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	denied := &pgconn.PgError{Code: "42501", Message: "permission denied"}
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS creators").WillReturnError(denied)
	mock.ExpectRollback()

	err := store.EnsureSchema(context.Background())
	require.ErrorIs(t, err, denied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportingQueries(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	published := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT c.name, COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"name", "article_count"}).
			AddRow("专栏评论", int64(120)))
	mock.ExpectQuery("SELECT a.id, a.title").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "link", "creator", "pub_date", "categories"}).
			AddRow(int64(1), "标题", "https://ludepress.com/a/", "卢德", &published, []string{"专栏评论"}))
	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"articles", "creators", "categories"}).
			AddRow(int64(120), int64(4), int64(1)))

	stats, err := store.CategoryStats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.CategoryCount{{Name: "专栏评论", Count: 120}}, stats)

	recent, err := store.RecentArticles(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "卢德", recent[0].Creator)
	assert.Equal(t, published, recent[0].PublishedAt)
	assert.Equal(t, []string{"专栏评论"}, recent[0].Categories)

	totals, err := store.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reconcile.Totals{Articles: 120, Creators: 4, Categories: 1}, totals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewArticleStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStore(context.Background(), Config{}, nil)
	require.Error(t, err)

	_, err = NewArticleStoreWithPool(nil, nil, nil)
	require.Error(t, err)
}
