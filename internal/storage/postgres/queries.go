package postgres

type namedTable struct {
	singular  string
	selectSQL string
	insertSQL string
}

var (
	creators = namedTable{
		singular:  "creator",
		selectSQL: `SELECT id FROM creators WHERE name = $1`,
		insertSQL: `INSERT INTO creators (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`,
	}
	categories = namedTable{
		singular:  "category",
		selectSQL: `SELECT id FROM categories WHERE name = $1`,
		insertSQL: `INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`,
	}
)

const (
	selectArticleByGUIDSQL = `SELECT id FROM articles WHERE guid = $1`
	selectArticleByLinkSQL = `SELECT id FROM articles WHERE link = $1`
	insertArticleSQL       = `
		INSERT INTO articles (guid, title, link, creator_id, pub_date, description, content, comments_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING id`
	linkCategorySQL = `
		INSERT INTO article_categories (article_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT (article_id, category_id) DO NOTHING`
	existsByLinkSQL  = `SELECT link FROM articles WHERE link = ANY($1)`
	countArticlesSQL = `SELECT COUNT(*) FROM articles`

	categoryStatsSQL = `
		SELECT c.name, COUNT(ac.article_id) AS article_count
		FROM categories c
		LEFT JOIN article_categories ac ON ac.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY article_count DESC, c.name
		LIMIT $1`
	recentArticlesSQL = `
		SELECT a.id, a.title, a.link, COALESCE(cr.name, ''), a.pub_date,
			COALESCE(array_agg(c.name ORDER BY c.name) FILTER (WHERE c.name IS NOT NULL), '{}')
		FROM articles a
		LEFT JOIN creators cr ON cr.id = a.creator_id
		LEFT JOIN article_categories ac ON ac.article_id = a.id
		LEFT JOIN categories c ON c.id = ac.category_id
		GROUP BY a.id, cr.name
		ORDER BY a.pub_date DESC NULLS LAST, a.id DESC
		LIMIT $1`
	totalsSQL = `
		SELECT
			(SELECT COUNT(*) FROM articles),
			(SELECT COUNT(*) FROM creators),
			(SELECT COUNT(*) FROM categories)`
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS creators (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		guid VARCHAR(500) NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		link VARCHAR(1000) NOT NULL UNIQUE,
		creator_id BIGINT REFERENCES creators (id) ON DELETE SET NULL,
		pub_date TIMESTAMPTZ,
		description TEXT,
		content TEXT,
		comments_link VARCHAR(1000),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_pub_date ON articles (pub_date)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_creator_id ON articles (creator_id)`,
	`CREATE TABLE IF NOT EXISTS article_categories (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL REFERENCES articles (id) ON DELETE CASCADE,
		category_id BIGINT NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (article_id, category_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_article_categories_category_id ON article_categories (category_id)`,
}
