// Package extract turns feed, sitemap and article page bytes into reconcile
// candidates.
package extract

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// Selectors lists the CSS selectors tried, in order, when reading an article page.
type Selectors struct {
	Title      []string
	Content    []string
	Author     []string
	Categories []string
	Published  []string
	Comments   []string
	// Strip is removed from the content container before its text is taken.
	Strip string
}

// DefaultSelectors matches common WordPress themes.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:      []string{"h1.entry-title", "h1.post-title", "h1"},
		Content:    []string{".entry-content", ".post-content", "article", ".content"},
		Author:     []string{".author-name", ".author a", "a[rel=author]", ".byline"},
		Categories: []string{"a[rel~=category]", ".cat-links a", ".post-categories a"},
		Published:  []string{"time[datetime]", "meta[property='article:published_time']"},
		Comments:   []string{"a[href$='#comments']", "a[href$='#respond']"},
		Strip:      "script, style, iframe",
	}
}

// Extractor implements reconcile.ContentExtractor and reconcile.SitemapParser.
type Extractor struct {
	selectors Selectors
	logger    *zap.Logger
}

var (
	_ reconcile.ContentExtractor = (*Extractor)(nil)
	_ reconcile.SitemapParser    = (*Extractor)(nil)
)

// New builds an Extractor. Empty selector lists fall back to DefaultSelectors.
func New(selectors Selectors, logger *zap.Logger) *Extractor {
	def := DefaultSelectors()
	if len(selectors.Title) == 0 {
		selectors.Title = def.Title
	}
	if len(selectors.Content) == 0 {
		selectors.Content = def.Content
	}
	if len(selectors.Author) == 0 {
		selectors.Author = def.Author
	}
	if len(selectors.Categories) == 0 {
		selectors.Categories = def.Categories
	}
	if len(selectors.Published) == 0 {
		selectors.Published = def.Published
	}
	if len(selectors.Comments) == 0 {
		selectors.Comments = def.Comments
	}
	if selectors.Strip == "" {
		selectors.Strip = def.Strip
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{selectors: selectors, logger: logger.Named("extract")}
}
