package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ExtractPage reads an article page. Fields the page does not carry are left empty;
// the body is passed through readability when no content container matches.
func (e *Extractor) ExtractPage(pageURL string, body []byte) (reconcile.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return reconcile.Candidate{}, fmt.Errorf("parse html: %w", err)
	}
	c := reconcile.Candidate{
		GUID:        pageURL,
		Link:        pageURL,
		Title:       firstText(doc, e.selectors.Title),
		Creator:     firstText(doc, e.selectors.Author),
		Categories:  firstList(doc, e.selectors.Categories),
		Description: metaContent(doc, "meta[name=description]", "meta[property='og:description']"),
		PublishedAt: e.publishedAt(doc),
	}
	if c.Title == "" {
		c.Title = metaContent(doc, "meta[property='og:title']")
	}
	if href, ok := firstAttr(doc, e.selectors.Comments, "href"); ok {
		c.CommentsLink = resolve(pageURL, href)
	}

	for _, sel := range e.selectors.Content {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		c.Content = selectionText(node, e.selectors.Strip)
		break
	}
	if c.Content == "" {
		e.applyReadability(pageURL, body, &c)
	}
	if c.Title == "" {
		c.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return c, nil
}

func (e *Extractor) applyReadability(pageURL string, body []byte, c *reconcile.Candidate) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		e.logger.Debug("readability fallback failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	c.Content = normalizeText(article.TextContent)
	if c.Title == "" {
		c.Title = strings.TrimSpace(article.Title)
	}
	if c.Creator == "" {
		c.Creator = strings.TrimSpace(article.Byline)
	}
	if c.Description == "" {
		c.Description = strings.TrimSpace(article.Excerpt)
	}
	if c.PublishedAt == nil && article.PublishedTime != nil {
		t := article.PublishedTime.UTC()
		c.PublishedAt = &t
	}
}

func (e *Extractor) publishedAt(doc *goquery.Document) *time.Time {
	for _, sel := range e.selectors.Published {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		raw := node.AttrOr("datetime", node.AttrOr("content", ""))
		if t, ok := parseTime(raw); ok {
			return &t
		}
	}
	return nil
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

// firstList returns the texts matched by the first selector that matches anything.
func firstList(doc *goquery.Document, selectors []string) []string {
	for _, sel := range selectors {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				out = append(out, text)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func firstAttr(doc *goquery.Document, selectors []string, attr string) (string, bool) {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
