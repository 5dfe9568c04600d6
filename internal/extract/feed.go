package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// ExtractFeed parses an RSS or Atom document and returns its entries in document
// order. Description and content are reduced to plain text.
func (e *Extractor) ExtractFeed(body []byte) ([]reconcile.Candidate, error) {
	if gofeed.DetectFeedType(bytes.NewReader(body)) == gofeed.FeedTypeRSS {
		return e.extractRSS(body)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	out := make([]reconcile.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		out = append(out, candidateFromItem(item, ""))
	}
	return out, nil
}

// extractRSS keeps the RSS-only <comments> element, which the universal feed
// model does not carry.
func (e *Extractor) extractRSS(body []byte) ([]reconcile.Candidate, error) {
	raw, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}
	parsed, err := (&gofeed.DefaultRSSTranslator{}).Translate(raw)
	if err != nil {
		return nil, fmt.Errorf("translate rss: %w", err)
	}
	out := make([]reconcile.Candidate, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		comments := ""
		if i < len(raw.Items) {
			comments = strings.TrimSpace(raw.Items[i].Comments)
		}
		out = append(out, candidateFromItem(item, comments))
	}
	return out, nil
}

func candidateFromItem(item *gofeed.Item, comments string) reconcile.Candidate {
	c := reconcile.Candidate{
		GUID:         strings.TrimSpace(item.GUID),
		Link:         strings.TrimSpace(item.Link),
		Title:        strings.TrimSpace(item.Title),
		Creator:      itemAuthor(item),
		Description:  CleanHTML(item.Description),
		Content:      CleanHTML(item.Content),
		CommentsLink: comments,
		PublishedAt:  itemTime(item),
	}
	for _, cat := range item.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			c.Categories = append(c.Categories, cat)
		}
	}
	return c
}

func itemAuthor(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	if item.Author != nil {
		return strings.TrimSpace(item.Author.Name)
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return strings.TrimSpace(item.DublinCoreExt.Creator[0])
	}
	return ""
}

func itemTime(item *gofeed.Item) *time.Time {
	for _, t := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if t != nil && !t.IsZero() {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
