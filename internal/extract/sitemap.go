package extract

import (
	"encoding/xml"
	"fmt"
	"strings"
)

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlLoc `xml:"url"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []xmlLoc `xml:"sitemap"`
}

type xmlLoc struct {
	Loc string `xml:"loc"`
}

// ParseIndex returns the <sitemap><loc> entries of a sitemap index in document order.
func (e *Extractor) ParseIndex(body []byte) ([]string, error) {
	var index xmlSitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}
	return locs(index.Sitemaps), nil
}

// ParseURLSet returns the <url><loc> entries of a sitemap in document order.
func (e *Extractor) ParseURLSet(body []byte) ([]string, error) {
	var set xmlURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return locs(set.URLs), nil
}

func locs(entries []xmlLoc) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}
