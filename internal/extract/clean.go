package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p, br, div, li, ul, ol, h1, h2, h3, h4, h5, h6, blockquote, pre, tr, section, article"

// CleanHTML returns the readable text of an HTML fragment. Scripts and styles are
// dropped, block elements become line breaks, and runs of blank space collapse.
func CleanHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return normalizeText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeText(fragment)
	}
	return selectionText(doc.Selection, "script, style, iframe")
}

// selectionText removes strip from sel and returns its normalized text.
func selectionText(sel *goquery.Selection, strip string) string {
	if strip != "" {
		sel.Find(strip).Remove()
	}
	sel.Find(blockElements).AfterHtml("\n")
	return normalizeText(sel.Text())
}

// normalizeText trims each line, collapses inner whitespace and drops empty lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
