package reconcile

// DefaultItemsPerPage approximates how many entries one feed page carries. It only
// sizes the page budget; an empty page still ends the crawl.
const DefaultItemsPerPage = 10

// Planner decides whether the feed needs crawling and how many pages to read.
type Planner struct {
	ItemsPerPage int
	// PageOverride, when positive, replaces the computed page budget.
	PageOverride int
}

// Plan compares the sitemap and store counts.
func (p Planner) Plan(sitemapCount, storeCount int) Plan {
	if storeCount >= sitemapCount {
		return Plan{}
	}
	missing := sitemapCount - storeCount
	if p.PageOverride > 0 {
		return Plan{NeedCrawl: true, PageBudget: p.PageOverride, MissingEstimate: missing}
	}
	perPage := p.ItemsPerPage
	if perPage <= 0 {
		perPage = DefaultItemsPerPage
	}
	return Plan{
		NeedCrawl:       true,
		PageBudget:      (missing + perPage - 1) / perPage,
		MissingEstimate: missing,
	}
}
