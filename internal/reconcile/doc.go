// Package reconcile keeps a local article store in step with a remote publishing
// site. A run compares the site's sitemap with the store, crawls the paginated feed
// when the store is behind, and backfills any sitemap URL that is still missing by
// fetching the article page directly.
//
// The package owns the sync flow only. Fetching, extraction, persistence and pacing
// are collaborators supplied by the caller through the interfaces in interfaces.go.
package reconcile
