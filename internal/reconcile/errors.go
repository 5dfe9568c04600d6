package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks store failures that survived every retry. A run that
	// hits one aborts instead of skipping the article.
	ErrStoreUnavailable = errors.New("article store unavailable")
	// ErrSitemapIndexUnavailable is returned when the root sitemap index cannot be read.
	ErrSitemapIndexUnavailable = errors.New("sitemap index unavailable")
	// ErrEmptyPage is returned by the backfill worker when a page yields no title and
	// no content.
	ErrEmptyPage = errors.New("page has no article content")
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http"
	FetchTransport  FetchErrorKind = "transport"
)

// FetchError is returned by PageFetcher implementations.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf returns the kind of a wrapped FetchError, or "" when err is not one.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
