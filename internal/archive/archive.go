// Package archive keeps a content-addressed copy of fetched pages.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/hash/sha256"
	"github.com/JakeFAU/feedsync/internal/reconcile"
	"github.com/JakeFAU/feedsync/internal/storage"
)

const htmlContentType = "text/html; charset=utf-8"

// Manifest is written next to every archived body.
type Manifest struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
	SHA256     string    `json:"sha256"`
	Bytes      int       `json:"bytes"`
}

// Fetcher wraps a PageFetcher and stores every successful response body. Archive
// failures are logged and never fail the fetch.
type Fetcher struct {
	next   reconcile.PageFetcher
	store  storage.BlobStore
	hasher sha256.Hasher
	prefix string
	logger *zap.Logger
}

var _ reconcile.PageFetcher = (*Fetcher)(nil)

// New returns an archiving Fetcher. prefix is prepended to every object path.
func New(next reconcile.PageFetcher, store storage.BlobStore, prefix string, logger *zap.Logger) (*Fetcher, error) {
	if next == nil {
		return nil, errors.New("archive: fetcher is required")
	}
	if store == nil {
		return nil, errors.New("archive: blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Fetcher{
		next:   next,
		store:  store,
		hasher: sha256.New(),
		prefix: prefix,
		logger: logger.Named("archive"),
	}, nil
}

// Fetch delegates to the wrapped fetcher and archives the body on success.
func (f *Fetcher) Fetch(ctx context.Context, url string) (reconcile.Page, error) {
	page, err := f.next.Fetch(ctx, url)
	if err != nil {
		return page, err //nolint:wrapcheck // fetch errors pass through untouched
	}
	if len(page.Body) == 0 {
		return page, nil
	}
	if uri, err := f.Store(ctx, page); err != nil {
		f.logger.Warn("archive page failed", zap.String("url", url), zap.Error(err))
	} else if uri != "" {
		f.logger.Debug("page archived", zap.String("url", url), zap.String("uri", uri))
	}
	return page, nil
}

// Store writes the page body and its manifest unless an identical body is already
// archived. It returns the body URI, or "" when the body was already present.
func (f *Fetcher) Store(ctx context.Context, page reconcile.Page) (string, error) {
	path := f.ObjectPath(page.Body)
	exists, err := f.store.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("check archive object: %w", err)
	}
	if exists {
		return "", nil
	}

	uri, err := f.store.PutObject(ctx, path, htmlContentType, bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("put archive object: %w", err)
	}

	manifest, err := json.Marshal(Manifest{
		URL:        page.URL,
		StatusCode: page.StatusCode,
		FetchedAt:  page.FetchedAt,
		SHA256:     f.hasher.Hash(page.Body),
		Bytes:      len(page.Body),
	})
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := f.store.PutObject(ctx, manifestPath(path), "application/json", bytes.NewReader(manifest)); err != nil {
		return "", fmt.Errorf("put archive manifest: %w", err)
	}
	return uri, nil
}

// ObjectPath is the content-addressed path of body.
func (f *Fetcher) ObjectPath(body []byte) string {
	return f.prefix + f.hasher.ShardedPath(body, ".html")
}

func manifestPath(objectPath string) string {
	return strings.TrimSuffix(objectPath, ".html") + ".json"
}
