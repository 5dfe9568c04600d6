package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedsync/internal/archive"
	"github.com/JakeFAU/feedsync/internal/reconcile"
	"github.com/JakeFAU/feedsync/internal/storage/memory"
)

type stubFetcher struct {
	pages map[string]reconcile.Page
	err   error
}

func (s stubFetcher) Fetch(_ context.Context, url string) (reconcile.Page, error) {
	if s.err != nil {
		return reconcile.Page{}, s.err
	}
	return s.pages[url], nil
}

type failingStore struct {
	*memory.BlobStore
}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket not found")
}

const pageURL = "https://ludepress.com/a/"

func fixture() stubFetcher {
	return stubFetcher{pages: map[string]reconcile.Page{
		pageURL: {
			URL:        pageURL,
			StatusCode: 200,
			Body:       []byte("<html><body>正文</body></html>"),
			FetchedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
}

func TestFetchArchivesBodyAndManifest(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	f, err := archive.New(fixture(), blobs, "/raw/", nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)

	path := f.ObjectPath(page.Body)
	assert.True(t, strings.HasPrefix(path, "raw/"), path)
	body, ok := blobs.Object(path)
	require.True(t, ok)
	assert.Equal(t, page.Body, body)

	raw, ok := blobs.Object(strings.TrimSuffix(path, ".html") + ".json")
	require.True(t, ok)
	var m archive.Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, pageURL, m.URL)
	assert.Equal(t, len(page.Body), m.Bytes)
	assert.Len(t, m.SHA256, 64)
}

func TestFetchSkipsDuplicateBodies(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	f, err := archive.New(fixture(), blobs, "", nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, 2, blobs.Len())

	uri, err := f.Store(context.Background(), fixture().pages[pageURL])
	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestFetchIgnoresArchiveFailure(t *testing.T) {
	t.Parallel()

	f, err := archive.New(fixture(), failingStore{memory.NewBlobStore()}, "", nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.NotEmpty(t, page.Body)
}

func TestFetchPassesThroughErrors(t *testing.T) {
	t.Parallel()

	fetchErr := &reconcile.FetchError{Kind: reconcile.FetchHTTPStatus, URL: pageURL, StatusCode: 404}
	blobs := memory.NewBlobStore()
	f, err := archive.New(stubFetcher{err: fetchErr}, blobs, "", nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), pageURL)
	assert.Equal(t, reconcile.FetchHTTPStatus, reconcile.FetchErrorKindOf(err))
	assert.Zero(t, blobs.Len())
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := archive.New(nil, memory.NewBlobStore(), "", nil)
	require.Error(t, err)
	_, err = archive.New(fixture(), nil, "", nil)
	require.Error(t, err)
}
