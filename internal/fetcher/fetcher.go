package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// Get fetches the URL with extra headers and returns the full body.
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)

	// PostForm submits a url-encoded form and returns the full body.
	PostForm(ctx context.Context, url string, form url.Values, header http.Header) ([]byte, error)
}
