// Package fetcher downloads tender sources over HTTP and FTP and parses the
// row-oriented formats they publish (CSV, XML, JSON, XLSX, ZIP).
package fetcher

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Get fetches the URL and returns the response whatever its status.
	// Only transport failures are returned as errors.
	Get(ctx context.Context, url string) (*Response, error)

	// Download fetches the URL and returns the body of a 200 response.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MediaType returns the lower-cased content type without parameters.
func (r *Response) MediaType() string {
	mt, _, _ := strings.Cut(r.ContentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
