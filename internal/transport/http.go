package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
)

// httpFetcher is the built-in backend (B1): a plain net/http client, no
// child process involved. Reopen is a no-op since there is no subprocess to
// restart.
type httpFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns the built-in HTTP transport backend.
func NewHTTPFetcher() Fetcher {
	return &httpFetcher{client: http.DefaultClient}
}

func (f *httpFetcher) Fetch(ctx context.Context, segURL, downloadDir string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segURL, nil)
	if err != nil {
		return -1, "", &FatalError{URL: segURL, Reason: err.Error()}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return -1, "", &FatalError{URL: segURL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return -1, "", &FatalError{URL: segURL, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return -1, "", &FatalError{URL: segURL, Reason: err.Error()}
	}
	outPath := path.Join(downloadDir, basename(segURL))
	ofh, err := os.Create(outPath)
	if err != nil {
		return -1, "", &FatalError{URL: segURL, Reason: err.Error()}
	}
	defer ofh.Close()

	buf := make([]byte, 1024)
	n, err := io.CopyBuffer(ofh, resp.Body, buf)
	if err != nil {
		return -1, "", &FatalError{URL: segURL, Reason: err.Error()}
	}
	return n, outPath, nil
}

func (f *httpFetcher) Reopen(ctx context.Context) error { return nil }

func (f *httpFetcher) Close() error { return nil }

func basename(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx == -1 {
		return u
	}
	return u[idx+1:]
}
