package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherDownloadsToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("segment-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewHTTPFetcher()
	size, outPath, err := f.Fetch(context.Background(), srv.URL+"/seg-1.m4s", dir)
	require.NoError(t, err)
	require.Equal(t, int64(len("segment-bytes")), size)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "segment-bytes", string(data))
}

func TestHTTPFetcherReturnsFatalOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	_, _, err := f.Fetch(context.Background(), srv.URL+"/missing.m4s", t.TempDir())
	require.Error(t, err)
	require.True(t, IsFatal(err))
}

func TestHTTPFetcherReopenIsNoOp(t *testing.T) {
	f := NewHTTPFetcher()
	require.NoError(t, f.Reopen(context.Background()))
	require.NoError(t, f.Close())
}

// helperScript simulates a line-protocol helper process: it prints "started",
// then for each line read from stdin echoes a deterministic size report,
// except for a URL containing "fault" or "fatal" which triggers the
// matching error token instead.
const helperScript = `
echo started
while IFS= read -r line; do
  case "$line" in
    *fatal*) echo "FATAL: bad request" ;;
    *fault*) echo "ERROR: Failed to connect" ;;
    *) echo "file_size_start:1234:file_size_end" ;;
  esac
done
`

func newTestProcessFetcher(t *testing.T) *processFetcher {
	t.Helper()
	pf := newProcessFetcher("/bin/sh", []string{"-c", helperScript}, "this-process-name-does-not-exist", 10*time.Millisecond, nil, nil)
	require.NoError(t, pf.Start(context.Background()))
	t.Cleanup(func() { _ = pf.Close() })
	return pf
}

func TestProcessFetcherReportsSizeOnSuccess(t *testing.T) {
	pf := newTestProcessFetcher(t)
	size, outPath, err := pf.Fetch(context.Background(), "https://example.com/seg-1.m4s", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, int64(1234), size)
	require.Contains(t, outPath, "seg-1.m4s")
}

func TestProcessFetcherReturnsFaultOnFatalToken(t *testing.T) {
	pf := newTestProcessFetcher(t)
	_, _, err := pf.Fetch(context.Background(), "https://example.com/fatal-seg.m4s", t.TempDir())
	require.Error(t, err)
	require.True(t, IsFault(err))
}

func TestProcessFetcherReturnsFaultOnErrorToken(t *testing.T) {
	pf := newTestProcessFetcher(t)
	_, _, err := pf.Fetch(context.Background(), "https://example.com/fault-seg.m4s", t.TempDir())
	require.Error(t, err)
	require.True(t, IsFault(err))
}

func TestParseSize(t *testing.T) {
	n, err := parseSize("file_size_start:555:file_size_end")
	require.NoError(t, err)
	require.Equal(t, int64(555), n)

	_, err = parseSize("not a size line")
	require.Error(t, err)
}

func TestRewriteToQUICOrigin(t *testing.T) {
	got := rewriteToQUICOrigin("https://example.com/seg-1.m4s", "https://example.com")
	require.Equal(t, "https://quic_server/seg-1.m4s", got)

	unchanged := rewriteToQUICOrigin("https://other.com/seg-1.m4s", "https://example.com")
	require.Equal(t, "https://other.com/seg-1.m4s", unchanged)
}
