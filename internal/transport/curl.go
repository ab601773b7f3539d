package transport

import (
	"log/slog"
	"time"
)

// curlReopenSettle mirrors the original client's 0.5s wait between killing
// and respawning the curl-backed helper process.
const curlReopenSettle = 500 * time.Millisecond

// NewCurlFetcher returns the generic HTTP helper-process backend (B2): a
// long-lived child process that takes plain https:// URLs on stdin, one per
// line, with no rewriting.
func NewCurlFetcher(binaryPath, processName string, logger *slog.Logger) Fetcher {
	return newProcessFetcher(binaryPath, nil, processName, curlReopenSettle, nil, logger)
}
