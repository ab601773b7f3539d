package transport

import (
	"log/slog"
	"net/url"
	"time"
)

// quicReopenSettle mirrors the QUIC helper's own connection timeout: the
// original client waits a full 5s for a respawned QUIC process to be ready
// to accept a new connection, far longer than the curl backend's settle time.
const quicReopenSettle = 5 * time.Second

// quicOriginPlaceholder is the scheme+host the QUIC helper process expects
// on its line protocol in place of the origin host of a segment URL.
const quicOriginPlaceholder = "https://quic_server"

// NewQUICFetcher returns the QUIC helper-process backend (B3). originHost is
// the scheme+host prefix (e.g. "https://example.com") of the segment URLs
// that are rewritten to quicOriginPlaceholder before being sent to the
// helper process. URLs on any other host, and every URL when originHost is
// empty, are passed to the child unchanged.
func NewQUICFetcher(binaryPath, processName, originHost string, logger *slog.Logger) Fetcher {
	rewrite := func(u string) string {
		return rewriteToQUICOrigin(u, originHost)
	}
	return newProcessFetcher(binaryPath, nil, processName, quicReopenSettle, rewrite, logger)
}

func rewriteToQUICOrigin(segURL, originHost string) string {
	if originHost == "" {
		return segURL
	}
	parsed, err := url.Parse(segURL)
	if err != nil {
		return segURL
	}
	originParsed, err := url.Parse(originHost)
	if err != nil || parsed.Host != originParsed.Host {
		return segURL
	}
	rewritten := *parsed
	rewritten.Scheme = "https"
	rewritten.Host = "quic_server"
	return rewritten.String()
}
