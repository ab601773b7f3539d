// Package transport implements the download backends a pipeline driver can
// swap between at startup: a plain HTTP client and two helper-process
// backends (curl-like, QUIC-like) driven over a line protocol on stdin/stdout.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransportFault is wrapped by a FaultError to mark a recoverable
// condition: the caller should Reopen the fetcher and retry the same
// segment, not abort the run.
var ErrTransportFault = errors.New("transport fault")

// FaultError reports a recoverable fetch failure (helper-process crash,
// "Failed to connect", a malformed size token). Size -1 on a Fetch return
// signals the same condition for callers that only inspect the size.
type FaultError struct {
	URL    string
	Reason string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("transport fault fetching %s: %s", e.URL, e.Reason)
}

func (e *FaultError) Unwrap() error { return ErrTransportFault }

// FatalError reports a permanent failure: an HTTP 4xx/5xx, a malformed URL,
// or any other condition a reopen-and-retry cannot fix. The pipeline driver
// must abort the run on a FatalError.
type FatalError struct {
	URL    string
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal fetch error for %s: %s", e.URL, e.Reason)
}

// Fetcher downloads one segment at a time from a backend-specific source.
// Fetch returns the downloaded size in bytes and the local file path on
// success. A FaultError (or size -1, for callers that only check the size)
// means the caller should Reopen and retry; a FatalError means abort.
type Fetcher interface {
	Fetch(ctx context.Context, segURL, downloadDir string) (int64, string, error)
	Reopen(ctx context.Context) error
	Close() error
}

// IsFault reports whether err (or anything it wraps) is a recoverable
// transport fault.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe) || errors.Is(err, ErrTransportFault)
}

// IsFatal reports whether err is a permanent transport failure.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
