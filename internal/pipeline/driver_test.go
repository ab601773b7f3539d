package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sevketarisu/quic-streaming/internal/abr"
	"github.com/sevketarisu/quic-streaming/internal/buffer"
	"github.com/sevketarisu/quic-streaming/internal/mpd"
	"github.com/sevketarisu/quic-streaming/internal/recorder"
	"github.com/sevketarisu/quic-streaming/internal/transport"
)

const testSegDuration = 0.05

func sixSegmentReps() []mpd.Representation {
	urls := []string{"seg-1.m4s", "seg-2.m4s", "seg-3.m4s", "seg-4.m4s", "seg-5.m4s", "seg-6.m4s"}
	sizes := []int64{1000, 1000, 1000, 1000, 1000, 1000}
	return []mpd.Representation{
		{Bandwidth: 500_000, InitURL: "init-$Bandwidth$.mp4", MediaURLs: urls, Sizes: sizes, SegmentDuration: testSegDuration},
		{Bandwidth: 1_000_000, InitURL: "init-$Bandwidth$.mp4", MediaURLs: urls, Sizes: sizes, SegmentDuration: testSegDuration},
		{Bandwidth: 2_000_000, InitURL: "init-$Bandwidth$.mp4", MediaURLs: urls, Sizes: sizes, SegmentDuration: testSegDuration},
	}
}

// fakeFetcher is an in-memory Fetcher: it fails exactly once for any URL
// listed in failOnce, then always succeeds with a fixed size, and tracks
// how many times Reopen was called.
type fakeFetcher struct {
	mu          sync.Mutex
	failOnce    map[string]bool
	attempts    map[string]int
	reopenCount int
	closed      bool
}

func newFakeFetcher(failOnce ...string) *fakeFetcher {
	f := &fakeFetcher{failOnce: map[string]bool{}, attempts: map[string]int{}}
	for _, u := range failOnce {
		f.failOnce[u] = true
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, segURL, downloadDir string) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[segURL]++
	if f.failOnce[segURL] && f.attempts[segURL] == 1 {
		return -1, "", &transport.FaultError{URL: segURL, Reason: "simulated crash"}
	}
	return 1000, downloadDir + "/" + basename(segURL), nil
}

func (f *fakeFetcher) Reopen(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopenCount++
	return nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestDriver(t *testing.T, fetcher transport.Fetcher, cfg Config) (*Driver, *recorder.Recorder) {
	t.Helper()
	idx, err := mpd.BuildIndex(sixSegmentReps())
	require.NoError(t, err)

	clock := buffer.NewPlaybackClock()
	buf := buffer.NewPlaybackBuffer(clock, nil)
	rec := recorder.NewRecorder("", nil)
	policy := abr.NewBasicPolicy()

	d := NewDriver(idx, policy, fetcher, buf, clock, rec, nil, cfg)
	return d, rec
}

func TestDriverOrderingAndBitrateMembership(t *testing.T) {
	fetcher := newFakeFetcher()
	d, rec := newTestDriver(t, fetcher, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	records := rec.Records()
	require.Len(t, records, 7) // init + 6 media segments

	validBitrates := map[uint64]bool{500_000: true, 1_000_000: true, 2_000_000: true}
	for _, r := range records {
		require.True(t, validBitrates[r.Bitrate])
	}
	require.True(t, fetcher.closed)
}

func TestDriverRecoveryIdempotence(t *testing.T) {
	fetcher := newFakeFetcher("seg-3.m4s")
	d, rec := newTestDriver(t, fetcher, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	records := rec.Records()
	require.Len(t, records, 7)

	var totalBytes int64
	for _, r := range records {
		totalBytes += r.Bytes
	}
	require.Equal(t, int64(7*1000), totalBytes)
	require.GreaterOrEqual(t, fetcher.reopenCount, 1)
}

func TestDriverHelperProcessCrashMidStream(t *testing.T) {
	fetcher := newFakeFetcher("seg-3.m4s")
	d, rec := newTestDriver(t, fetcher, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	require.Equal(t, 1, fetcher.reopenCount)

	found := false
	for _, r := range rec.Records() {
		if r.URLBasename == "seg-3.m4s" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDriverSeekForwardJump(t *testing.T) {
	fetcher := newFakeFetcher()
	scenario := JumpScenario{{AtSeconds: 0, ToSeconds: 0.2}}
	d, rec := newTestDriver(t, fetcher, Config{Scenario: scenario})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	require.Equal(t, 1, d.jumpCursor)
	require.NotEmpty(t, rec.Records())
}

func TestDriverFatalFetchErrorAbortsRun(t *testing.T) {
	fetcher := &fatalFetcher{}
	d, _ := newTestDriver(t, fetcher, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := d.Run(ctx)
	require.Error(t, err)
}

type fatalFetcher struct{}

func (f *fatalFetcher) Fetch(ctx context.Context, segURL, downloadDir string) (int64, string, error) {
	return -1, "", &transport.FatalError{URL: segURL, Reason: "not found"}
}
func (f *fatalFetcher) Reopen(ctx context.Context) error { return nil }
func (f *fatalFetcher) Close() error                     { return nil }
