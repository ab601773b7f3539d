// Package pipeline sequences bitrate decisions, segment fetches, and buffer
// writes into the seven-step loop that drives one playback run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sevketarisu/quic-streaming/internal/abr"
	"github.com/sevketarisu/quic-streaming/internal/buffer"
	"github.com/sevketarisu/quic-streaming/internal/mpd"
	"github.com/sevketarisu/quic-streaming/internal/recorder"
	"github.com/sevketarisu/quic-streaming/internal/transport"
)

// Config is the immutable, per-run set of driver parameters: a plain
// struct threaded through the driver rather than mutable process-wide
// state.
type Config struct {
	DownloadDir       string
	SegmentLimit      int // 0 = unbounded
	MaxReopenAttempts int // 0 = unbounded
	Scenario          JumpScenario
}

// Driver sequences one playback run: consult the adaptation engine, fetch
// the chosen segment, hand it to the playback buffer, record it, and
// service any pending jump, per segment, until the index is exhausted.
type Driver struct {
	Index    *mpd.Index
	Policy   abr.Policy
	Hist     *abr.History
	Fetcher  transport.Fetcher
	Buffer   *buffer.PlaybackBuffer
	Clock    *buffer.PlaybackClock
	Recorder *recorder.Recorder
	Logger   *slog.Logger
	Config   Config

	jumpCursor int
}

// NewDriver wires together one run's collaborators.
func NewDriver(idx *mpd.Index, policy abr.Policy, fetcher transport.Fetcher, buf *buffer.PlaybackBuffer, clock *buffer.PlaybackClock, rec *recorder.Recorder, logger *slog.Logger, cfg Config) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Index:    idx,
		Policy:   policy,
		Hist:     abr.NewHistory(),
		Fetcher:  fetcher,
		Buffer:   buf,
		Clock:    clock,
		Recorder: rec,
		Logger:   logger,
		Config:   cfg,
	}
}

// Run executes the pipeline until the index is exhausted, the segment
// limit is reached, a fatal fetch error occurs, or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	segDuration := d.Index.SegmentDuration()
	d.Clock.Start()
	d.Buffer.Start(ctx, time.Duration(segDuration*float64(time.Second)))

	avgSizes := d.Index.AverageSegmentSizes()
	bitrates := d.Index.Bitrates()

	firstSeg := d.Index.StartNumber()
	lastSeg := firstSeg + d.Index.SegmentCount() - 1
	segNum := firstSeg
	fetched := 0

	for segNum <= lastSeg {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Config.SegmentLimit > 0 && fetched >= d.Config.SegmentLimit {
			break
		}

		sizesAtNext := d.Index.SegmentSizesAt(segNum + 1)
		bitrate, delay := d.Policy.Decide(abr.DecisionInput{
			SegmentNumber:   segNum,
			StartNumber:     firstSeg,
			Bitrates:        bitrates,
			Buffer:          d.Buffer,
			SizesAtNext:     sizesAtNext,
			AverageSizes:    avgSizes,
			SegmentDuration: segDuration,
		}, d.Hist)

		if delay > 0 {
			if err := d.sleepDelay(ctx, delay, segDuration); err != nil {
				return err
			}
		}

		segURL, ok := d.Index.URLAt(segNum, bitrate)
		if !ok {
			return fmt.Errorf("pipeline: no URL for segment %d at bitrate %d", segNum, bitrate)
		}

		size, localPath, dlDur, err := d.fetchWithRetry(ctx, segURL)
		if err != nil {
			return err
		}

		d.Buffer.Write(&buffer.SegmentArtifact{
			PlaybackLength: segDuration,
			Size:           size,
			Bitrate:        bitrate,
			LocalPath:      localPath,
			SourceURL:      segURL,
			SegmentNumber:  segNum,
		})
		d.Hist.Record(bitrate, size, dlDur)
		if d.Recorder != nil {
			d.Recorder.Record(basename(segURL), bitrate, size, dlDur.Seconds(), d.Buffer.Qsize())
		}
		fetched++

		d.maybeJump(&segNum, segDuration)

		segNum++
	}

	d.Buffer.Close()
	d.waitForExit(ctx)
	return d.Fetcher.Close()
}

// fetchWithRetry retries a recoverable transport fault by reopening the
// fetcher, bounded by Config.MaxReopenAttempts when set; a fatal error
// aborts the run immediately.
func (d *Driver) fetchWithRetry(ctx context.Context, segURL string) (int64, string, time.Duration, error) {
	attempts := 0
	for {
		start := time.Now()
		size, localPath, err := d.Fetcher.Fetch(ctx, segURL, d.Config.DownloadDir)
		dur := time.Since(start)
		if err == nil {
			return size, localPath, dur, nil
		}
		if transport.IsFatal(err) {
			return 0, "", 0, fmt.Errorf("pipeline: fatal fetch error: %w", err)
		}
		attempts++
		if d.Config.MaxReopenAttempts > 0 && attempts >= d.Config.MaxReopenAttempts {
			return 0, "", 0, fmt.Errorf("pipeline: exceeded reopen attempts fetching %s: %w", segURL, err)
		}
		d.Logger.Warn("transport fault, reopening", "url", segURL, "error", err, "attempt", attempts)
		if rerr := d.Fetcher.Reopen(ctx); rerr != nil {
			return 0, "", 0, fmt.Errorf("pipeline: reopen failed: %w", rerr)
		}
	}
}

// maybeJump executes every scheduled jump whose AtSeconds has been reached,
// treating buffer.Jump as the ordering barrier that must complete before any
// post-jump segment is enqueued.
func (d *Driver) maybeJump(segNum *int, segDuration float64) {
	for d.jumpCursor < len(d.Config.Scenario) {
		jp := d.Config.Scenario[d.jumpCursor]
		now := d.Clock.Now().Seconds()
		if jp.AtSeconds > now {
			return
		}

		d.Buffer.Jump(jp.AtSeconds, jp.ToSeconds, d.Hist.CurrentBitrate)

		if jp.ToSeconds > now {
			d.Clock.Backward(time.Duration((jp.ToSeconds - now) * float64(time.Second)))
		} else {
			d.Clock.Forward(time.Duration((now - jp.ToSeconds) * float64(time.Second)))
		}
		d.Hist.OnJump()

		*segNum = int(jp.ToSeconds/segDuration) - 1
		d.jumpCursor++
	}
}

// sleepDelay waits delaySegments*segDuration seconds in slices no longer
// than one second, so the driver stays responsive to context cancellation.
func (d *Driver) sleepDelay(ctx context.Context, delaySegments, segDuration float64) error {
	remaining := time.Duration(delaySegments * segDuration * float64(time.Second))
	for remaining > 0 {
		slice := remaining
		if slice > time.Second {
			slice = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(slice):
		}
		remaining -= slice
	}
	return nil
}

// waitForExit blocks until the playback buffer reaches a terminal state or
// ctx is cancelled; the final step before transport shutdown.
func (d *Driver) waitForExit(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.Buffer.State().IsExitState() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func basename(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx == -1 {
		return u
	}
	return u[idx+1:]
}
