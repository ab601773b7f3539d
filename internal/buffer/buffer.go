package buffer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SegmentArtifact is the result of a successful segment fetch, ready to be
// queued for playback.
type SegmentArtifact struct {
	PlaybackLength float64 // seconds
	Size           int64   // bytes
	Bitrate        uint64
	LocalPath      string
	SourceURL      string
	SegmentNumber  int
}

// PlaybackState is the lifecycle phase of the buffer's consumer, used only
// to tell the pipeline driver when it is safe to stop waiting and shut the
// transport down.
type PlaybackState int32

const (
	// StateActive is the normal operating state: the consumer is draining
	// segments (or idling on an empty queue waiting for more).
	StateActive PlaybackState = iota
	// StateClosed is the sole exit state: either Close was called and every
	// queued artifact has been drained, or the consumer's context was
	// cancelled.
	StateClosed
)

// IsExitState reports whether s is a terminal phase the driver may stop
// waiting on.
func (s PlaybackState) IsExitState() bool { return s == StateClosed }

// PlaybackBuffer is a FIFO of SegmentArtifact drained by a concurrent
// consumer goroutine that models real-time playback. Write never blocks the
// producer: backpressure is a policy decision made by the adaptation engine
// and pipeline driver by polling Qsize, never an actual channel stall.
type PlaybackBuffer struct {
	mu      sync.Mutex
	queue   []*SegmentArtifact
	closed  bool
	qsize   atomic.Int64
	state   atomic.Int32
	clock   *PlaybackClock
	logger  *slog.Logger
	started atomic.Bool
}

// NewPlaybackBuffer creates an empty buffer that keeps a reference to clock,
// the clock the pipeline driver starts and shifts. The buffer itself neither
// reads nor advances the clock.
func NewPlaybackBuffer(clock *PlaybackClock, logger *slog.Logger) *PlaybackBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackBuffer{clock: clock, logger: logger}
}

// Write enqueues an artifact. Always succeeds immediately.
func (b *PlaybackBuffer) Write(a *SegmentArtifact) {
	b.mu.Lock()
	b.queue = append(b.queue, a)
	b.mu.Unlock()
	b.qsize.Add(1)
}

// Qsize returns the current occupancy in whole segments.
func (b *PlaybackBuffer) Qsize() int {
	return int(b.qsize.Load())
}

// State returns the current lifecycle phase.
func (b *PlaybackBuffer) State() PlaybackState {
	return PlaybackState(b.state.Load())
}

// Close signals that no further segments will be written; once the queue
// drains, the consumer transitions to StateClosed.
func (b *PlaybackBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Jump discards every buffered segment invalidated by a seek and resets
// occupancy. It is a barrier: once Jump returns, no pre-jump segment is ever
// delivered to the consumer.
func (b *PlaybackBuffer) Jump(fromSeconds, toSeconds float64, currentBitrate uint64) {
	b.mu.Lock()
	dropped := len(b.queue)
	b.queue = nil
	b.mu.Unlock()
	b.qsize.Store(0)
	b.logger.Debug("buffer jump: flushed queue",
		"from_s", fromSeconds, "to_s", toSeconds, "bitrate", currentBitrate, "dropped", dropped)
}

// Start launches the consumer goroutine, which drains one segment every
// segmentDuration, and returns immediately. The consumer does not pause or
// advance the playback clock: the clock runs on wall time whether or not the
// buffer holds segments. The goroutine ends once the buffer is closed and
// fully drained, or ctx is cancelled.
func (b *PlaybackBuffer) Start(ctx context.Context, segmentDuration time.Duration) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.consume(ctx, segmentDuration)
}

func (b *PlaybackBuffer) consume(ctx context.Context, segmentDuration time.Duration) {
	if segmentDuration <= 0 {
		segmentDuration = time.Second
	}
	ticker := time.NewTicker(segmentDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.state.Store(int32(StateClosed))
			return
		case <-ticker.C:
			if b.drainOne() {
				continue
			}
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if closed {
				b.state.Store(int32(StateClosed))
				return
			}
		}
	}
}

// drainOne pops the oldest artifact, if any, and reports whether one was
// available.
func (b *PlaybackBuffer) drainOne() bool {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	b.queue = b.queue[1:]
	b.mu.Unlock()
	b.qsize.Add(-1)
	return true
}
