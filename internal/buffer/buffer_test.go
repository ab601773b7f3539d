package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteNeverBlocksAndIncrementsQsize(t *testing.T) {
	b := NewPlaybackBuffer(NewPlaybackClock(), nil)
	for i := 0; i < 5; i++ {
		b.Write(&SegmentArtifact{SegmentNumber: i})
	}
	require.Equal(t, 5, b.Qsize())
}

func TestConsumerDrainsAtSegmentDuration(t *testing.T) {
	b := NewPlaybackBuffer(NewPlaybackClock(), nil)
	b.Write(&SegmentArtifact{SegmentNumber: 1})
	b.Write(&SegmentArtifact{SegmentNumber: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool { return b.Qsize() == 0 }, time.Second, 2*time.Millisecond)
}

func TestCloseTransitionsToExitStateAfterDrain(t *testing.T) {
	b := NewPlaybackBuffer(NewPlaybackClock(), nil)
	b.Write(&SegmentArtifact{SegmentNumber: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx, 5*time.Millisecond)
	b.Close()

	require.Eventually(t, func() bool { return b.State().IsExitState() }, time.Second, 2*time.Millisecond)
}

func TestJumpFlushesQueue(t *testing.T) {
	b := NewPlaybackBuffer(NewPlaybackClock(), nil)
	b.Write(&SegmentArtifact{SegmentNumber: 1})
	b.Write(&SegmentArtifact{SegmentNumber: 2})
	require.Equal(t, 2, b.Qsize())

	b.Jump(40, 10, 500_000)
	require.Equal(t, 0, b.Qsize())
}

func TestJumpIsBarrierAgainstStalePreJumpSegments(t *testing.T) {
	b := NewPlaybackBuffer(NewPlaybackClock(), nil)
	b.Write(&SegmentArtifact{SegmentNumber: 3})
	b.Jump(40, 10, 500_000)
	b.Write(&SegmentArtifact{SegmentNumber: 10})

	require.Equal(t, 1, b.Qsize())
}
