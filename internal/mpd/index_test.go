package mpd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func threeReps() []Representation {
	return []Representation{
		{
			Bandwidth:       500_000,
			InitURL:         "init-$Bandwidth$.mp4",
			MediaURLs:       []string{"seg-1.m4s", "seg-2.m4s"},
			Sizes:           []int64{100, 110},
			SegmentDuration: 4,
			StartNumber:     0,
		},
		{
			Bandwidth:       1_000_000,
			InitURL:         "init-$Bandwidth$.mp4",
			MediaURLs:       []string{"seg-1.m4s", "seg-2.m4s"},
			Sizes:           []int64{200, 210},
			SegmentDuration: 4,
			StartNumber:     0,
		},
	}
}

func TestBuildIndexSubstitutesBandwidth(t *testing.T) {
	idx, err := BuildIndex(threeReps())
	require.NoError(t, err)

	u, ok := idx.URLAt(0, 500_000)
	require.True(t, ok)
	require.Equal(t, "init-500000.mp4", u)

	u, ok = idx.URLAt(0, 1_000_000)
	require.True(t, ok)
	require.Equal(t, "init-1000000.mp4", u)
}

func TestBuildIndexSegmentNumbering(t *testing.T) {
	idx, err := BuildIndex(threeReps())
	require.NoError(t, err)

	require.Equal(t, 0, idx.StartNumber())
	require.Equal(t, 3, idx.SegmentCount())

	u, ok := idx.URLAt(1, 500_000)
	require.True(t, ok)
	require.Equal(t, "seg-1.m4s", u)

	u, ok = idx.URLAt(2, 1_000_000)
	require.True(t, ok)
	require.Equal(t, "seg-2.m4s", u)

	_, ok = idx.URLAt(3, 500_000)
	require.False(t, ok)
}

func TestSegmentSizesAt(t *testing.T) {
	idx, err := BuildIndex(threeReps())
	require.NoError(t, err)

	sizes := idx.SegmentSizesAt(1)
	require.Equal(t, int64(100), sizes[500_000])
	require.Equal(t, int64(200), sizes[1_000_000])
}

func TestAverageSegmentSizesExcludesInit(t *testing.T) {
	idx, err := BuildIndex(threeReps())
	require.NoError(t, err)

	avg := idx.AverageSegmentSizes()
	require.Equal(t, int64(105), avg[500_000])
	require.Equal(t, int64(205), avg[1_000_000])
}

func TestAverageSegmentSizesUnknownBitrateIsZero(t *testing.T) {
	idx, err := BuildIndex(threeReps())
	require.NoError(t, err)

	avg := idx.AverageSegmentSizes()
	require.Equal(t, int64(0), avg[2_000_000])
}

func TestBuildIndexRejectsMismatchedLengths(t *testing.T) {
	reps := threeReps()
	reps[1].MediaURLs = reps[1].MediaURLs[:1]
	_, err := BuildIndex(reps)
	require.Error(t, err)
}

func TestBitratesSortedAscending(t *testing.T) {
	idx, err := BuildIndex(threeReps())
	require.NoError(t, err)
	require.Equal(t, []uint64{500_000, 1_000_000}, idx.Bitrates())
}
