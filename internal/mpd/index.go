// Package mpd builds the per-representation segment index that drives the
// adaptive bitrate pipeline from a parsed MPD.
package mpd

import (
	"fmt"
	"strconv"
	"strings"
)

// Representation is one encoding of the asset at a fixed nominal bandwidth.
type Representation struct {
	Bandwidth       uint64
	InitURL         string
	MediaURLs       []string
	Sizes           []int64
	SegmentDuration float64
	StartNumber     int
}

// Index maps segment number -> bitrate -> absolute URL, plus the matching
// byte sizes, across every representation of the asset.
type Index struct {
	urls        map[int]map[uint64]string
	sizes       map[int]map[uint64]int64
	bitrates    []uint64
	startNumber int
	segCount    int
	segDuration float64
}

// BuildIndex substitutes $Bandwidth$ in each representation's init segment,
// prepends it to the media URL list, and assigns contiguous segment numbers
// starting at the representation's start offset.
func BuildIndex(reps []Representation) (*Index, error) {
	if len(reps) == 0 {
		return nil, fmt.Errorf("mpd: no representations")
	}
	idx := &Index{
		urls:        make(map[int]map[uint64]string),
		sizes:       make(map[int]map[uint64]int64),
		startNumber: reps[0].StartNumber,
		segDuration: reps[0].SegmentDuration,
	}
	var wantLen = -1
	for _, rep := range reps {
		if len(rep.MediaURLs) != len(rep.Sizes) {
			return nil, fmt.Errorf("mpd: representation %d has %d media URLs but %d sizes", rep.Bandwidth, len(rep.MediaURLs), len(rep.Sizes))
		}
		if wantLen == -1 {
			wantLen = len(rep.MediaURLs)
		} else if len(rep.MediaURLs) != wantLen {
			return nil, fmt.Errorf("mpd: representation %d has %d media segments, expected %d", rep.Bandwidth, len(rep.MediaURLs), wantLen)
		}
		initURL := substituteBandwidth(rep.InitURL, rep.Bandwidth)
		urls := append([]string{initURL}, rep.MediaURLs...)
		sizes := append([]int64{0}, rep.Sizes...)
		for i, u := range urls {
			segNum := rep.StartNumber + i
			if idx.urls[segNum] == nil {
				idx.urls[segNum] = make(map[uint64]string)
				idx.sizes[segNum] = make(map[uint64]int64)
			}
			idx.urls[segNum][rep.Bandwidth] = u
			idx.sizes[segNum][rep.Bandwidth] = sizes[i]
		}
		idx.bitrates = append(idx.bitrates, rep.Bandwidth)
	}
	idx.segCount = wantLen + 1 // + init segment
	return idx, nil
}

func substituteBandwidth(u string, bandwidth uint64) string {
	return strings.Replace(u, "$Bandwidth$", strconv.FormatUint(bandwidth, 10), 1)
}

// Bitrates returns the representation bandwidths in ascending order.
func (idx *Index) Bitrates() []uint64 {
	out := make([]uint64, len(idx.bitrates))
	copy(out, idx.bitrates)
	sortUint64s(out)
	return out
}

// StartNumber returns the segment number of the initialization segment.
func (idx *Index) StartNumber() int { return idx.startNumber }

// SegmentCount returns the total number of segments, including the
// initialization segment.
func (idx *Index) SegmentCount() int { return idx.segCount }

// SegmentDuration returns the nominal media segment duration in seconds.
func (idx *Index) SegmentDuration() float64 { return idx.segDuration }

// URLAt resolves the absolute URL for a segment number and bitrate.
func (idx *Index) URLAt(segNum int, bitrate uint64) (string, bool) {
	byBitrate, ok := idx.urls[segNum]
	if !ok {
		return "", false
	}
	u, ok := byBitrate[bitrate]
	return u, ok
}

// SegmentSizesAt returns the byte size of the given segment number for every
// bitrate.
func (idx *Index) SegmentSizesAt(segNum int) map[uint64]int64 {
	out := make(map[uint64]int64, len(idx.bitrates))
	for _, br := range idx.bitrates {
		out[br] = 0
	}
	if sizes, ok := idx.sizes[segNum]; ok {
		for br, sz := range sizes {
			out[br] = sz
		}
	}
	return out
}

// AverageSegmentSizes returns the arithmetic mean segment size per bitrate
// across all media segments (the init segment is excluded). Bitrates with no
// samples return 0.
func (idx *Index) AverageSegmentSizes() map[uint64]int64 {
	sums := make(map[uint64]int64, len(idx.bitrates))
	counts := make(map[uint64]int, len(idx.bitrates))
	for segNum, byBitrate := range idx.sizes {
		if segNum == idx.startNumber {
			continue // init segment carries no meaningful media size
		}
		for br, sz := range byBitrate {
			sums[br] += sz
			counts[br]++
		}
	}
	out := make(map[uint64]int64, len(idx.bitrates))
	for _, br := range idx.bitrates {
		if counts[br] > 0 {
			out[br] = sums[br] / int64(counts[br])
		} else {
			out[br] = 0
		}
	}
	return out
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
