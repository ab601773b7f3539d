// Package abr implements the three interchangeable bitrate-adaptation
// policies consulted by the pipeline driver before every segment fetch.
package abr

import "time"

// Tunables shared across policies. Unlike the original client's mutable
// process-wide config record, these are package-level constants threaded
// implicitly through each policy's behavior; a run never mutates them.
const (
	// BasicThreshold is the buffer occupancy, in segments, above which
	// P-BASIC starts delaying fetches.
	BasicThreshold = 10

	// BasicWindow bounds how many recent (bytes, duration) samples
	// P-BASIC's throughput estimate considers.
	BasicWindow = 5

	// SaraSampleCount is the fixed window size for P-SARA's weighted
	// harmonic-mean throughput estimator.
	SaraSampleCount = 5

	// SaraSafetyFloorSeconds is the minimum projected buffer occupancy,
	// in seconds, a candidate bitrate must leave behind to be chosen.
	SaraSafetyFloorSeconds = 2.0

	// NetflixBufferSize is the buffer occupancy, in segments, at or above
	// which P-NETFLIX starts delaying fetches.
	NetflixBufferSize = 10

	// NetflixLowWatermarkSeconds is the buffer occupancy, in seconds, at
	// which P-NETFLIX transitions from INITIAL to STEADY.
	NetflixLowWatermarkSeconds = 4.0

	// NetflixInitialRateMargin is how comfortably the measured download
	// rate must exceed a candidate's required rate before P-NETFLIX
	// steps up during INITIAL.
	NetflixInitialRateMargin = 1.2

	// JumpBufferCounterConstant is the number of decisions, after a seek,
	// during which a policy must not select a lower bitrate than the one
	// already in effect.
	JumpBufferCounterConstant = 5
)

// BufferView is the narrow read-only view of the playback buffer a policy
// is allowed to see: only the occupancy, never the queue or clock.
type BufferView interface {
	Qsize() int
}

// History is the adaptation state carried across decisions for the
// lifetime of a run: recent download samples and the bitrate trail needed
// to detect shifts.
type History struct {
	RecentDurations []time.Duration
	RecentBytes     []int64
	CurrentBitrate  uint64
	PreviousBitrate uint64
	JumpGrace       int
}

// NewHistory returns an empty adaptation history.
func NewHistory() *History {
	return &History{}
}

// Record appends a completed segment's download sample and rolls the
// bitrate trail forward.
func (h *History) Record(bitrate uint64, bytes int64, dur time.Duration) {
	h.PreviousBitrate = h.CurrentBitrate
	h.CurrentBitrate = bitrate
	h.RecentBytes = append(h.RecentBytes, bytes)
	h.RecentDurations = append(h.RecentDurations, dur)
}

// OnJump arms the jump grace counter; it must be called once per seek,
// before the next Decide.
func (h *History) OnJump() {
	h.JumpGrace = JumpBufferCounterConstant
}

// consultGrace reports whether a downshift is currently suppressed and
// decrements the counter. It is called unconditionally at the top of every
// policy's Decide, resolving the source ambiguity around partial
// consultation of the grace counter noted in the original client.
func consultGrace(hist *History) bool {
	suppress := hist.JumpGrace > 0
	if hist.JumpGrace > 0 {
		hist.JumpGrace--
	}
	return suppress
}

// window returns the last n samples of bytes/durations, whichever is
// shorter.
func window(hist *History, n int) ([]int64, []time.Duration) {
	l := len(hist.RecentBytes)
	if l > n {
		l = n
	}
	return hist.RecentBytes[len(hist.RecentBytes)-l:], hist.RecentDurations[len(hist.RecentDurations)-l:]
}

// DecisionInput bundles everything a policy needs to pick a bitrate and
// delay for one segment.
type DecisionInput struct {
	SegmentNumber   int
	StartNumber     int      // first segment number of the run, per Index.StartNumber
	Bitrates        []uint64 // sorted ascending
	Buffer          BufferView
	SizesAtNext     map[uint64]int64 // segment_sizes_at(segment_number+1)
	AverageSizes    map[uint64]int64
	SegmentDuration float64 // seconds
}

// Policy is the capability every ABR variant implements.
type Policy interface {
	// Decide returns the chosen bitrate and a delay (in whole segments)
	// the driver should sleep before fetching.
	Decide(in DecisionInput, hist *History) (bitrate uint64, delaySegments float64)
	Name() string
}

// lowest and highestAtMost are shared candidate-selection helpers.

func lowest(bitrates []uint64) uint64 {
	if len(bitrates) == 0 {
		return 0
	}
	return bitrates[0]
}

func highestAtMost(bitrates []uint64, ceiling float64) uint64 {
	best := lowest(bitrates)
	for _, b := range bitrates {
		if float64(b) <= ceiling {
			best = b
		}
	}
	return best
}

// floorAboveCurrent clamps a candidate so a suppressed downshift never
// drops below the currently selected bitrate.
func floorAboveCurrent(bitrates []uint64, candidate, current uint64, suppressDownshift bool) uint64 {
	if !suppressDownshift || current == 0 || candidate >= current {
		return candidate
	}
	for _, b := range bitrates {
		if b == current {
			return current
		}
	}
	return candidate
}

func totalThroughputBps(bytesSamples []int64, durSamples []time.Duration) float64 {
	var bytesSum int64
	var secsSum float64
	for i := range bytesSamples {
		bytesSum += bytesSamples[i]
		secsSum += durSamples[i].Seconds()
	}
	if secsSum <= 0 {
		return 0
	}
	return float64(bytesSum) * 8 / secsSum
}
