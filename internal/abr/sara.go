package abr

import "time"

// SaraPolicy is the size-aware policy (P-SARA): it estimates throughput as
// the byte-weighted harmonic mean of recent per-segment rates, then applies
// a buffer-aware ladder against the specific size of the next segment at
// each candidate bitrate.
type SaraPolicy struct{}

// NewSaraPolicy returns P-SARA.
func NewSaraPolicy() *SaraPolicy { return &SaraPolicy{} }

func (p *SaraPolicy) Name() string { return "sara" }

func (p *SaraPolicy) Decide(in DecisionInput, hist *History) (uint64, float64) {
	suppressDownshift := consultGrace(hist)

	if in.SegmentNumber == in.StartNumber {
		return lowest(in.Bitrates), 0
	}

	bytesSamples, durSamples := window(hist, SaraSampleCount)
	throughputBps := weightedHarmonicMeanBps(bytesSamples, durSamples)
	throughputBytesPerSec := throughputBps / 8

	qsize := float64(in.Buffer.Qsize())
	candidate := lowest(in.Bitrates)
	if throughputBytesPerSec > 0 {
		for i := len(in.Bitrates) - 1; i >= 0; i-- {
			b := in.Bitrates[i]
			segBytes, ok := in.SizesAtNext[b]
			if !ok || segBytes <= 0 {
				continue
			}
			dlSeconds := float64(segBytes) / throughputBytesPerSec
			projectedBuffer := qsize*in.SegmentDuration - dlSeconds + in.SegmentDuration
			if projectedBuffer >= SaraSafetyFloorSeconds {
				candidate = b
				break
			}
		}
	}
	candidate = floorAboveCurrent(in.Bitrates, candidate, hist.CurrentBitrate, suppressDownshift)

	delay := 0.0
	maxQueuedSegments := float64(SaraSampleCount * 2)
	if qsize+1 > maxQueuedSegments {
		delay = qsize + 1 - maxQueuedSegments
	}
	return candidate, delay
}

// weightedHarmonicMeanBps computes the byte-weighted harmonic mean of
// per-segment rates in bits per second. Weighting by the same bytes that
// define each rate makes the formula reduce to aggregate bytes over
// aggregate time; it is implemented explicitly (not pre-simplified) to
// keep the per-sample weighting visible and swappable.
func weightedHarmonicMeanBps(bytesSamples []int64, durSamples []time.Duration) float64 {
	var weightSum float64
	var weightOverRateSum float64
	for i := range bytesSamples {
		secs := durSamples[i].Seconds()
		if secs <= 0 || bytesSamples[i] <= 0 {
			continue
		}
		rate := float64(bytesSamples[i]) * 8 / secs
		weight := float64(bytesSamples[i])
		weightSum += weight
		weightOverRateSum += weight / rate
	}
	if weightOverRateSum <= 0 {
		return 0
	}
	return weightSum / weightOverRateSum
}
