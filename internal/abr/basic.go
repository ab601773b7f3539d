package abr

// BasicPolicy is the throughput-reactive policy (P-BASIC): it estimates
// available bandwidth from a short window of recent downloads and picks
// the highest bitrate at or below that estimate.
type BasicPolicy struct{}

// NewBasicPolicy returns P-BASIC.
func NewBasicPolicy() *BasicPolicy { return &BasicPolicy{} }

func (p *BasicPolicy) Name() string { return "basic" }

func (p *BasicPolicy) Decide(in DecisionInput, hist *History) (uint64, float64) {
	suppressDownshift := consultGrace(hist)

	if in.SegmentNumber == in.StartNumber {
		return lowest(in.Bitrates), 0
	}

	bytesSamples, durSamples := window(hist, BasicWindow)
	throughput := totalThroughputBps(bytesSamples, durSamples)

	candidate := highestAtMost(in.Bitrates, throughput)
	candidate = floorAboveCurrent(in.Bitrates, candidate, hist.CurrentBitrate, suppressDownshift)

	qsize := in.Buffer.Qsize()
	delay := 0.0
	if qsize > BasicThreshold {
		delay = float64(qsize - BasicThreshold)
	}
	return candidate, delay
}
