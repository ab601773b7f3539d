// Package recorder accumulates per-segment download records for a run,
// writes them incrementally as a JSON report, and mirrors the same counters
// onto Prometheus gauges/counters for live observation.
package recorder

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const service = "dashclient"

// SegmentRecord is one completed segment download.
type SegmentRecord struct {
	URLBasename     string  `json:"url_basename"`
	Bitrate         uint64  `json:"bitrate"`
	Bytes           int64   `json:"bytes"`
	DownloadSeconds float64 `json:"download_seconds"`
}

// Report is the JSON shape written to the run's report file.
type Report struct {
	Segments   []SegmentRecord `json:"segments"`
	UpShifts   int             `json:"up_shifts"`
	DownShifts int             `json:"down_shifts"`
}

// Recorder accumulates SegmentRecords in memory and rewrites the report
// file after every segment, so a killed run always leaves a complete,
// valid report.
type Recorder struct {
	mu         sync.Mutex
	reportPath string
	records    []SegmentRecord
	upShifts   int
	downShifts int

	bufferGauge  prometheus.Gauge
	bitrateGauge prometheus.Gauge
	shiftCounter *prometheus.CounterVec
}

// NewRecorder creates a Recorder that writes its report to reportPath (if
// non-empty) and registers its metrics against reg (if non-nil).
func NewRecorder(reportPath string, reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		reportPath: reportPath,
		bufferGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "dashclient_buffer_segments",
			Help:        "Current playback buffer occupancy in segments.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		bitrateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "dashclient_bitrate_bps",
			Help:        "Bitrate of the most recently fetched segment.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		shiftCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dashclient_shift_total",
			Help:        "Count of bitrate shifts, partitioned by direction.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(r.bufferGauge, r.bitrateGauge, r.shiftCounter)
	}
	return r
}

// Record appends a completed segment, updates shift counters by comparing
// bitrate against the previously recorded one, and rewrites the report.
func (r *Recorder) Record(basename string, bitrate uint64, bytes int64, downloadSeconds float64, bufferSegments int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) > 0 {
		prev := r.records[len(r.records)-1].Bitrate
		switch {
		case bitrate > prev:
			r.upShifts++
			r.shiftCounter.WithLabelValues("up").Inc()
		case bitrate < prev:
			r.downShifts++
			r.shiftCounter.WithLabelValues("down").Inc()
		}
	}
	r.records = append(r.records, SegmentRecord{
		URLBasename:     basename,
		Bitrate:         bitrate,
		Bytes:           bytes,
		DownloadSeconds: downloadSeconds,
	})
	r.bufferGauge.Set(float64(bufferSegments))
	r.bitrateGauge.Set(float64(bitrate))

	if r.reportPath != "" {
		_ = r.writeReportLocked()
	}
}

// UpShifts returns the cumulative count of strict bitrate increases.
func (r *Recorder) UpShifts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upShifts
}

// DownShifts returns the cumulative count of strict bitrate decreases.
func (r *Recorder) DownShifts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downShifts
}

// Records returns a copy of the accumulated segment records.
func (r *Recorder) Records() []SegmentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SegmentRecord, len(r.records))
	copy(out, r.records)
	return out
}

// WriteReport rewrites the report file from the current in-memory state.
func (r *Recorder) WriteReport() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeReportLocked()
}

func (r *Recorder) writeReportLocked() error {
	if r.reportPath == "" {
		return nil
	}
	report := Report{Segments: r.records, UpShifts: r.upShifts, DownShifts: r.downShifts}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.reportPath, data, 0o644)
}
