package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRecordAccumulatesShiftCounts(t *testing.T) {
	r := NewRecorder("", nil)
	r.Record("seg-0.m4s", 500_000, 100, 1.0, 0)
	r.Record("seg-1.m4s", 1_000_000, 200, 1.0, 1)
	r.Record("seg-2.m4s", 1_000_000, 200, 1.0, 2)
	r.Record("seg-3.m4s", 500_000, 100, 1.0, 1)

	require.Equal(t, 1, r.UpShifts())
	require.Equal(t, 1, r.DownShifts())
	require.Len(t, r.Records(), 4)
}

func TestWriteReportPersistsIncrementally(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r := NewRecorder(path, nil)
	r.Record("seg-0.m4s", 500_000, 100, 1.0, 0)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Segments, 1)
	require.Equal(t, uint64(500_000), report.Segments[0].Bitrate)

	r.Record("seg-1.m4s", 1_000_000, 200, 1.0, 1)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Segments, 2)
	require.Equal(t, 1, report.UpShifts)
}

func TestReportStructuralShapeMatchesRecordedSegments(t *testing.T) {
	r := NewRecorder("", nil)
	r.Record("seg-0.m4s", 500_000, 100, 1.0, 0)
	r.Record("seg-1.m4s", 1_000_000, 200, 1.25, 1)

	want := Report{
		Segments: []SegmentRecord{
			{URLBasename: "seg-0.m4s", Bitrate: 500_000, Bytes: 100, DownloadSeconds: 1.0},
			{URLBasename: "seg-1.m4s", Bitrate: 1_000_000, Bytes: 200, DownloadSeconds: 1.25},
		},
		UpShifts:   1,
		DownShifts: 0,
	}
	got := Report{Segments: r.Records(), UpShifts: r.UpShifts(), DownShifts: r.DownShifts()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRecorderWithoutPathNeverWrites(t *testing.T) {
	r := NewRecorder("", nil)
	r.Record("seg-0.m4s", 500_000, 100, 1.0, 0)
	require.NoError(t, r.WriteReport())
}
