package csvout

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuropeaks/domain/stream"
)

var t0 = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

func readAll(t *testing.T, b []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteFrame(t *testing.T) {
	frame := stream.NewFrame([]time.Time{t0, t0.Add(1500 * time.Microsecond)})
	frame.SetNumeric("Joy", []float64{0.25, math.NaN()})
	frame.SetText("URL", []string{"a.com", "b.com"})

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frame))

	assert.Equal(t, [][]string{
		{"Time", "Joy", "URL"},
		{"2024-03-14 10:00:00.000000", "0.25", "a.com"},
		{"2024-03-14 10:00:00.001500", "", "b.com"},
	}, readAll(t, buf.Bytes()))
}

func TestWriteAligned(t *testing.T) {
	frame := stream.NewFrame([]time.Time{t0, t0.Add(time.Second)})
	frame.SetNumeric("Joy", []float64{1, 2})
	aligned := &stream.AlignedFrame{
		Frame:      frame,
		IndexName:  "Frames",
		Index:      []float64{math.NaN(), 30},
		MatchTimes: []time.Time{{}, t0.Add(time.Second)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAligned(&buf, aligned))

	records := readAll(t, buf.Bytes())
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Time", "Joy", "Frames", "Match Time"}, records[0])
	assert.Equal(t, []string{"2024-03-14 10:00:00.000000", "1", "", ""}, records[1])
	assert.Equal(t, []string{"2024-03-14 10:00:01.000000", "2", "30", "2024-03-14 10:00:01.000000"}, records[2])
}

func TestWriteAligned_NoIndex(t *testing.T) {
	frame := stream.NewFrame([]time.Time{t0})
	aligned := &stream.AlignedFrame{Frame: frame, Index: []float64{math.NaN()}, MatchTimes: []time.Time{{}}}

	var buf bytes.Buffer
	require.NoError(t, WriteAligned(&buf, aligned))
	assert.Equal(t, []string{"Time", "Match Time"}, readAll(t, buf.Bytes())[0])
}

func TestWritePeaks(t *testing.T) {
	peaks := []stream.PeakRecord{
		{Signal: "Joy", Rank: 1, Timestamp: t0, Magnitude: 0.9, IndexName: "Frames", IndexValue: 12, HasIndex: true, ArtifactPath: "out/frame_12.png"},
		{Signal: "Joy", Rank: 2, Timestamp: t0.Add(time.Second), Magnitude: 0.5},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePeaks(&buf, peaks))

	records := readAll(t, buf.Bytes())
	require.Len(t, records, 3)
	assert.Equal(t, PeakHeader, records[0])
	assert.Equal(t, []string{"Joy", "1", "2024-03-14 10:00:00.000000", "0.9", "Frames", "12", "", "out/frame_12.png"}, records[1])
	assert.Equal(t, "", records[2][5], "unmatched peaks have no index value")
}

func TestWriteFrameIndex(t *testing.T) {
	artifacts := []stream.FrameArtifact{
		{Frame: 0, Timestamp: 0, Path: "out/frame_0.png"},
		{Frame: 45, Timestamp: 1500 * time.Millisecond, Path: "out/frame_45.png"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrameIndex(&buf, artifacts))
	assert.Equal(t, [][]string{
		{"Frame_Name", "Timestamp", "Path"},
		{"frame_0.png", "0", "out/frame_0.png"},
		{"frame_45.png", "1.5", "out/frame_45.png"},
	}, readAll(t, buf.Bytes()))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "peaks.csv")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		return WritePeaks(w, nil)
	}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readAll(t, b), 1)
}
