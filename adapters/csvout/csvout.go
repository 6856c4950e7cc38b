// Package csvout writes pipeline results as CSV: aligned and merged frames,
// peak tables and the saved frame index.
package csvout

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"neuropeaks/domain/stream"
)

// TimeLayout formats absolute instants in every file written here.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Column names that are not taken from a frame.
const (
	ColTime      = "Time"
	ColMatchTime = "Match Time"
)

// WriteFrame writes one row per frame row: the instant, then every column
// in frame order. Missing numbers are written as blanks.
func WriteFrame(w io.Writer, frame *stream.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{ColTime}, frame.Order...)); err != nil {
		return err
	}
	for i, t := range frame.Times {
		if err := cw.Write(append([]string{formatTime(t)}, frameRow(frame, i)...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAligned writes an aligned frame: the primary instant, the frame's
// columns, the external index (when named) and the instant of the matched
// secondary row.
func WriteAligned(w io.Writer, aligned *stream.AlignedFrame) error {
	cw := csv.NewWriter(w)
	header := append([]string{ColTime}, aligned.Order...)
	if aligned.IndexName != "" {
		header = append(header, aligned.IndexName)
	}
	header = append(header, ColMatchTime)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, t := range aligned.Times {
		record := append([]string{formatTime(t)}, frameRow(aligned.Frame, i)...)
		if aligned.IndexName != "" {
			v := math.NaN()
			if i < len(aligned.Index) {
				v = aligned.Index[i]
			}
			record = append(record, FormatFloat(v))
		}
		match := ""
		if i < len(aligned.MatchTimes) && aligned.Matched(i) {
			match = formatTime(aligned.MatchTimes[i])
		}
		if err := cw.Write(append(record, match)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PeakHeader is the header of a peaks file.
var PeakHeader = []string{"Signal", "Rank", "Time", "Magnitude", "Index", "Index Value", "Stimulus", "Path"}

// WritePeaks writes peak records in the order given.
func WritePeaks(w io.Writer, peaks []stream.PeakRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PeakHeader); err != nil {
		return err
	}
	for _, p := range peaks {
		index := ""
		if p.HasIndex {
			index = FormatFloat(p.IndexValue)
		}
		record := []string{
			p.Signal,
			strconv.Itoa(p.Rank),
			formatTime(p.Timestamp),
			FormatFloat(p.Magnitude),
			p.IndexName,
			index,
			p.Stimulus,
			p.ArtifactPath,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FrameIndexHeader is the header of a saved frame index.
var FrameIndexHeader = []string{"Frame_Name", "Timestamp", "Path"}

// WriteFrameIndex lists saved video frames with their offset in seconds.
func WriteFrameIndex(w io.Writer, artifacts []stream.FrameArtifact) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FrameIndexHeader); err != nil {
		return err
	}
	for _, a := range artifacts {
		record := []string{
			filepath.Base(a.Path),
			FormatFloat(a.Timestamp.Seconds()),
			a.Path,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path, its directory included, and fills it with write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// FormatFloat renders a number compactly; NaN becomes a blank cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func frameRow(frame *stream.Frame, i int) []string {
	record := make([]string, len(frame.Order))
	for j, name := range frame.Order {
		if values, ok := frame.Numeric[name]; ok {
			record[j] = FormatFloat(values[i])
			continue
		}
		record[j] = frame.Text[name][i]
	}
	return record
}
