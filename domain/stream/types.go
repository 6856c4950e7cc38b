package stream

import (
	"math"
	"sort"
	"time"

	"neuropeaks/domain/core"
)

// Well-known column names of the tracking platform export.
const (
	ColRow         = "Row"
	ColTimestamp   = "Timestamp"
	ColStimulus    = "SourceStimuliName"
	ColSlideEvent  = "SlideEvent"
	ColParticipant = "Participant"

	// SlideEventStartMedia marks samples recorded while the stimulus was playing.
	SlideEventStartMedia = "StartMedia"
)

// RawTable is an export exactly as read: a preamble of metadata rows, a
// header row and data rows, all untyped.
type RawTable [][]string

// Sample is one cleaned row of a tracking export.
type Sample struct {
	Line       int // index of the source row in the raw table
	Row        int
	Timestamp  float64 // stream-local milliseconds
	Stimulus   string
	SlideEvent string
	Values     map[string]float64 // numeric signal columns, never NaN
	Text       map[string]string  // other whitelisted columns, verbatim
}

// CleanedStream is the export of one participant restricted to the active
// stimulus while media was playing.
type CleanedStream struct {
	Participant core.ParticipantID
	Stimulus    string
	Columns     []string // kept columns in header order
	Signals     []string // numeric signal columns present in the export
	Samples     []Sample // ascending by Timestamp
	Origin      time.Time
	Warnings    []string
}

// Len returns the number of samples.
func (s *CleanedStream) Len() int { return len(s.Samples) }

// SortByTimestamp orders samples by timestamp, keeping row order on ties.
func (s *CleanedStream) SortByTimestamp() {
	sort.SliceStable(s.Samples, func(i, j int) bool {
		return s.Samples[i].Timestamp < s.Samples[j].Timestamp
	})
}

// MinTimestamp returns the earliest stream-local timestamp.
func (s *CleanedStream) MinTimestamp() (float64, bool) {
	if len(s.Samples) == 0 {
		return 0, false
	}
	minTs := s.Samples[0].Timestamp
	for _, sample := range s.Samples[1:] {
		if sample.Timestamp < minTs {
			minTs = sample.Timestamp
		}
	}
	return minTs, true
}

// Stimuli lists the distinct stimulus ids in first-seen order.
func (s *CleanedStream) Stimuli() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sample := range s.Samples {
		if !seen[sample.Stimulus] {
			seen[sample.Stimulus] = true
			out = append(out, sample.Stimulus)
		}
	}
	return out
}

// FilterStimulus returns a copy restricted to one stimulus.
func (s *CleanedStream) FilterStimulus(stimulus string) *CleanedStream {
	out := &CleanedStream{
		Participant: s.Participant,
		Stimulus:    stimulus,
		Columns:     s.Columns,
		Signals:     s.Signals,
		Origin:      s.Origin,
		Warnings:    s.Warnings,
	}
	for _, sample := range s.Samples {
		if sample.Stimulus == stimulus {
			out.Samples = append(out.Samples, sample)
		}
	}
	return out
}

// Frame is a time-indexed, column-oriented table. Numeric gaps are NaN.
type Frame struct {
	Times   []time.Time
	Order   []string
	Numeric map[string][]float64
	Text    map[string][]string
}

// NewFrame allocates an empty frame with the given times.
func NewFrame(times []time.Time) *Frame {
	return &Frame{
		Times:   times,
		Numeric: make(map[string][]float64),
		Text:    make(map[string][]string),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Times) }

// SetNumeric adds or replaces a numeric column.
func (f *Frame) SetNumeric(name string, values []float64) {
	if _, ok := f.Numeric[name]; !ok {
		if _, isText := f.Text[name]; !isText {
			f.Order = append(f.Order, name)
		}
	}
	f.Numeric[name] = values
}

// SetText adds or replaces a text column.
func (f *Frame) SetText(name string, values []string) {
	if _, ok := f.Text[name]; !ok {
		if _, isNum := f.Numeric[name]; !isNum {
			f.Order = append(f.Order, name)
		}
	}
	f.Text[name] = values
}

// Column returns a numeric column.
func (f *Frame) Column(name string) ([]float64, bool) {
	values, ok := f.Numeric[name]
	return values, ok
}

// Has reports whether a column of either kind exists.
func (f *Frame) Has(name string) bool {
	if _, ok := f.Numeric[name]; ok {
		return true
	}
	_, ok := f.Text[name]
	return ok
}

func (f *Frame) nonEmptyRows(columns []string) []int {
	keep := make([]int, 0, f.Len())
	for i := range f.Times {
		for _, name := range columns {
			if values, ok := f.Numeric[name]; ok && !math.IsNaN(values[i]) {
				keep = append(keep, i)
				break
			}
		}
	}
	return keep
}

// Select returns a copy holding only the given row indices.
func (f *Frame) Select(rows []int) *Frame {
	out := NewFrame(make([]time.Time, len(rows)))
	for j, i := range rows {
		out.Times[j] = f.Times[i]
	}
	for _, name := range f.Order {
		if values, ok := f.Numeric[name]; ok {
			col := make([]float64, len(rows))
			for j, i := range rows {
				col[j] = values[i]
			}
			out.SetNumeric(name, col)
			continue
		}
		values := f.Text[name]
		col := make([]string, len(rows))
		for j, i := range rows {
			col[j] = values[i]
		}
		out.SetText(name, col)
	}
	return out
}

// TimeGrid is a fixed-step sequence of instants used as resampling target.
type TimeGrid struct {
	Start time.Time
	Step  time.Duration
	Ticks []time.Time
}

// Len returns the number of ticks.
func (g TimeGrid) Len() int { return len(g.Ticks) }

// AlignedFrame is a primary frame with, per row, at most one matched row of
// a secondary stream copied in.
type AlignedFrame struct {
	*Frame
	IndexName  string      // name of the external index column, if any
	Index      []float64   // external index value per row, NaN when unmatched
	MatchTimes []time.Time // matched secondary instant, zero when unmatched
}

// Matched reports whether row i found a secondary row.
func (a *AlignedFrame) Matched(i int) bool {
	return !a.MatchTimes[i].IsZero()
}

// SelectRows returns a copy holding only the given rows, index included.
func (a *AlignedFrame) SelectRows(rows []int) *AlignedFrame {
	out := &AlignedFrame{
		Frame:      a.Select(rows),
		IndexName:  a.IndexName,
		Index:      make([]float64, len(rows)),
		MatchTimes: make([]time.Time, len(rows)),
	}
	for j, i := range rows {
		out.Index[j] = a.Index[i]
		out.MatchTimes[j] = a.MatchTimes[i]
	}
	return out
}

// DropEmptyRows keeps only rows where at least one of the named numeric
// columns holds a value, with their index values. Used after oversampled
// resampling.
func (a *AlignedFrame) DropEmptyRows(columns []string) *AlignedFrame {
	return a.SelectRows(a.nonEmptyRows(columns))
}

// PeakRecord is one of the top-N samples of a signal.
type PeakRecord struct {
	Signal       string    `json:"signal"`
	Rank         int       `json:"rank"`
	Timestamp    time.Time `json:"timestamp"`
	Magnitude    float64   `json:"magnitude"`
	IndexName    string    `json:"index_name,omitempty"`
	IndexValue   float64   `json:"index_value"`
	HasIndex     bool      `json:"has_index"`
	Stimulus     string    `json:"stimulus,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
}

// FrameArtifact is a saved video frame or image an index value can point to.
type FrameArtifact struct {
	Frame     int
	Timestamp time.Duration
	Path      string
}
