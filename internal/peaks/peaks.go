package peaks

import (
	"fmt"
	"math"
	"sort"

	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// DefaultN is the number of peaks kept per signal when none is configured.
const DefaultN = 3

// Extractor selects the strongest moments of each signal
type Extractor struct {
	logger *internal.Logger
}

// NewExtractor creates an extractor; a nil logger uses the default one.
func NewExtractor(logger *internal.Logger) *Extractor {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Extractor{logger: logger}
}

// TopN extracts with the default logger.
func TopN(frame *stream.AlignedFrame, signals []string, n int) ([]stream.PeakRecord, error) {
	return NewExtractor(nil).TopN(frame, signals, n)
}

// TopN returns, for every signal in order, the n rows with the largest
// values. Rows are ranked by a stable descending sort, so equal values keep
// their time order. Missing values never rank. A signal with fewer than n
// values yields all of them; an absent signal yields none. Both are logged.
func (e *Extractor) TopN(frame *stream.AlignedFrame, signals []string, n int) ([]stream.PeakRecord, error) {
	if frame == nil || frame.Frame == nil {
		return nil, fmt.Errorf("no frame to extract peaks from")
	}
	if n <= 0 {
		n = DefaultN
	}

	stimuli := frame.Text[stream.ColStimulus]
	var out []stream.PeakRecord

	for _, signal := range signals {
		values, ok := frame.Column(signal)
		if !ok {
			e.logger.Warn("[Peaks] signal %q not in frame, skipped", signal)
			continue
		}

		rows := make([]int, 0, len(values))
		for i, v := range values {
			if !math.IsNaN(v) {
				rows = append(rows, i)
			}
		}
		sort.SliceStable(rows, func(a, b int) bool {
			return values[rows[a]] > values[rows[b]]
		})
		if len(rows) < n {
			e.logger.Warn("[Peaks] signal %q has %d values, fewer than %d", signal, len(rows), n)
		} else {
			rows = rows[:n]
		}

		for rank, row := range rows {
			rec := stream.PeakRecord{
				Signal:    signal,
				Rank:      rank + 1,
				Timestamp: frame.Times[row],
				Magnitude: values[row],
				IndexName: frame.IndexName,
			}
			if row < len(frame.Index) && !math.IsNaN(frame.Index[row]) {
				rec.IndexValue = frame.Index[row]
				rec.HasIndex = true
			}
			if row < len(stimuli) {
				rec.Stimulus = stimuli[row]
			}
			out = append(out, rec)
		}
	}

	e.logger.Debug("[Peaks] %d peaks over %d signals", len(out), len(signals))
	return out, nil
}

// AttachArtifacts points every indexed peak at the saved frame closest to
// its index value, the earlier frame on ties. Peaks are copied.
func AttachArtifacts(peaks []stream.PeakRecord, artifacts []stream.FrameArtifact) []stream.PeakRecord {
	out := append([]stream.PeakRecord(nil), peaks...)
	if len(artifacts) == 0 {
		return out
	}

	sorted := append([]stream.FrameArtifact(nil), artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	for i := range out {
		if !out[i].HasIndex {
			continue
		}
		target := out[i].IndexValue
		// first artifact at or after the target
		j := sort.Search(len(sorted), func(k int) bool { return float64(sorted[k].Frame) >= target })
		best := j
		if j == len(sorted) || (j > 0 && target-float64(sorted[j-1].Frame) <= float64(sorted[j].Frame)-target) {
			best = j - 1
			// walk back over duplicates of the same frame number
			for best > 0 && sorted[best-1].Frame == sorted[best].Frame {
				best--
			}
		}
		out[i].ArtifactPath = sorted[best].Path
	}
	return out
}
