package temporal

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// Series is a frame whose rows are the ticks of a grid.
type Series struct {
	*stream.Frame
	Grid stream.TimeGrid
}

// StreamFrame lays a cleaned stream out as a frame on the absolute clock.
// Numeric columns missing from a sample are NaN; the stimulus, slide event
// and whitelisted text columns become text columns.
func StreamFrame(s *stream.CleanedStream, origin time.Time) *stream.Frame {
	frame := stream.NewFrame(Instants(s, origin))
	n := len(s.Samples)

	numeric := make(map[string]bool, len(s.Signals))
	for _, name := range s.Signals {
		numeric[name] = true
	}
	for _, sample := range s.Samples {
		for name := range sample.Values {
			numeric[name] = true
		}
	}

	for _, name := range s.Columns {
		switch name {
		case stream.ColRow, stream.ColTimestamp:
			continue
		case stream.ColStimulus, stream.ColSlideEvent:
			col := make([]string, n)
			for i, sample := range s.Samples {
				if name == stream.ColStimulus {
					col[i] = sample.Stimulus
				} else {
					col[i] = sample.SlideEvent
				}
			}
			frame.SetText(name, col)
		default:
			if numeric[name] {
				col := make([]float64, n)
				for i, sample := range s.Samples {
					if v, ok := sample.Values[name]; ok {
						col[i] = v
					} else {
						col[i] = math.NaN()
					}
				}
				frame.SetNumeric(name, col)
				continue
			}
			col := make([]string, n)
			for i, sample := range s.Samples {
				col[i] = sample.Text[name]
			}
			frame.SetText(name, col)
		}
	}
	return frame
}

// Resample bins a cleaned stream onto a grid of width binWidth. Numeric
// columns take the mean of the bin, text columns its first non-empty value.
// Bins without samples stay NaN; they are absent, not zero.
func Resample(s *stream.CleanedStream, origin time.Time, binWidth time.Duration) (*Series, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("participant %s: %w", s.Participant, core.ErrEmptyPrimary)
	}
	return ResampleFrame(StreamFrame(s, origin), binWidth)
}

// ResampleSeries resamples an already resampled series. At the series' own
// width it returns the same grid and values.
func ResampleSeries(series *Series, binWidth time.Duration) (*Series, error) {
	return ResampleFrame(series.Frame, binWidth)
}

// ResampleFrame is a single forward sweep over a time-sorted frame: rows are
// accumulated until their bin changes, then the bin is flushed.
func ResampleFrame(frame *stream.Frame, binWidth time.Duration) (*Series, error) {
	if frame.Len() == 0 {
		return nil, core.ErrEmptyPrimary
	}
	if binWidth <= 0 {
		return nil, fmt.Errorf("%w: bin width must be positive, got %s", core.ErrInvalidBin, binWidth)
	}
	if !timesSorted(frame.Times) {
		return nil, core.NewAlignmentError("resample input is not sorted by time")
	}

	start := time.Now()
	grid, err := NewTimeGrid(frame.Times[0], frame.Times[frame.Len()-1], binWidth)
	if err != nil {
		return nil, err
	}

	out := &Series{Frame: stream.NewFrame(grid.Ticks), Grid: grid}
	var numeric, text []string
	for _, name := range frame.Order {
		if _, ok := frame.Numeric[name]; ok {
			numeric = append(numeric, name)
			out.SetNumeric(name, nanColumn(grid.Len()))
		} else {
			text = append(text, name)
			out.SetText(name, make([]string, grid.Len()))
		}
	}

	buffers := make([]stats.Float64Data, len(numeric))
	flush := func(bin int) {
		for c, name := range numeric {
			if len(buffers[c]) == 0 {
				continue
			}
			m, err := stats.Mean(buffers[c])
			if err == nil {
				out.Numeric[name][bin] = m
			}
			buffers[c] = buffers[c][:0]
		}
	}

	current := binIndex(grid, frame.Times[0])
	for i, t := range frame.Times {
		bin := binIndex(grid, t)
		if bin != current {
			flush(current)
			current = bin
		}
		for c, name := range numeric {
			if v := frame.Numeric[name][i]; !math.IsNaN(v) {
				buffers[c] = append(buffers[c], v)
			}
		}
		for _, name := range text {
			if v := frame.Text[name][i]; v != "" && out.Text[name][bin] == "" {
				out.Text[name][bin] = v
			}
		}
	}
	flush(current)

	internal.DefaultLogger.Debug("[Resampler] %d rows into %d bins of %s in %s",
		frame.Len(), grid.Len(), binWidth, time.Since(start))
	return out, nil
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

func timesSorted(times []time.Time) bool {
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return false
		}
	}
	return true
}
