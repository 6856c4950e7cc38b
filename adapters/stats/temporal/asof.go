package temporal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
)

// ============================================================================
// AS-OF ALIGNMENT
// ============================================================================
// Every primary row is matched with at most one secondary row by time. The
// result has exactly one row per primary row.
// ============================================================================

// Direction selects which secondary row a primary row matches
type Direction string

const (
	Backward Direction = "backward" // Last secondary row at or before the primary time
	Forward  Direction = "forward"  // First secondary row at or after the primary time
	Nearest  Direction = "nearest"  // Closest in either direction, earlier on ties
)

// ParseDirection maps a profile value onto a Direction; empty is Backward.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", Backward:
		return Backward, nil
	case Forward:
		return Forward, nil
	case Nearest:
		return Nearest, nil
	default:
		return "", fmt.Errorf("unknown merge direction %q", s)
	}
}

// MergeAsOf copies into every primary row the columns of its matching
// secondary row. Secondary columns whose names clash with primary ones get a
// "_right" suffix. A positive tolerance rejects matches further away than it.
func MergeAsOf(primary, secondary *stream.Frame, dir Direction, tolerance time.Duration) (*stream.AlignedFrame, error) {
	if secondary == nil || secondary.Len() == 0 {
		return nil, core.ErrEmptySecondary
	}
	if !timesSorted(primary.Times) {
		return nil, core.NewAlignmentError("primary is not sorted by time")
	}
	if !timesSorted(secondary.Times) {
		return nil, core.NewAlignmentError("secondary is not sorted by time")
	}

	matches := matchAsOf(primary.Times, secondary.Times, dir, tolerance)

	n := primary.Len()
	out := &stream.AlignedFrame{
		Frame:      primary.Select(identity(n)),
		Index:      nanColumn(n),
		MatchTimes: make([]time.Time, n),
	}
	for i, j := range matches {
		if j >= 0 {
			out.MatchTimes[i] = secondary.Times[j]
		}
	}

	for _, name := range secondary.Order {
		target := name
		if out.Has(target) {
			target = name + "_right"
		}
		if values, ok := secondary.Numeric[name]; ok {
			col := nanColumn(n)
			for i, j := range matches {
				if j >= 0 {
					col[i] = values[j]
				}
			}
			out.SetNumeric(target, col)
			continue
		}
		values := secondary.Text[name]
		col := make([]string, n)
		for i, j := range matches {
			if j >= 0 {
				col[i] = values[j]
			}
		}
		out.SetText(target, col)
	}
	return out, nil
}

// matchAsOf is a two-pointer sweep over both sorted time lists. It returns,
// per primary row, the matched secondary row or -1.
func matchAsOf(primary, secondary []time.Time, dir Direction, tolerance time.Duration) []int {
	matches := make([]int, len(primary))
	j := 0 // first secondary row after the primary time
	for i, t := range primary {
		for j < len(secondary) && !secondary[j].After(t) {
			j++
		}
		before, after := j-1, j
		// An exact hit sits at before; forward may use it too.
		if before >= 0 && secondary[before].Equal(t) {
			after = before
		}

		match := -1
		switch dir {
		case Forward:
			if after < len(secondary) {
				match = after
			}
		case Nearest:
			switch {
			case before < 0 && after < len(secondary):
				match = after
			case after >= len(secondary):
				match = before
			case t.Sub(secondary[before]) <= secondary[after].Sub(t):
				match = before
			default:
				match = after
			}
		default:
			match = before
		}

		if match >= 0 && tolerance > 0 && absDuration(secondary[match].Sub(t)) > tolerance {
			match = -1
		}
		matches[i] = match
	}
	return matches
}

// Index is an external key laid on the clock, e.g. video frame numbers.
type Index struct {
	Name   string
	Times  []time.Time
	Values []float64
}

// Len returns the number of index entries.
func (x Index) Len() int { return len(x.Times) }

// Frame returns the index as a single-column frame.
func (x Index) Frame() *stream.Frame {
	f := stream.NewFrame(x.Times)
	f.SetNumeric(x.Name, x.Values)
	return f
}

// FrameTimeline is the index of frameCount video frames played at fps from
// origin: frame k sits at origin + k/fps.
func FrameTimeline(frameCount int, fps float64, origin time.Time) (Index, error) {
	if frameCount <= 0 {
		return Index{}, core.NewAlignmentError("video has no frames")
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return Index{}, core.NewAlignmentError(fmt.Sprintf("invalid frame rate %v", fps))
	}
	idx := Index{
		Name:   "Frames",
		Times:  make([]time.Time, frameCount),
		Values: make([]float64, frameCount),
	}
	for k := 0; k < frameCount; k++ {
		idx.Times[k] = origin.Add(core.Millis(float64(k) / fps * 1000))
		idx.Values[k] = float64(k)
	}
	return idx, nil
}

// Resample puts the index on the grid a series resampled at binWidth uses:
// each non-empty bin carries the mean index value of the entries inside it,
// empty bins are left out.
func (x Index) Resample(binWidth time.Duration) (Index, error) {
	binned, err := ResampleFrame(x.Frame(), binWidth)
	if err != nil {
		return Index{}, err
	}
	out := Index{Name: x.Name}
	values := binned.Numeric[x.Name]
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out.Times = append(out.Times, binned.Times[i])
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// Align matches every row of a series with the external index. The index is
// first resampled onto the series grid, so a bin matches the entries inside
// it rather than those before its start. The index column is taken out of
// the frame and exposed as Index.
func Align(series *Series, index Index, dir Direction, tolerance time.Duration) (*stream.AlignedFrame, error) {
	if index.Len() == 0 {
		return nil, core.ErrEmptySecondary
	}
	if series.Grid.Step > 0 {
		binned, err := index.Resample(series.Grid.Step)
		if err != nil {
			return nil, err
		}
		index = binned
	}
	aligned, err := MergeAsOf(series.Frame, index.Frame(), dir, tolerance)
	if err != nil {
		return nil, err
	}

	name := index.Name
	if !series.Has(name) {
		aligned.Index = aligned.Numeric[name]
		delete(aligned.Numeric, name)
		aligned.Order = removeName(aligned.Order, name)
	} else {
		aligned.Index = aligned.Numeric[name+"_right"]
		delete(aligned.Numeric, name+"_right")
		aligned.Order = removeName(aligned.Order, name+"_right")
	}
	aligned.IndexName = name
	return aligned, nil
}

// ShiftClock moves secondary timestamps onto the primary clock. offset is
// primaryOrigin minus secondaryOrigin.
func ShiftClock(times []time.Time, offset time.Duration) []time.Time {
	out := make([]time.Time, len(times))
	for i, t := range times {
		if t.IsZero() {
			continue
		}
		out[i] = t.Add(offset)
	}
	return out
}

// ClockOffset returns the offset that maps the secondary clock onto the
// primary one.
func ClockOffset(primaryOrigin, secondaryOrigin time.Time) time.Duration {
	return primaryOrigin.Sub(secondaryOrigin)
}

// RepairTail snaps a missing or out-of-order last timestamp onto its
// predecessor. Exports sometimes end with an unparseable time.
func RepairTail(times []time.Time) []time.Time {
	out := append([]time.Time(nil), times...)
	n := len(out)
	if n < 2 {
		return out
	}
	if out[n-1].IsZero() || out[n-1].Before(out[n-2]) {
		out[n-1] = out[n-2]
	}
	return out
}

func identity(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func removeName(names []string, name string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
