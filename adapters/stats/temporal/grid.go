package temporal

import (
	"fmt"
	"time"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
)

// ============================================================================
// TIME GRID
// ============================================================================
// Grids are aligned to multiples of the step counted from the Unix epoch, so
// two grids with the same step share their ticks. This is what makes
// re-resampling at the same width a fixed point.
// ============================================================================

// MaxGridTicks bounds the size of a grid. Sub-microsecond bins over a long
// recording would otherwise allocate billions of empty bins.
const MaxGridTicks = 20_000_000

// NewTimeGrid returns the ticks from start truncated to a step boundary
// through end inclusive.
func NewTimeGrid(start, end time.Time, step time.Duration) (stream.TimeGrid, error) {
	if step <= 0 {
		return stream.TimeGrid{}, fmt.Errorf("%w: step must be positive, got %s", core.ErrInvalidBin, step)
	}
	if end.Before(start) {
		return stream.TimeGrid{}, fmt.Errorf("%w: grid end %s before start %s", core.ErrInvalidBin, end, start)
	}

	first := truncateToStep(start, step)
	n := int64(end.Sub(first)/step) + 1
	if n > MaxGridTicks {
		return stream.TimeGrid{}, fmt.Errorf("%w: %d bins of %s exceed the limit of %d", core.ErrInvalidBin, n, step, MaxGridTicks)
	}

	ticks := make([]time.Time, n)
	for i := range ticks {
		ticks[i] = first.Add(time.Duration(i) * step)
	}
	return stream.TimeGrid{Start: first, Step: step, Ticks: ticks}, nil
}

// truncateToStep floors t to a multiple of step since the Unix epoch.
func truncateToStep(t time.Time, step time.Duration) time.Time {
	ns := t.UnixNano()
	rem := ns % int64(step)
	if rem < 0 {
		rem += int64(step)
	}
	return time.Unix(0, ns-rem).UTC()
}

// binIndex returns the grid bin holding t.
func binIndex(grid stream.TimeGrid, t time.Time) int {
	return int(t.Sub(grid.Start) / grid.Step)
}

// Instants converts stream-local millisecond timestamps to absolute instants.
func Instants(s *stream.CleanedStream, origin time.Time) []time.Time {
	out := make([]time.Time, len(s.Samples))
	for i, sample := range s.Samples {
		out[i] = core.AtMillis(origin, sample.Timestamp)
	}
	return out
}
