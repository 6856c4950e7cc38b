package stream

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignedFrame_DropEmptyRows(t *testing.T) {
	t0 := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(10 * time.Millisecond), t0.Add(20 * time.Millisecond), t0.Add(30 * time.Millisecond)}
	nan := math.NaN()

	f := NewFrame(times)
	f.SetNumeric("Joy", []float64{0.2, nan, nan, 0.4})
	f.SetNumeric("Anger", []float64{nan, nan, 0.1, nan})
	f.SetText(ColStimulus, []string{"1", "1", "1", "1"})
	aligned := &AlignedFrame{
		Frame:      f,
		IndexName:  "Frames",
		Index:      []float64{0, 0, 1, 1},
		MatchTimes: []time.Time{t0, t0, times[2], times[2]},
	}

	kept := aligned.DropEmptyRows([]string{"Joy", "Anger"})
	require.Equal(t, 3, kept.Len())
	assert.Equal(t, []time.Time{times[0], times[2], times[3]}, kept.Times)
	assert.Equal(t, []float64{0, 1, 1}, kept.Index)
	assert.Equal(t, "Frames", kept.IndexName)
	assert.Equal(t, []string{"1", "1", "1"}, kept.Text[ColStimulus])

	onlyJoy := aligned.DropEmptyRows([]string{"Joy"})
	assert.Equal(t, 2, onlyJoy.Len())
	assert.Equal(t, 4, aligned.Len(), "the input is not modified")
}
