package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuropeaks/domain/stream"
)

func TestExportGenerator_Layout(t *testing.T) {
	cfg := DefaultExportConfig()
	cfg.Gaze = true
	raw := NewExportGenerator(cfg).Generate()

	bodyRows := len(cfg.Stimuli) * 2 * cfg.SamplesPerPhase
	require.Len(t, raw, cfg.PreambleRows+1+bodyRows)
	assert.Equal(t, "#Recording time", raw[8][0])

	header := raw[cfg.PreambleRows]
	assert.Equal(t, stream.ColTimestamp, header[1])
	assert.Equal(t, GazeColumns, header[len(header)-len(GazeColumns):])

	// state columns are only written on change
	first := raw[cfg.PreambleRows+1]
	assert.Equal(t, "1", first[2])
	assert.Equal(t, "EndMedia", first[3])
	assert.Empty(t, raw[cfg.PreambleRows+2][3])
	assert.Equal(t, stream.SlideEventStartMedia, raw[cfg.PreambleRows+1+cfg.SamplesPerPhase][3])
}

func TestExportGenerator_LostTrack(t *testing.T) {
	cfg := DefaultExportConfig()
	cfg.Gaze = true
	cfg.LostTrackRate = 1
	raw := NewExportGenerator(cfg).Generate()

	row := raw[len(raw)-1]
	assert.Equal(t, []string{"-1.00", "-1.00", "-1.00", "-1.00"}, row[len(row)-4:])
}
