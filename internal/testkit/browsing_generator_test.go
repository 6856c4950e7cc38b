package testkit

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuropeaks/adapters/web"
)

func TestBrowsingGenerator_Generate(t *testing.T) {
	cfg := DefaultBrowsingConfig()
	raw := NewBrowsingGenerator(cfg).Generate()

	require.Len(t, raw, 1+len(cfg.URLs)*cfg.EventsPerPage)
	assert.Equal(t, BrowsingHeader, raw[0])

	last := map[string]float64{}
	for i, row := range raw[1:] {
		require.Len(t, row, len(BrowsingHeader))
		if i%cfg.EventsPerPage == 0 {
			assert.Equal(t, "load", row[1])
		}
		if row[1] != "scroll" {
			assert.Empty(t, row[3])
			continue
		}
		pct, err := strconv.ParseFloat(row[3], 64)
		require.NoError(t, err)
		assert.Greater(t, pct, last[row[6]], "scrolling moves down the page")
		assert.LessOrEqual(t, pct, 100.0)
		last[row[6]] = pct
	}
}

func TestBrowsingGenerator_Deterministic(t *testing.T) {
	a := NewBrowsingGenerator(DefaultBrowsingConfig()).Generate()
	b := NewBrowsingGenerator(DefaultBrowsingConfig()).Generate()
	assert.Equal(t, a, b)
}

func TestBrowsingGenerator_ParsesAsLog(t *testing.T) {
	cfg := DefaultBrowsingConfig()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, NewBrowsingGenerator(cfg).Generate()))

	frame, err := web.ParseLog(&buf, "generated.csv")
	require.NoError(t, err)
	require.Equal(t, len(cfg.URLs)*cfg.EventsPerPage, frame.Len())
	assert.Equal(t, cfg.Start, frame.Times[0])
	assert.Equal(t, cfg.Start.Add(time.Duration(frame.Len()-1)*cfg.Step), frame.Times[frame.Len()-1])
	assert.Equal(t, cfg.URLs[1], frame.Text[web.ColURL][frame.Len()-1])
}
