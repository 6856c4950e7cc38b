package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"neuropeaks/domain/stream"
)

// ExportGeneratorConfig configures the synthetic tracking export generator
type ExportGeneratorConfig struct {
	Participant     string        `json:"participant"`
	PreambleRows    int           `json:"preamble_rows"`
	Signals         []string      `json:"signals"`
	Stimuli         []string      `json:"stimuli"`
	SamplesPerPhase int           `json:"samples_per_phase"`
	StepMillis      float64       `json:"step_millis"`
	RecordingStart  time.Time     `json:"recording_start"`
	Gaze            bool          `json:"gaze"`
	LostTrackRate   float64       `json:"lost_track_rate"`
	Seed            int64         `json:"seed"`
	Jitter          time.Duration `json:"jitter"`
}

// DefaultExportConfig mirrors a typical facial expression export: 31
// metadata rows, a recording start in the preamble and two stimuli.
func DefaultExportConfig() ExportGeneratorConfig {
	return ExportGeneratorConfig{
		Participant:     "P01",
		PreambleRows:    31,
		Signals:         []string{"Joy", "Anger", "Engagement"},
		Stimuli:         []string{"1", "2"},
		SamplesPerPhase: 20,
		StepMillis:      33.3,
		RecordingStart:  time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
		Seed:            42,
	}
}

// Gaze column names written when Gaze is enabled.
var GazeColumns = []string{"ET_GazeLeftx", "ET_GazeLefty", "ET_GazeRightx", "ET_GazeRighty"}

// ExportGenerator builds raw export tables
type ExportGenerator struct {
	config ExportGeneratorConfig
	rng    *rand.Rand
}

// NewExportGenerator creates a new export generator
func NewExportGenerator(config ExportGeneratorConfig) *ExportGenerator {
	return &ExportGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Header returns the header row of generated exports.
func (g *ExportGenerator) Header() []string {
	header := []string{stream.ColRow, stream.ColTimestamp, stream.ColStimulus, stream.ColSlideEvent}
	header = append(header, g.config.Signals...)
	if g.config.Gaze {
		header = append(header, GazeColumns...)
	}
	return header
}

// Generate returns a raw export. Each stimulus is preceded by a pre-roll of
// samples outside StartMedia, and state columns are only written when they
// change, the way the recording software does it.
func (g *ExportGenerator) Generate() stream.RawTable {
	var raw stream.RawTable
	header := g.Header()

	for i := 0; i < g.config.PreambleRows; i++ {
		row := []string{fmt.Sprintf("#META%02d", i), "", ""}
		if i == 8 {
			row = []string{"#Recording time", "", g.config.RecordingStart.Format("2006-01-02 15:04:05.000 -07:00")}
		}
		raw = append(raw, row)
	}
	raw = append(raw, header)

	ts := 0.0
	rowNum := 1
	for _, stimulus := range g.config.Stimuli {
		for phase, event := range []string{"EndMedia", stream.SlideEventStartMedia} {
			for i := 0; i < g.config.SamplesPerPhase; i++ {
				row := make([]string, len(header))
				row[0] = strconv.Itoa(rowNum)
				row[1] = strconv.FormatFloat(ts, 'f', 3, 64)
				if i == 0 {
					row[2] = stimulus
					row[3] = event
				}
				col := 4
				for range g.config.Signals {
					row[col] = strconv.FormatFloat(g.signal(phase, i), 'f', 5, 64)
					col++
				}
				if g.config.Gaze {
					x, y := 200+g.rng.Float64()*1500, 100+g.rng.Float64()*800
					if g.rng.Float64() < g.config.LostTrackRate {
						x, y = -1, -1
					}
					for _, v := range []float64{x, y, x, y} {
						row[col] = strconv.FormatFloat(v, 'f', 2, 64)
						col++
					}
				}
				raw = append(raw, row)
				rowNum++
				ts += g.config.StepMillis
				if g.config.Jitter > 0 {
					ts += g.rng.Float64() * float64(g.config.Jitter) / float64(time.Millisecond)
				}
			}
		}
	}
	return raw
}

func (g *ExportGenerator) signal(phase, i int) float64 {
	base := 0.1 + 0.8*math.Abs(math.Sin(float64(i+phase)/3))
	return math.Round((base+g.rng.Float64()*0.05)*1e5) / 1e5
}

// WriteCSV writes a raw table as CSV
func WriteCSV(w io.Writer, raw stream.RawTable) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(raw); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
