package imotions

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// HeaderMarker is the first cell of the header row in every export version.
const HeaderMarker = "Row"

// Cleaner turns raw exports into cleaned streams.
type Cleaner struct {
	logger *internal.Logger
}

// NewCleaner creates a cleaner; a nil logger uses the default one.
func NewCleaner(logger *internal.Logger) *Cleaner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Cleaner{logger: logger}
}

// Clean cleans with the default logger.
func Clean(raw stream.RawTable, participant core.ParticipantID, schema Schema) (*stream.CleanedStream, error) {
	return NewCleaner(nil).Clean(raw, participant, schema)
}

// locateHeader returns the index of the first row whose first cell is the
// header marker.
func locateHeader(raw stream.RawTable) (int, error) {
	for i, row := range raw {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff")) == HeaderMarker {
			return i, nil
		}
	}
	return -1, core.ErrHeaderNotFound
}

// Clean locates the header, keeps samples recorded while the target stimulus
// was playing and parses the schema's numeric columns. The raw table is not
// modified.
func (c *Cleaner) Clean(raw stream.RawTable, participant core.ParticipantID, schema Schema) (*stream.CleanedStream, error) {
	headerIdx, err := locateHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", participant, err)
	}

	header := raw[headerIdx]
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	out := &stream.CleanedStream{
		Participant: participant,
		Origin:      core.UnixOrigin,
	}
	if start, ok := ParseRecordingStart(raw[:headerIdx]); ok {
		out.Origin = start
	}

	for _, required := range []string{stream.ColTimestamp, stream.ColSlideEvent} {
		if _, ok := columns[required]; !ok {
			return nil, core.NewSchemaError(string(participant), fmt.Sprintf("required column %q not found", required))
		}
	}

	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		out.Warnings = append(out.Warnings, msg)
		c.logger.Warn("[Cleaner] participant %s: %s", participant, msg)
	}

	for _, name := range schema.Signals {
		if _, ok := columns[name]; ok {
			out.Signals = append(out.Signals, name)
		} else {
			warn("missing signal column %q", name)
		}
	}
	if len(out.Signals) == 0 {
		return nil, fmt.Errorf("participant %s: %w", participant, core.ErrNoUsableColumns)
	}

	var optional []string
	for _, name := range schema.Optional {
		if _, ok := columns[name]; ok {
			optional = append(optional, name)
		} else {
			warn("missing optional column %q", name)
		}
	}
	var text []string
	for _, name := range schema.Text {
		if _, ok := columns[name]; ok {
			text = append(text, name)
		} else {
			warn("missing column %q", name)
		}
	}
	_, hasStimulus := columns[stream.ColStimulus]
	if !hasStimulus {
		warn("missing column %q, stimulus filter disabled", stream.ColStimulus)
	}
	_, hasSentinel := columns[schema.SentinelX]
	sentinel := hasSentinel && schema.SentinelX != ""

	out.Columns = append(out.Columns, baseColumns...)
	out.Columns = append(out.Columns, text...)
	out.Columns = append(out.Columns, out.Signals...)
	out.Columns = append(out.Columns, optional...)

	cell := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		slideEvent string
		stimulus   string
		target     = strings.TrimSpace(schema.Stimulus)
		dropped    int
	)

rows:
	for i := headerIdx + 1; i < len(raw); i++ {
		row := raw[i]

		// State columns apply until superseded.
		if v := cell(row, stream.ColSlideEvent); v != "" {
			slideEvent = v
		}
		if v := cell(row, stream.ColStimulus); v != "" {
			stimulus = v
		}
		if slideEvent != stream.SlideEventStartMedia {
			continue
		}

		ts, ok := parseFloat(cell(row, stream.ColTimestamp))
		if !ok {
			dropped++
			continue
		}

		if hasStimulus && !schema.AllStimuli {
			if stimulus == "" {
				dropped++
				continue
			}
			if target == "" {
				target = stimulus
			}
			if !sameStimulus(stimulus, target) {
				continue
			}
		}

		sample := stream.Sample{
			Line:       i,
			Row:        i - headerIdx - 1,
			Timestamp:  ts,
			Stimulus:   stimulus,
			SlideEvent: slideEvent,
			Values:     make(map[string]float64, len(out.Signals)+len(optional)),
		}
		if v, ok := parseFloat(cell(row, stream.ColRow)); ok {
			sample.Row = int(v)
		}

		for _, name := range out.Signals {
			v, ok := parseFloat(cell(row, name))
			if !ok {
				dropped++
				continue rows
			}
			sample.Values[name] = v
		}
		for _, name := range optional {
			if v, ok := parseFloat(cell(row, name)); ok {
				sample.Values[name] = v
			}
		}
		if sentinel {
			if v, ok := parseFloat(cell(row, schema.SentinelX)); ok && v == -1 {
				dropped++
				continue
			}
		}
		if len(text) > 0 {
			sample.Text = make(map[string]string, len(text))
			for _, name := range text {
				sample.Text[name] = cell(row, name)
			}
		}
		out.Samples = append(out.Samples, sample)
	}

	if !schema.AllStimuli {
		out.Stimulus = target
	}
	out.SortByTimestamp()

	c.logger.Info("[Cleaner] participant %s: %d samples kept, %d dropped, header at row %d",
		participant, len(out.Samples), dropped, headerIdx)
	if len(out.Samples) == 0 {
		warn("no samples left after cleaning")
	}
	return out, nil
}

// parseFloat accepts the numeric forms found in exports; blanks and NaN fail.
func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Some locales export decimal commas.
		v, err = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// sameStimulus compares stimulus markers, numerically when both are numbers
// so "1" and "1.0" match.
func sameStimulus(a, b string) bool {
	if a == b {
		return true
	}
	fa, okA := parseFloat(a)
	fb, okB := parseFloat(b)
	return okA && okB && fa == fb
}
