package imotions

import (
	"neuropeaks/domain/stream"
	"neuropeaks/internal/config"
)

// Schema declares which columns of an export a pipeline uses.
type Schema struct {
	Signals    []string // numeric, a row missing any of them is dropped
	Optional   []string // numeric, kept when parseable
	Text       []string // copied verbatim
	SentinelX  string   // gaze column whose -1 marks a lost track
	Stimulus   string   // target stimulus, empty for the reference stimulus
	AllStimuli bool
}

// SchemaFromProfile derives the ingestion schema of an experiment profile.
// A profile declaring Required columns keeps its signals as optional, so a
// row only needs the required ones.
func SchemaFromProfile(p config.Profile) Schema {
	s := Schema{
		Signals:    p.Signals,
		Text:       p.Columns,
		Stimulus:   p.Stimulus,
		AllStimuli: p.AllStimuli,
	}
	if len(p.Required) > 0 {
		s.Signals = p.Required
		s.Optional = appendMissing(s.Optional, s.Signals, p.Signals...)
	}
	s.Optional = appendMissing(s.Optional, s.Signals, p.Optional...)
	if p.Gaze.Enabled() {
		s.Optional = appendMissing(s.Optional, s.Signals, p.Gaze.Columns()...)
		s.SentinelX = p.Gaze.RightX
	}
	return s
}

// appendMissing appends the names found in neither dst nor required.
func appendMissing(dst, required []string, names ...string) []string {
	seen := make(map[string]bool, len(dst)+len(required))
	for _, name := range dst {
		seen[name] = true
	}
	for _, name := range required {
		seen[name] = true
	}
	for _, name := range names {
		if !seen[name] {
			dst = append(dst, name)
			seen[name] = true
		}
	}
	return dst
}

// baseColumns are always carried by a cleaned stream.
var baseColumns = []string{stream.ColRow, stream.ColTimestamp, stream.ColStimulus, stream.ColSlideEvent}
