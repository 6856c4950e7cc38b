package excel

import "neuropeaks/domain/stream"

// WorkbookConfig selects what a participant workbook holds
type WorkbookConfig struct {
	Columns  []string `json:"columns"`   // written in order, absent ones as blank
	ZeroFill []string `json:"zero_fill"` // blanks in these columns are written as 0
}

// DefaultWorkbookConfig lays out the image experiment workbook.
func DefaultWorkbookConfig(emotions, extra []string) WorkbookConfig {
	columns := []string{
		stream.ColTimestamp, stream.ColRow, "StimType", "Duration", stream.ColStimulus,
		"CollectionPhase", stream.ColSlideEvent, stream.ColParticipant, "SampleNumber",
	}
	columns = append(columns, emotions...)
	columns = append(columns, extra...)
	return WorkbookConfig{
		Columns:  columns,
		ZeroFill: append([]string(nil), emotions...),
	}
}
