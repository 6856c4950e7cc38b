package imotions

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"neuropeaks/domain/stream"
)

// WriteCleaned writes a cleaned stream as CSV. The header starts with the
// "Row" marker, so a cleaned file can be fed back through Clean unchanged.
func WriteCleaned(w io.Writer, s *stream.CleanedStream) error {
	cw := csv.NewWriter(w)

	header := append([]string{}, s.Columns...)
	header = append(header, stream.ColParticipant)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for _, sample := range s.Samples {
		for i, name := range s.Columns {
			switch name {
			case stream.ColRow:
				record[i] = strconv.Itoa(sample.Row)
			case stream.ColTimestamp:
				record[i] = formatFloat(sample.Timestamp)
			case stream.ColStimulus:
				record[i] = sample.Stimulus
			case stream.ColSlideEvent:
				record[i] = sample.SlideEvent
			default:
				if v, ok := sample.Values[name]; ok {
					record[i] = formatFloat(v)
				} else {
					record[i] = sample.Text[name]
				}
			}
		}
		record[len(record)-1] = string(s.Participant)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", sample.Row, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCleanedFile writes "<participant>_cleaned.csv" into dir and returns its path.
func WriteCleanedFile(dir string, s *stream.CleanedStream) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_cleaned.csv", s.Participant))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCleaned(f, s); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
