package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// WriteWorkbook saves a participant's cleaned stream as <dir>/<participant>.xlsx
// with one sheet per stimulus, in first-seen order.
func WriteWorkbook(dir string, s *stream.CleanedStream, cfg WorkbookConfig) (string, error) {
	if s.Len() == 0 {
		return "", fmt.Errorf("participant %s has no samples to write", s.Participant)
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	zero := make(map[string]bool, len(cfg.ZeroFill))
	for _, name := range cfg.ZeroFill {
		zero[name] = true
	}

	used := make(map[string]bool)
	for i, stimulus := range s.Stimuli() {
		sheet := SheetName(stimulus, used)
		used[strings.ToLower(sheet)] = true
		// the new file's default sheet becomes the first stimulus
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return "", fmt.Errorf("failed to name sheet %q: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return "", fmt.Errorf("failed to create sheet %q: %w", sheet, err)
		}

		header := make([]interface{}, len(cfg.Columns))
		for i, name := range cfg.Columns {
			header[i] = name
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return "", fmt.Errorf("failed to write header of %q: %w", sheet, err)
		}

		line := 2
		for _, sample := range s.FilterStimulus(stimulus).Samples {
			row := make([]interface{}, len(cfg.Columns))
			for i, name := range cfg.Columns {
				row[i] = cellValue(sample, s, name, zero[name])
			}
			cell := CellName(0, line)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return "", fmt.Errorf("failed to write row %d of %q: %w", line, sheet, err)
			}
			line++
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.xlsx", s.Participant))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	internal.DefaultLogger.Info("[Workbook] %s written in %.2fms", path, float64(time.Since(start).Nanoseconds())/1e6)
	return path, nil
}

func cellValue(sample stream.Sample, s *stream.CleanedStream, name string, zeroFill bool) interface{} {
	switch name {
	case stream.ColTimestamp:
		return sample.Timestamp
	case stream.ColRow:
		return sample.Row
	case stream.ColStimulus:
		return sample.Stimulus
	case stream.ColSlideEvent:
		return sample.SlideEvent
	case stream.ColParticipant:
		return string(s.Participant)
	}
	if v, ok := sample.Values[name]; ok {
		return v
	}
	if v := sample.Text[name]; v != "" {
		return v
	}
	if zeroFill {
		return 0
	}
	return nil
}

// SheetName makes a valid, unused sheet name from a stimulus name:
// forbidden characters become underscores and the name is cut to 31
// characters. used holds lower-cased names already taken.
func SheetName(stimulus string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(stimulus))
	if name == "" {
		name = "stimulus"
	}
	name = truncateRunes(name, MaxSheetNameLength)
	if !used[strings.ToLower(name)] {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("~%d", i)
		candidate := truncateRunes(name, MaxSheetNameLength-len(suffix)) + suffix
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
