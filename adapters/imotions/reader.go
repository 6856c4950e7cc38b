package imotions

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader reads tracking platform exports saved as CSV or XLSX
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a reader for a CSV or Excel export
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "csv"
	if ext == ".xlsx" || ext == ".xlsm" {
		fileType = "xlsx"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadRaw reads the whole export, preamble included, without interpreting it.
func (r *DataReader) ReadRaw() (stream.RawTable, error) {
	internal.DefaultLogger.Info("[DataReader] Reading %s export: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, core.NewNotFoundError("export", r.filePath)
	}

	switch r.fileType {
	case "xlsx":
		return r.readExcel()
	default:
		f, err := os.Open(r.filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV file: %w", err)
		}
		defer f.Close()
		return ReadRawCSV(f, r.filePath)
	}
}

// ReadRawCSV parses a CSV export. Preamble rows are shorter than data rows,
// so the field count is not enforced.
func ReadRawCSV(src io.Reader, name string) (stream.RawTable, error) {
	start := time.Now()
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewParseError(name, err)
	}
	internal.DefaultLogger.Debug("[DataReader] CSV read in %.2fms (%d rows)", float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return stream.RawTable(rows), nil
}

// readExcel reads the first sheet of a workbook export
func (r *DataReader) readExcel() (stream.RawTable, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, core.NewParseError(r.filePath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewParseError(r.filePath, fmt.Errorf("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, core.NewParseError(r.filePath, err)
	}
	internal.DefaultLogger.Debug("[DataReader] Sheet %q read in %.2fms (%d rows)", sheets[0], float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return stream.RawTable(rows), nil
}

// recordingTimeRow is where the export preamble stores the recording start.
const recordingTimeRow = 8

var recordingTimeLayouts = []string{
	"2006-01-02 15:04:05.000 -07:00",
	"2006-01-02 15:04:05.000 Z07:00",
	"2006-01-02 15:04:05.000-07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02T15:04:05.000Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

// ParseRecordingStart extracts the recording start instant from the export
// preamble. The canonical location is checked first, then every preamble cell.
func ParseRecordingStart(raw stream.RawTable) (time.Time, bool) {
	if recordingTimeRow < len(raw) && len(raw[recordingTimeRow]) > 2 {
		if t, ok := parseRecordingTime(raw[recordingTimeRow][2]); ok {
			return t, true
		}
	}

	header, err := locateHeader(raw)
	if err != nil {
		header = len(raw)
	}
	for _, row := range raw[:header] {
		for _, cell := range row {
			if t, ok := parseRecordingTime(cell); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func parseRecordingTime(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	if len(cell) < len("2006-01-02 15:04:05") {
		return time.Time{}, false
	}
	for _, layout := range recordingTimeLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
