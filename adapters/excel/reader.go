package excel

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// DataReader reads participant workbooks
type DataReader struct {
	filePath string
}

// NewDataReader creates a reader for a workbook written by WriteWorkbook
func NewDataReader(filePath string) *DataReader {
	return &DataReader{filePath: filePath}
}

// Sheets lists the workbook's sheets in order.
func (r *DataReader) Sheets() ([]string, error) {
	f, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadSheet reads one sheet into structured format
func (r *DataReader) ReadSheet(sheet string) (*ExcelData, error) {
	f, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	readStart := time.Now()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, core.NewNotFoundError("sheet", sheet)
	}
	internal.DefaultLogger.Debug("[DataReader] %s read in %.2fms (%d rows)", sheet, float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, core.NewSchemaError(sheet, "sheet must have at least a header row and one data row")
	}
	data := r.processRows(rows)
	data.Sheet = sheet
	return data, nil
}

func (r *DataReader) open() (*excelize.File, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, core.NewNotFoundError("workbook", r.filePath)
	}
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, core.NewParseError(r.filePath, err)
	}
	return f, nil
}

// processRows converts raw string rows into ExcelData format
func (r *DataReader) processRows(rows [][]string) *ExcelData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		rowData := make(RawRowData)
		for j, cell := range rows[i] {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		dataRows = append(dataRows, rowData)
	}

	internal.DefaultLogger.Info("[DataReader] workbook sheet processed (%d columns, %d rows)", len(headers), len(dataRows))
	return &ExcelData{Headers: headers, Rows: dataRows}
}

// NumericColumns returns the headers whose non-blank cells all parse as
// numbers. Columns with no values at all are not numeric.
func NumericColumns(data *ExcelData) []string {
	var out []string
	for _, header := range data.Headers {
		seen := 0
		numeric := true
		for _, row := range data.Rows {
			v := row[header]
			if v == "" {
				continue
			}
			seen++
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
				break
			}
		}
		if numeric && seen > 0 {
			out = append(out, header)
		}
	}
	return out
}

// alwaysText are identifiers even when they look numeric.
var alwaysText = map[string]bool{
	stream.ColStimulus:    true,
	stream.ColSlideEvent:  true,
	stream.ColParticipant: true,
}

// Frame lays a sheet out on the clock: Timestamp holds milliseconds from
// origin. Numeric columns are parsed, blanks become NaN. Other columns and
// the stimulus, event and participant ids stay text. Rows without a
// timestamp are dropped.
func Frame(data *ExcelData, origin time.Time) (*stream.Frame, error) {
	numeric := make(map[string]bool)
	for _, name := range NumericColumns(data) {
		numeric[name] = true
	}
	if !numeric[stream.ColTimestamp] {
		return nil, core.NewSchemaError(data.Sheet, "no numeric Timestamp column")
	}

	var rows []RawRowData
	var times []time.Time
	for _, row := range data.Rows {
		ms, err := strconv.ParseFloat(row[stream.ColTimestamp], 64)
		if err != nil {
			continue
		}
		rows = append(rows, row)
		times = append(times, core.AtMillis(origin, ms))
	}

	frame := stream.NewFrame(times)
	for _, header := range data.Headers {
		if header == "" || header == stream.ColTimestamp || frame.Has(header) {
			continue
		}
		if numeric[header] && !alwaysText[header] {
			col := make([]float64, len(rows))
			for i, row := range rows {
				v, err := strconv.ParseFloat(row[header], 64)
				if err != nil {
					v = math.NaN()
				}
				col[i] = v
			}
			frame.SetNumeric(header, col)
			continue
		}
		col := make([]string, len(rows))
		for i, row := range rows {
			col[i] = row[header]
		}
		frame.SetText(header, col)
	}
	return frame, nil
}

// columnIndexToLetter converts 0-based column index to Excel column letter (A, B, ..., Z, AA, AB, ...)
func columnIndexToLetter(colIdx int) string {
	result := ""
	colIdx++ // Excel is 1-indexed internally
	for colIdx > 0 {
		colIdx--
		result = string(rune('A'+(colIdx%26))) + result
		colIdx /= 26
	}
	return result
}

// CellName returns the A1 reference of a 0-based column and 1-based row.
func CellName(col, row int) string {
	return fmt.Sprintf("%s%d", columnIndexToLetter(col), row)
}
