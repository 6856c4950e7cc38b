package excel

// RawRowData represents a row of a sheet as header to cell text
type RawRowData map[string]string

// ExcelData represents one sheet of a workbook
type ExcelData struct {
	Sheet   string
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// MaxSheetNameLength is the longest sheet name a workbook accepts.
const MaxSheetNameLength = 31
