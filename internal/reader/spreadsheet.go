package reader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nexbill/matrix-ingest/pkg/dateutil"
)

// SpreadsheetFormat selects how Load interprets the file bytes.
type SpreadsheetFormat int

const (
	// FormatXLSX covers the zip-based Office formats excelize can open.
	// Legacy xls files are converted to xlsx by the preprocessor first.
	FormatXLSX SpreadsheetFormat = iota
	// FormatCSV is a single-sheet comma-separated file, including the
	// output of the PDF tabulariser.
	FormatCSV
)

// Sheet addresses one sheet of a workbook, by zero-based index or by title.
type Sheet struct {
	title   string
	index   int
	byTitle bool
}

// SheetIndex addresses a sheet by zero-based position.
func SheetIndex(i int) Sheet { return Sheet{index: i} }

// SheetTitle addresses a sheet by its title.
func SheetTitle(t string) Sheet { return Sheet{title: t, byTitle: true} }

func (s Sheet) String() string {
	if s.byTitle {
		return s.title
	}
	return fmt.Sprintf("#%d", s.index)
}

type sheetData struct {
	title string
	rows  [][]string
	width int
}

// Spreadsheet reads a whole workbook into memory and serves typed,
// coordinate-addressed cell access. Rows are 1-based as shown in
// spreadsheet UIs (the header is row 1); columns are zero-based indices or
// letters via Col.
type Spreadsheet struct {
	format   SpreadsheetFormat
	fileName string
	sheets   []sheetData
	loaded   bool
}

// NewSpreadsheet returns an empty reader for the given format.
func NewSpreadsheet(format SpreadsheetFormat) *Spreadsheet {
	return &Spreadsheet{format: format}
}

// Load reads the whole workbook into memory. May be expensive for big files.
func (r *Spreadsheet) Load(data []byte, fileName string) error {
	r.fileName = fileName
	r.sheets = nil
	r.loaded = false

	switch r.format {
	case FormatCSV:
		cr := csv.NewReader(bytes.NewReader(data))
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		records, err := cr.ReadAll()
		if err != nil {
			return &ReadError{FileName: fileName, Err: err}
		}
		r.sheets = []sheetData{buildSheet("", records)}
	case FormatXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return &ReadError{FileName: fileName, Err: err}
		}
		defer f.Close()
		for _, title := range f.GetSheetList() {
			rows, err := f.GetRows(title, excelize.Options{RawCellValue: true})
			if err != nil {
				return &ReadError{FileName: fileName, Err: err}
			}
			r.sheets = append(r.sheets, buildSheet(title, rows))
		}
	default:
		return &ReadError{FileName: fileName, Err: fmt.Errorf("unknown spreadsheet format %d", r.format)}
	}

	r.loaded = true
	return nil
}

func buildSheet(title string, rows [][]string) sheetData {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return sheetData{title: title, rows: rows, width: width}
}

// Loaded reports whether Load has succeeded.
func (r *Spreadsheet) Loaded() bool { return r.loaded }

// FileName returns the name passed to Load.
func (r *Spreadsheet) FileName() string { return r.fileName }

// SheetTitles returns the titles of all sheets in workbook order.
func (r *Spreadsheet) SheetTitles() []string {
	titles := make([]string, len(r.sheets))
	for i, s := range r.sheets {
		titles[i] = s.title
	}
	return titles
}

func (r *Spreadsheet) sheet(ref Sheet) (*sheetData, error) {
	if ref.byTitle {
		for i := range r.sheets {
			if r.sheets[i].title == ref.title {
				return &r.sheets[i], nil
			}
		}
		return nil, FormatErrorf("no sheet named %q in %s", ref.title, r.fileName)
	}
	if ref.index < 0 || ref.index >= len(r.sheets) {
		return nil, FormatErrorf("no sheet %d in %s (%d sheets)", ref.index, r.fileName, len(r.sheets))
	}
	return &r.sheets[ref.index], nil
}

// Height returns the number of rows in the sheet, header included.
func (r *Spreadsheet) Height(ref Sheet) (int, error) {
	s, err := r.sheet(ref)
	if err != nil {
		return 0, err
	}
	return len(s.rows), nil
}

// Width returns the number of columns in the sheet.
func (r *Spreadsheet) Width(ref Sheet) (int, error) {
	s, err := r.sheet(ref)
	if err != nil {
		return 0, err
	}
	return s.width, nil
}

func (r *Spreadsheet) cell(ref Sheet, row, col int) (string, error) {
	s, err := r.sheet(ref)
	if err != nil {
		return "", err
	}
	if row < 1 || row > len(s.rows) || col < 0 || col >= s.width {
		return "", FormatErrorf("no cell (%d, %d) in sheet %s of %s", row, col, ref, r.fileName)
	}
	line := s.rows[row-1]
	if col >= len(line) {
		// trailing empty cells are trimmed by the workbook reader
		return "", nil
	}
	return line[col], nil
}

// GetString returns the text of a cell. Missing trailing cells read as "".
func (r *Spreadsheet) GetString(ref Sheet, row, col int) (string, error) {
	return r.cell(ref, row, col)
}

// GetFloat returns a cell parsed as a number, tolerating comma separators.
func (r *Spreadsheet) GetFloat(ref Sheet, row, col int) (float64, error) {
	text, err := r.cell(ref, row, col)
	if err != nil {
		return 0, err
	}
	v, err := ParseNumber(text)
	if err != nil {
		return 0, r.typeError(ref, row, col, "number", text)
	}
	return v, nil
}

// GetInt returns a cell parsed as an integer. Numbers stored as floats with
// a zero fraction (a spreadsheet favourite) are accepted.
func (r *Spreadsheet) GetInt(ref Sheet, row, col int) (int, error) {
	text, err := r.cell(ref, row, col)
	if err != nil {
		return 0, err
	}
	v, err := ParseInt(text)
	if err != nil {
		return 0, r.typeError(ref, row, col, "integer", text)
	}
	return v, nil
}

// GetTime returns a cell parsed as a date: either a spreadsheet serial
// number or a date string in any common format.
func (r *Spreadsheet) GetTime(ref Sheet, row, col int) (time.Time, error) {
	text, err := r.cell(ref, row, col)
	if err != nil {
		return time.Time{}, err
	}
	if serial, err := ParseNumber(text); err == nil {
		return dateutil.ExcelNumberToTime(serial), nil
	}
	t, err := dateutil.ParseDateTime(text)
	if err != nil {
		return time.Time{}, r.typeError(ref, row, col, "date", text)
	}
	return t, nil
}

// GetMatches fetches a cell as text, matches the regular expression against
// it anchored at the start, and returns the capture groups.
func (r *Spreadsheet) GetMatches(ref Sheet, row, col int, re *regexp.Regexp) ([]string, error) {
	text, err := r.cell(ref, row, col)
	if err != nil {
		return nil, err
	}
	groups, err := ExtractGroups(re, text)
	if err != nil {
		return nil, FormatErrorf("at (%s, %d, %d) of %s: %v", ref, row, col, r.fileName, err)
	}
	return groups, nil
}

// typeError builds a FormatError that includes the neighbouring cell values,
// which is usually enough to see how a supplier shifted their layout.
func (r *Spreadsheet) typeError(ref Sheet, row, col int, wanted, found string) error {
	neighbor := func(dr, dc int) string {
		v, err := r.cell(ref, row+dr, col+dc)
		if err != nil {
			return "<none>"
		}
		return v
	}
	return FormatErrorf(
		"at (%s, %d, %d) of %s: expected %s, found %q. neighbors are up: %q down: %q left: %q right: %q",
		ref, row, col, r.fileName, wanted, found,
		neighbor(-1, 0), neighbor(1, 0), neighbor(0, -1), neighbor(0, 1))
}
