package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies a source file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned when a format cannot be declared or detected.
var ErrUnknownFormat = errors.New("unknown source format")

// ErrNoHeader is returned for sources without a header row.
var ErrNoHeader = errors.New("empty file: no header row")

// ParseFormat normalizes a declared format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "text/csv", "txt":
		return FormatCSV, nil
	case "xlsx", "xlsm", "excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat picks a format from the declared name, then the locator's
// extension, then the content type reported by the transport.
func DetectFormat(declared, locator, contentType string) (Format, error) {
	if declared != "" {
		return ParseFormat(declared)
	}
	p := locator
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if ext := strings.TrimPrefix(path.Ext(p), "."); ext != "" {
		if f, err := ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if f, err := ParseFormat(mt); err == nil {
				return f, nil
			}
		}
	}
	return "", fmt.Errorf("%w: cannot detect format of %q", ErrUnknownFormat, locator)
}

// ReadOptions tunes row parsing.
type ReadOptions struct {
	// Sheet selects the spreadsheet tab; the first sheet is used when empty.
	Sheet string

	// Comma overrides the delimited-text separator (default ',').
	Comma rune

	// SkipEmptyRows drops rows whose cells are all blank.
	SkipEmptyRows bool
}

// Read parses every data row of r in the given format.
func Read(r io.Reader, format Format, opts ReadOptions) ([]Row, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r, opts)
	case FormatXLSX:
		return ReadXLSX(r, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// ReadCSV parses delimited text. The first record is the header; header cells
// are trimmed, data cells are kept verbatim. Ragged records are tolerated.
func ReadCSV(r io.Reader, opts ReadOptions) ([]Row, error) {
	cr := csv.NewReader(wrapText(r))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	header = cleanHeader(header)

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv at line %d: %w", line, err)
		}
		if opts.SkipEmptyRows && isEmptyRecord(rec) {
			continue
		}
		rows = append(rows, NewRow(header, rec))
	}
	return rows, nil
}

// ReadXLSX parses the selected sheet of a spreadsheet workbook. Cells are read
// raw: numbers keep their stored digits and cells styled with a date or time
// number format become time.Time values in UTC.
func ReadXLSX(r io.Reader, opts ReadOptions) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, ErrNoHeader
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	dates := newDateCells(f, sheet)
	header := cleanHeader(records[0])
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if opts.SkipEmptyRows && isEmptyRecord(rec) {
			continue
		}
		var row Row
		for col, h := range header {
			var v any = ""
			if col < len(rec) {
				v = dates.value(col+1, i+2, rec[col])
			}
			row.Set(h, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// dateCells converts raw serial numbers of date-styled cells to time.Time.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// value returns raw, or the cell's time when it holds a serial number and its
// style has a date number format. col and row are 1-based.
func (d *dateCells) value(col, row int, raw string) any {
	if raw == "" {
		return raw
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleID) {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return raw
	}
	return t
}

func (d *dateCells) isDateStyle(id int) bool {
	if v, ok := d.styles[id]; ok {
		return v
	}
	style, err := d.f.GetStyle(id)
	isDate := err == nil && style != nil && isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	d.styles[id] = isDate
	return isDate
}

// isDateNumFmt reports whether a number format renders dates or times.
// Built-in ids follow ECMA-376 18.8.30, including the CJK date ids.
func isDateNumFmt(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		return isDatePattern(*custom)
	}
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDatePattern looks for date or time letters outside quoted text, escapes
// and bracketed sections such as colors or locales.
func isDatePattern(code string) bool {
	code = strings.ToLower(code)
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '"':
			if end := strings.IndexByte(code[i+1:], '"'); end >= 0 {
				i += end + 1
			} else {
				return false
			}
		case '[':
			if end := strings.IndexByte(code[i+1:], ']'); end >= 0 {
				i += end + 1
			} else {
				return false
			}
		case '\\', '_', '*':
			i++
		case 'y', 'm', 'd', 'h', 's':
			return true
		}
	}
	return false
}

// cleanHeader trims header cells and names blank or repeated columns so keys
// stay unique within a row.
func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

func isEmptyRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
