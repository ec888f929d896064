package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SourceFormat identifies how an uploaded file was parsed.
type SourceFormat int

const (
	FormatWorkbook SourceFormat = iota // spreadsheet workbook (.xlsx/.xls)
	FormatDelimited                    // delimited text (.csv/.txt)
)

// FormatError marks a file that cannot be parsed at all: wrong extension for
// the target entity kind, or unreadable content. It is batch-fatal and is
// reported as a single synthetic row-0 error; per-cell problems never raise
// it and surface as row validation errors instead.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

// ParseFile converts an uploaded file into raw records. The format is
// chosen by file extension; content that fails to parse under the chosen
// format yields a *FormatError. All cells pass through untyped-but-tagged
// (see Value); no validation happens here.
func ParseFile(data []byte, fileName string) ([]Record, SourceFormat, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xls":
		records, err := parseWorkbook(data)
		return records, FormatWorkbook, err
	case ".csv", ".txt":
		records, err := parseDelimited(data)
		return records, FormatDelimited, err
	default:
		return nil, 0, &FormatError{
			Reason: "Failed to process file. Please ensure the file format is correct.",
		}
	}
}

// ParseForKind parses a file for a specific entity kind, enforcing the
// per-kind format restriction: BOM uploads accept workbooks only, Item
// uploads accept workbooks or delimited text.
func ParseForKind(data []byte, fileName string, kind Kind) ([]Record, SourceFormat, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if kind == KindBOM && ext != ".xlsx" && ext != ".xls" {
		return nil, 0, &FormatError{
			Reason: "Unsupported file format. Please upload an XLSX file.",
		}
	}
	return ParseFile(data, fileName)
}

// parseWorkbook reads the first sheet of a workbook. The header row is used
// verbatim (trimmed) as record keys; blank cells are omitted from records
// and fully empty rows are skipped, matching how sheet readers emit JSON.
func parseWorkbook(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("read workbook: %v", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("read sheet %q: %v", sheet, err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	var records []Record
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, key := range header {
			if key == "" || i >= len(row) {
				continue
			}
			if strings.TrimSpace(row[i]) == "" {
				continue
			}
			rec[key] = inferValue(row[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseDelimited reads comma-separated text. Headers are lower-cased and
// trimmed; every cell stays a string (the validators coerce). Empty rows
// are skipped greedily.
func parseDelimited(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(sanitizeUTF8(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("parse delimited text: %v", err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var records []Record
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(row) {
				rec[key] = StringValue(row[i])
			} else {
				rec[key] = StringValue("")
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune so
// the CSV reader never chokes on stray Windows-1252 bytes.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
