package importer

import (
	"strconv"
	"strings"
)

// ValueKind tags the type a cell carried in the source file.
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is one parsed cell. Spreadsheet cells keep their inferred type
// (number, bool, string); delimited-text cells are always strings. Absent
// marks a column the row simply did not have. Coercion to the types the
// validators need happens through the methods below, never implicitly.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// Absent is the zero Value, returned for columns missing from a row.
var Absent = Value{}

// StringValue wraps a raw string cell.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue wraps a numeric cell.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// BoolValue wraps a boolean cell.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IsAbsent reports whether the column was missing entirely.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// IsBlank reports whether the cell is absent or contains only whitespace.
// Numeric and boolean cells are never blank (zero still stringifies to "0").
func (v Value) IsBlank() bool {
	switch v.Kind {
	case KindAbsent:
		return true
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	}
	return false
}

// String renders the cell the way it would appear in the file. Numbers use
// the shortest exact representation, so integral cells round-trip as "10",
// not "10.000000".
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// Number coerces the cell to a float. A blank or whitespace-only string
// coerces to 0 (present but empty); an absent cell or a non-numeric string
// does not coerce. Booleans coerce to 0/1.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Truthy coerces the cell to a boolean flag. Strings accept the usual
// spreadsheet spellings (true/yes/y/1, case-insensitive).
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "t", "yes", "y", "1":
			return true
		}
	}
	return false
}

// Record is one raw parsed row: column name to cell value. Column names are
// the header row verbatim for spreadsheets and lower-cased/trimmed for
// delimited text.
type Record map[string]Value

// Get returns the cell for a column, or Absent if the row lacks it.
func (r Record) Get(key string) Value {
	if v, ok := r[key]; ok {
		return v
	}
	return Absent
}

// GetAny returns the first present cell among the given columns. Used where
// the two file formats spell the same field differently (the spreadsheet
// template flattens nested attributes into "additional_attributes__x").
func (r Record) GetAny(keys ...string) Value {
	for _, key := range keys {
		if v, ok := r[key]; ok {
			return v
		}
	}
	return Absent
}

// inferValue types a spreadsheet cell the way sheet readers do: numeric
// text becomes a number, true/false becomes a bool, everything else stays
// a string.
func inferValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return NumberValue(f)
	}
	if strings.EqualFold(trimmed, "true") {
		return BoolValue(true)
	}
	if strings.EqualFold(trimmed, "false") {
		return BoolValue(false)
	}
	return StringValue(s)
}
