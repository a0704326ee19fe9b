// Package reader provides coordinate-addressed access to the cells of
// supplier matrix files: spreadsheets (xlsx, csv) and PDFs. Parsers address
// spreadsheet cells by sheet/row/column and PDF text boxes by page and
// user-space coordinates.
package reader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FormatError means the shape of a loaded file is not what the parser
// expects: a missing cell, a cell of the wrong type, or text that a required
// regular expression cannot match.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return e.Msg }

// FormatErrorf builds a FormatError the way fmt.Errorf builds errors.
func FormatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

// ReadError means the file could not be loaded at all.
type ReadError struct {
	FileName string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.FileName, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ParseNumber converts a number string formatted for American humans (with
// commas) to a float.
func ParseNumber(s string) (float64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, FormatErrorf("string %q could not be converted to a number", s)
	}
	return v, nil
}

// ParseInt is ParseNumber restricted to integral values.
func ParseInt(s string) (int, error) {
	v, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) {
		return 0, FormatErrorf("string %q is not an integer", s)
	}
	return int(v), nil
}

// Col converts a spreadsheet column letter (A-Z, AA-AZ, ...) to a zero-based
// index, case-insensitively. It panics on an invalid letter, so it is meant
// for the column constants parsers declare, like regexp.MustCompile.
func Col(letter string) int {
	idx, err := ColIndex(letter)
	if err != nil {
		panic(err)
	}
	return idx
}

// ColIndex is Col with an error return.
func ColIndex(letter string) (int, error) {
	if letter == "" {
		return 0, fmt.Errorf("empty column letter")
	}
	result := 0
	for _, c := range strings.ToUpper(letter) {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", letter)
		}
		result = result*26 + int(c-'A') + 1
	}
	return result - 1, nil
}

// ColumnRange returns the column indices from start to stop, inclusive at
// both ends, mirroring how column blocks are declared in matrix formats.
func ColumnRange(start, stop int) []int {
	return ColumnRangeStep(start, stop, 1)
}

// ColumnRangeStep is ColumnRange with a stride, for formats whose price
// columns interleave with other data.
func ColumnRangeStep(start, stop, step int) []int {
	if step <= 0 || stop < start {
		return nil
	}
	out := make([]int, 0, (stop-start)/step+1)
	for c := start; c <= stop; c += step {
		out = append(out, c)
	}
	return out
}

// matchStart applies re to text anchored at the beginning and returns the
// submatches, or nil when there is no match at position zero.
func matchStart(re *regexp.Regexp, text string) []string {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil || loc[0] != 0 {
		return nil
	}
	m := re.FindStringSubmatch(text)
	return m
}

// ExtractGroups matches re against text (anchored at the start, with the
// whole text available to the pattern) and returns the capture groups. A
// FormatError is returned when the text does not match.
func ExtractGroups(re *regexp.Regexp, text string) ([]string, error) {
	m := matchStart(re, text)
	if m == nil {
		return nil, FormatErrorf("no match for %q in %q", re, text)
	}
	return m[1:], nil
}
