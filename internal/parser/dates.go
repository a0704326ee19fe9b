package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/dateutil"
)

// DateGetter determines the validity dates shared by every quote in a file.
// Not all formats use one; some have different dates per quote.
type DateGetter interface {
	// Dates returns the validity start (inclusive) and end (exclusive).
	Dates(p *base) (validFrom, validUntil time.Time, err error)
}

// SingleCellDate reads one date from a spreadsheet cell. Quotes expire one
// day after they become valid.
type SingleCellDate struct {
	Sheet reader.Sheet
	Row   int
	Col   int

	// Regex has one capture group that parses as a date; nil means the cell
	// value is a date or date serial already.
	Regex *regexp.Regexp
}

func (g SingleCellDate) dateFromCell(p *base, row, col int) (time.Time, error) {
	if g.Regex == nil {
		return p.spreadsheet.GetTime(g.Sheet, row, col)
	}
	groups, err := p.spreadsheet.GetMatches(g.Sheet, row, col, g.Regex)
	if err != nil {
		return time.Time{}, err
	}
	t, err := dateutil.ParseDateTime(groups[0])
	if err != nil {
		return time.Time{}, reader.FormatErrorf("cannot parse date %q: %v", groups[0], err)
	}
	return t, nil
}

func (g SingleCellDate) Dates(p *base) (time.Time, time.Time, error) {
	validFrom, err := g.dateFromCell(p, g.Row, g.Col)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return validFrom, validFrom.AddDate(0, 0, 1), nil
}

// TwoCellDate reads the validity start and end dates from two cells.
type TwoCellDate struct {
	SingleCellDate
	EndRow int
	EndCol int
}

func (g TwoCellDate) Dates(p *base) (time.Time, time.Time, error) {
	validFrom, _, err := g.SingleCellDate.Dates(p)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	validUntil, err := g.dateFromCell(p, g.EndRow, g.EndCol)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	// equal dates usually mean two coordinate pairs fuzzily matched the
	// same text, not a zero-length validity period
	if validFrom.Equal(validUntil) {
		return time.Time{}, time.Time{}, reader.FormatErrorf(
			"validity start and end dates are the same: %s", validFrom)
	}
	return validFrom, validUntil.AddDate(0, 0, 1), nil
}

// FileNameDate reads the date from the file name, using the format's
// attachment pattern, which must have a group named "date".
type FileNameDate struct{}

const fileNameDateGroup = "date"

func (g FileNameDate) Dates(p *base) (time.Time, time.Time, error) {
	re, err := regexp.Compile(p.format.AttachmentPattern)
	if err != nil {
		return time.Time{}, time.Time{}, reader.FormatErrorf(
			"invalid attachment pattern %q: %v", p.format.AttachmentPattern, err)
	}
	idx := re.SubexpIndex(fileNameDateGroup)
	if idx < 0 {
		return time.Time{}, time.Time{}, reader.FormatErrorf(
			"regular expression %q must have a group named %q", re, fileNameDateGroup)
	}
	groups, err := reader.ExtractGroups(re, p.fileName)
	if err != nil {
		return time.Time{}, time.Time{}, reader.FormatErrorf(
			"no match for %q in file name %q", re, p.fileName)
	}
	// underscores are a common separator in file names that the date parser
	// does not understand
	dateStr := strings.ReplaceAll(groups[idx-1], "_", "-")
	validFrom, err := dateutil.ParseDateTime(dateStr)
	if err != nil {
		return time.Time{}, time.Time{}, reader.FormatErrorf(
			"cannot parse date %q from file name %q: %v", dateStr, p.fileName, err)
	}
	return validFrom, validFrom.AddDate(0, 0, 1), nil
}
