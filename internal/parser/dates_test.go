package parser

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/reader"
)

func TestSingleCellDateWithRegex(t *testing.T) {
	b := newCSVBase(t, "Prices as of 3/14/2018 10:00 AM\n")

	g := SingleCellDate{
		Sheet: reader.SheetIndex(0), Row: 1, Col: 0,
		Regex: regexp.MustCompile(`Prices as of (\d+/\d+/\d+)`),
	}
	from, until, err := g.Dates(b)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, time.March, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2018, time.March, 15, 0, 0, 0, 0, time.UTC), until)
}

func TestSingleCellDateFromSerial(t *testing.T) {
	b := newCSVBase(t, "43160\n")

	g := SingleCellDate{Sheet: reader.SheetIndex(0), Row: 1, Col: 0}
	from, until, err := g.Dates(b)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, time.March, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2018, time.March, 2, 0, 0, 0, 0, time.UTC), until)
}

func TestSingleCellDateNoMatch(t *testing.T) {
	b := newCSVBase(t, "no date in this cell\n")

	g := SingleCellDate{
		Sheet: reader.SheetIndex(0), Row: 1, Col: 0,
		Regex: regexp.MustCompile(`as of (\d+/\d+/\d+)`),
	}
	_, _, err := g.Dates(b)
	require.Error(t, err)
	var formatErr *reader.FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestTwoCellDate(t *testing.T) {
	b := newCSVBase(t, "3/14/2018,3/20/2018\n")

	g := TwoCellDate{
		SingleCellDate: SingleCellDate{
			Sheet: reader.SheetIndex(0), Row: 1, Col: 0,
			Regex: regexp.MustCompile(`(\d+/\d+/\d+)`),
		},
		EndRow: 1,
		EndCol: 1,
	}
	from, until, err := g.Dates(b)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, time.March, 14, 0, 0, 0, 0, time.UTC), from)
	// the end date is inclusive in the file, exclusive in the quote
	assert.Equal(t, time.Date(2018, time.March, 21, 0, 0, 0, 0, time.UTC), until)
}

func TestTwoCellDateEqualDatesRejected(t *testing.T) {
	b := newCSVBase(t, "3/14/2018,3/14/2018\n")

	g := TwoCellDate{
		SingleCellDate: SingleCellDate{
			Sheet: reader.SheetIndex(0), Row: 1, Col: 0,
			Regex: regexp.MustCompile(`(\d+/\d+/\d+)`),
		},
		EndRow: 1,
		EndCol: 1,
	}
	_, _, err := g.Dates(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the same")
}

func TestFileNameDate(t *testing.T) {
	b := newCSVBase(t, "whatever\n")
	b.fileName = "Matrix Pricing 03_14_2018.xlsx"
	b.format = domain.MatrixFormat{
		AttachmentPattern: `.*(?P<date>\d+[-_]\d+[-_]\d+).*`,
	}

	from, until, err := FileNameDate{}.Dates(b)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, time.March, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2018, time.March, 15, 0, 0, 0, 0, time.UTC), until)
}

func TestFileNameDateErrors(t *testing.T) {
	b := newCSVBase(t, "whatever\n")
	b.fileName = "Matrix Pricing.xlsx"

	// pattern without the date group
	b.format = domain.MatrixFormat{AttachmentPattern: `.*(\d+-\d+-\d+).*`}
	_, _, err := FileNameDate{}.Dates(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"date"`)

	// file name without a date
	b.format = domain.MatrixFormat{AttachmentPattern: `.*(?P<date>\d+-\d+-\d+).*`}
	_, _, err = FileNameDate{}.Dates(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no match")
}
