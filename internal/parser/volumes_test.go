package parser

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/units"
)

// newCSVBase builds a base over an in-memory CSV sheet, with volumes read and
// written in kWh unless a test overrides the units.
func newCSVBase(t *testing.T, csv string) *base {
	t.Helper()
	b := newBase("test")
	b.spreadsheet = reader.NewSpreadsheet(reader.FormatCSV)
	require.NoError(t, b.spreadsheet.Load([]byte(csv), "test.csv"))
	b.fileName = "test.csv"
	b.expectedUnit = units.KWh
	return &b
}

var lowHighPattern = regexp.MustCompile(`(?P<low>[\d,]+)\s*-\s*(?P<high>[\d,]+)`)

func TestFudge(t *testing.T) {
	assert.Equal(t, 100.0, fudge(101, 10))
	assert.Equal(t, 100.0, fudge(99, 10))
	assert.Equal(t, 50.0, fudge(49, 10))
	assert.Equal(t, 105.0, fudge(105, 10))
	assert.Equal(t, 0.0, fudge(0, 10))

	assert.Equal(t, 5.0, fudge(6, 5))
	assert.Equal(t, 5.0, fudge(4, 5))
	assert.Equal(t, 7.0, fudge(7, 5))
}

func TestExtractVolumeRange(t *testing.T) {
	b := newCSVBase(t, "150 - 200\n")

	vr, err := b.extractVolumeRange(reader.SheetIndex(0), 1, 0, lowHighPattern, volumeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 150.0, vr.Low)
	require.NotNil(t, vr.High)
	assert.Equal(t, 200.0, *vr.High)
	assert.Equal(t, "150-200", vr.String())
}

func TestExtractVolumeRangeConvertsUnits(t *testing.T) {
	b := newCSVBase(t, "150 - 200\n")
	b.expectedUnit = units.MWh

	vr, err := b.extractVolumeRange(reader.SheetIndex(0), 1, 0, lowHighPattern, volumeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 150000.0, vr.Low)
	assert.Equal(t, 200000.0, *vr.High)
}

func TestExtractVolumeRangeOnlyHigh(t *testing.T) {
	b := newCSVBase(t, `"Under 5,000 therms"`+"\n")

	re := regexp.MustCompile(`Under (?P<high>[\d,]+)`)
	vr, err := b.extractVolumeRange(reader.SheetIndex(0), 1, 0, re, volumeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, vr.Low)
	assert.Equal(t, 5000.0, *vr.High)

	// an open-ended band has no high at all
	b = newCSVBase(t, "500 and up\n")
	re = regexp.MustCompile(`(?P<low>[\d,]+) and up`)
	vr, err = b.extractVolumeRange(reader.SheetIndex(0), 1, 0, re, volumeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 500.0, vr.Low)
	assert.Nil(t, vr.High)
	assert.Equal(t, "500 and up", vr.String())
}

func TestExtractVolumeRangeFudges(t *testing.T) {
	b := newCSVBase(t, "101 - 199\n")

	vr, err := b.extractVolumeRange(reader.SheetIndex(0), 1, 0, lowHighPattern,
		volumeOptions{fudgeLow: true, fudgeHigh: true})
	require.NoError(t, err)
	assert.Equal(t, 100.0, vr.Low)
	assert.Equal(t, 200.0, *vr.High)

	// custom block size
	b = newCSVBase(t, "6 - 9\n")
	vr, err = b.extractVolumeRange(reader.SheetIndex(0), 1, 0, lowHighPattern,
		volumeOptions{fudgeLow: true, fudgeHigh: true, fudgeBlockSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, vr.Low)
	assert.Equal(t, 10.0, *vr.High)
}

func TestExtractVolumeRangeErrors(t *testing.T) {
	b := newCSVBase(t, "150 - 200\n")

	// pattern without named groups is a programming error
	_, err := b.extractVolumeRange(reader.SheetIndex(0), 1, 0, regexp.MustCompile(`(\d+)`), volumeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "low")

	// cell that does not match the pattern
	b = newCSVBase(t, "no volumes here\n")
	_, err = b.extractVolumeRange(reader.SheetIndex(0), 1, 0, lowHighPattern, volumeOptions{})
	var formatErr *reader.FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestExtractVolumeRangesHorizontal(t *testing.T) {
	b := newCSVBase(t, "0 - 100,100 - 200,200 - 300\n")

	ranges, err := b.extractVolumeRangesHorizontal(
		reader.SheetIndex(0), 1, 0, 2, lowHighPattern, false, volumeOptions{})
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, 0.0, ranges[0].Low)
	assert.Equal(t, 300.0, *ranges[2].High)
}

func TestExtractVolumeRangesHorizontalNotContiguous(t *testing.T) {
	b := newCSVBase(t, "0 - 100,150 - 250\n")

	_, err := b.extractVolumeRangesHorizontal(
		reader.SheetIndex(0), 1, 0, 1, lowHighPattern, false, volumeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not contiguous")
}

func TestExtractVolumeRangesHorizontalRestartAtZero(t *testing.T) {
	// two groups of bands on one row, the second starting over from zero
	b := newCSVBase(t, "0 - 100,100 - 200,0 - 50,50 - 150\n")

	ranges, err := b.extractVolumeRangesHorizontal(
		reader.SheetIndex(0), 1, 0, 3, lowHighPattern, true, volumeOptions{})
	require.NoError(t, err)
	assert.Len(t, ranges, 4)

	_, err = b.extractVolumeRangesHorizontal(
		reader.SheetIndex(0), 1, 0, 3, lowHighPattern, false, volumeOptions{})
	assert.Error(t, err)
}
