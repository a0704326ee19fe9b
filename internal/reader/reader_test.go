package reader

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	for input, want := range map[string]float64{
		"42":        42,
		"42.5":      42.5,
		"1,000":     1000,
		"1,234,567": 1234567,
		" 12 ":      12,
		"-3.25":     -3.25,
	} {
		got, err := ParseNumber(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	for _, input := range []string{"", "abc", "12abc"} {
		_, err := ParseNumber(input)
		assert.Error(t, err, "input %q", input)
		var formatErr *FormatError
		assert.ErrorAs(t, err, &formatErr)
	}
}

func TestParseInt(t *testing.T) {
	got, err := ParseInt("1,200")
	require.NoError(t, err)
	assert.Equal(t, 1200, got)

	// spreadsheets love storing integers as floats
	got, err = ParseInt("12.0")
	require.NoError(t, err)
	assert.Equal(t, 12, got)

	_, err = ParseInt("12.5")
	assert.Error(t, err)
}

func TestCol(t *testing.T) {
	assert.Equal(t, 0, Col("A"))
	assert.Equal(t, 1, Col("B"))
	assert.Equal(t, 25, Col("Z"))
	assert.Equal(t, 26, Col("AA"))
	assert.Equal(t, 27, Col("ab"))
	assert.Equal(t, 701, Col("ZZ"))

	assert.Panics(t, func() { Col("1") })
	assert.Panics(t, func() { Col("") })
}

func TestColumnRange(t *testing.T) {
	assert.Equal(t, []int{8, 9, 10, 11, 12, 13}, ColumnRange(8, 13))
	assert.Equal(t, []int{5}, ColumnRange(5, 5))
	assert.Nil(t, ColumnRange(5, 4))
}

func TestColumnRangeStep(t *testing.T) {
	assert.Equal(t, []int{2, 4, 6}, ColumnRangeStep(2, 6, 2))
	assert.Equal(t, []int{2, 4, 6}, ColumnRangeStep(2, 7, 2))
	assert.Equal(t, []int{3}, ColumnRangeStep(3, 3, 5))
	assert.Nil(t, ColumnRangeStep(2, 6, 0))
}

func TestExtractGroups(t *testing.T) {
	re := regexp.MustCompile(`as of (\d+/\d+/\d+)`)

	groups, err := ExtractGroups(re, "as of 3/14/2018 10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, []string{"3/14/2018"}, groups)

	// the match must be anchored at the start
	_, err = ExtractGroups(re, "prices as of 3/14/2018")
	require.Error(t, err)
	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = ExtractGroups(re, "no date here")
	assert.Error(t, err)
}

func TestExtractGroupsNamed(t *testing.T) {
	re := regexp.MustCompile(`(?P<low>\d+)\s*-\s*(?P<high>\d+)`)
	groups, err := ExtractGroups(re, "150 - 200")
	require.NoError(t, err)
	assert.Equal(t, []string{"150", "200"}, groups)
}
