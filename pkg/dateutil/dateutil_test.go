package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExcelNumberToTime(t *testing.T) {
	tests := []struct {
		serial float64
		want   time.Time
	}{
		{1, date(1899, time.December, 31)},
		{61, date(1900, time.March, 1)},
		{43160, date(2018, time.March, 1)},
		{43191, date(2018, time.April, 1)},
		{43160.5, time.Date(2018, time.March, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExcelNumberToTime(tt.serial), "serial %v", tt.serial)
	}
}

func TestTimeToExcelNumberRoundTrip(t *testing.T) {
	for _, tm := range []time.Time{
		date(2018, time.March, 1),
		time.Date(2016, time.July, 8, 6, 0, 0, 0, time.UTC),
	} {
		assert.Equal(t, tm, ExcelNumberToTime(TimeToExcelNumber(tm)))
	}
}

func TestParseDateTime(t *testing.T) {
	for s, want := range map[string]time.Time{
		"2016-07-08":      date(2016, time.July, 8),
		"7/8/2016":        date(2016, time.July, 8),
		"July 8, 2016":    date(2016, time.July, 8),
		"2016-07-08 06:00": time.Date(2016, time.July, 8, 6, 0, 0, 0, time.UTC),
	} {
		got, err := ParseDateTime(s)
		require.NoError(t, err, "input %q", s)
		assert.Equal(t, want, got, "input %q", s)
	}

	_, err := ParseDateTime("not a date")
	assert.Error(t, err)
}

func TestMidnight(t *testing.T) {
	in := time.Date(2016, time.July, 8, 18, 42, 13, 5, time.UTC)
	assert.Equal(t, date(2016, time.July, 8), Midnight(in))
}

func TestMonthArithmetic(t *testing.T) {
	jan := Month{Year: 2018, Month: time.January}

	assert.Equal(t, Month{2018, time.February}, jan.Add(1))
	assert.Equal(t, Month{2019, time.January}, jan.Add(12))
	assert.Equal(t, Month{2017, time.December}, jan.Add(-1))
	assert.Equal(t, Month{2016, time.November}, jan.Add(-14))

	assert.Equal(t, 13, Month{2019, time.February}.Sub(jan))
	assert.Equal(t, -1, Month{2017, time.December}.Sub(jan))

	assert.Equal(t, date(2018, time.January, 1), jan.First())
	assert.Equal(t, date(2018, time.January, 31), jan.Last())
	assert.Equal(t, 31, jan.Days())
	assert.Equal(t, 28, Month{2018, time.February}.Days())
	assert.Equal(t, 29, Month{2016, time.February}.Days())
}

func TestStartOfNextMonth(t *testing.T) {
	assert.Equal(t, date(2018, time.April, 1),
		StartOfNextMonth(date(2018, time.March, 15)))
	assert.Equal(t, date(2019, time.January, 1),
		StartOfNextMonth(date(2018, time.December, 31)))
}

func TestMonthOf(t *testing.T) {
	assert.Equal(t, Month{2018, time.March}, MonthOf(date(2018, time.March, 15)))
}
