// Package dateutil holds the calendar helpers the matrix parsers share:
// month arithmetic, the spreadsheet epoch, and lenient date-string parsing.
package dateutil

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// excelEpoch is the day-zero of the 1900 date system as used by Excel and
// LibreOffice. Day 1 is 1899-12-31, and the (historically wrong) leap day
// 1900-02-29 is baked into the offset, which is why the epoch is December 30.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ExcelNumberToTime converts a spreadsheet serial date number to a time.
// Fractional days become hours, minutes and seconds.
func ExcelNumberToTime(number float64) time.Time {
	d := time.Duration(number * 24 * float64(time.Hour))
	return excelEpoch.Add(d).Round(time.Second)
}

// TimeToExcelNumber is the inverse of ExcelNumberToTime.
func TimeToExcelNumber(t time.Time) float64 {
	return t.Sub(excelEpoch).Seconds() / 86400
}

// ParseDateTime parses a date string in whatever format a supplier chose to
// use this week. The result is in UTC with a zero time component when the
// string carries no time of day.
func ParseDateTime(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q as a date: %w", s, err)
	}
	return t, nil
}

// Midnight returns t truncated to the start of its day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Month identifies one calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// Add returns the month n months after m (n may be negative).
func (m Month) Add(n int) Month {
	months := int(m.Month) + n - 1
	year := m.Year + months/12
	rem := months % 12
	if rem < 0 {
		rem += 12
		year--
	}
	return Month{Year: year, Month: time.Month(rem + 1)}
}

// Sub returns the number of months between m and other.
func (m Month) Sub(other Month) int {
	return 12*(m.Year-other.Year) + int(m.Month-other.Month)
}

// First returns midnight UTC on the first day of the month.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Last returns midnight UTC on the last day of the month.
func (m Month) Last() time.Time {
	return m.Add(1).First().AddDate(0, 0, -1)
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return int(m.Add(1).First().Sub(m.First()).Hours() / 24)
}

// StartOfNextMonth returns midnight on the first day of the month after the
// one containing t. Matrix rows give a contract start month; the start range
// is [first of that month, first of the next).
func StartOfNextMonth(t time.Time) time.Time {
	return MonthOf(t).Add(1).First()
}
