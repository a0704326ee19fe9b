package parser

import (
	"fmt"
	"math"
	"regexp"

	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/units"
)

// VolumeRange is an annual-consumption band in the parser's target unit.
// High is nil when the band is open-ended.
type VolumeRange struct {
	Low  float64
	High *float64
}

func (v VolumeRange) String() string {
	if v.High == nil {
		return fmt.Sprintf("%v and up", v.Low)
	}
	return fmt.Sprintf("%v-%v", v.Low, *v.High)
}

// volumeOptions adjusts how extractVolumeRange reads a band.
type volumeOptions struct {
	// Suppliers often print ranges like "101-200, 201-300" that are really
	// contiguous bands. Fudging snaps a value one away from a multiple of
	// fudgeBlockSize back onto the multiple.
	fudgeLow       bool
	fudgeHigh      bool
	fudgeBlockSize int

	// override the parser's units when set
	expectedUnit *units.Unit
	targetUnit   *units.Unit
}

const defaultFudgeBlockSize = 10

func fudge(value float64, blockSize int) float64 {
	v := int(value)
	switch {
	case v%blockSize == 1:
		return value - 1
	case v%blockSize == blockSize-1:
		return value + 1
	}
	return value
}

// extractVolumeRange reads a consumption band from a spreadsheet cell with a
// string in it like "150-200 MWh" or "Below 50,000 ccf/therms". The regular
// expression names either or both of the groups "low" and "high"; a missing
// low reads as 0 and a missing high as open-ended.
func (b *base) extractVolumeRange(
	sheet reader.Sheet, row, col int, re *regexp.Regexp, opts volumeOptions) (VolumeRange, error) {

	lowIdx := re.SubexpIndex("low")
	highIdx := re.SubexpIndex("high")
	if lowIdx < 0 && highIdx < 0 {
		return VolumeRange{}, reader.FormatErrorf(
			"volume range pattern %q names neither %q nor %q", re, "low", "high")
	}

	groups, err := b.spreadsheet.GetMatches(sheet, row, col, re)
	if err != nil {
		return VolumeRange{}, err
	}
	number := func(idx int) (float64, error) {
		v, err := reader.ParseNumber(groups[idx-1])
		if err != nil {
			return 0, reader.FormatErrorf(
				"volume range at (%s, %d, %d) of %s: %v", sheet, row, col, b.fileName, err)
		}
		return v, nil
	}

	blockSize := opts.fudgeBlockSize
	if blockSize == 0 {
		blockSize = defaultFudgeBlockSize
	}
	expected := b.expectedUnit
	if opts.expectedUnit != nil {
		expected = *opts.expectedUnit
	}
	target := b.targetUnit
	if opts.targetUnit != nil {
		target = *opts.targetUnit
	}
	convert := func(v float64) (float64, error) {
		out, err := units.Convert(v, expected, target)
		if err != nil {
			return 0, err
		}
		return math.Trunc(out), nil
	}

	var result VolumeRange
	if lowIdx > 0 {
		low, err := number(lowIdx)
		if err != nil {
			return VolumeRange{}, err
		}
		if opts.fudgeLow {
			low = fudge(low, blockSize)
		}
		if result.Low, err = convert(low); err != nil {
			return VolumeRange{}, err
		}
	}
	if highIdx > 0 {
		high, err := number(highIdx)
		if err != nil {
			return VolumeRange{}, err
		}
		if opts.fudgeHigh {
			high = fudge(high, blockSize)
		}
		converted, err := convert(high)
		if err != nil {
			return VolumeRange{}, err
		}
		result.High = &converted
	}
	return result, nil
}

// extractVolumeRangesHorizontal reads the consumption bands along a row,
// inclusive of both end columns, and checks that they are contiguous.
// allowRestartAtZero permits a later band to start over from 0.
func (b *base) extractVolumeRangesHorizontal(
	sheet reader.Sheet, row, startCol, endCol int, re *regexp.Regexp,
	allowRestartAtZero bool, opts volumeOptions) ([]VolumeRange, error) {

	var result []VolumeRange
	for _, col := range reader.ColumnRange(startCol, endCol) {
		vr, err := b.extractVolumeRange(sheet, row, col, re, opts)
		if err != nil {
			return nil, err
		}
		result = append(result, vr)
	}
	for i := 0; i < len(result)-1; i++ {
		next := result[i+1]
		if allowRestartAtZero && next.Low == 0 {
			continue
		}
		if result[i].High == nil || *result[i].High != next.Low {
			return nil, reader.FormatErrorf(
				"volume ranges in row %d are not contiguous: %v followed by %v",
				row, result[i], next)
		}
	}
	return result, nil
}
