// Package parser extracts price quotes from supplier matrix files. Each
// supplier format gets its own parser built on the shared lifecycle: load,
// validate the file shape, then stream quotes out one at a time.
package parser

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/units"
)

// Sink receives extracted quotes one at a time, so callers control batching
// and memory use. Returning an error stops extraction.
type Sink func(quote domain.MatrixQuote) error

// QuoteParser is one supplier matrix format. Implementations live in this
// package, one file per format, and are registered in registry.go.
type QuoteParser interface {
	// Name is the standardized short name of the format or supplier, used
	// in metric names. Lowercase, no spaces or punctuation, like
	// "directenergy". Avoid changing it.
	Name() string

	// Load reads the whole file. May be slow and take a lot of memory.
	Load(ctx context.Context, data []byte, fileName string, format domain.MatrixFormat) error

	// Validate fails with a *reader.FormatError when the file does not
	// match expectations about its shape. This detects format changes and
	// wrong files, not every possible content problem.
	Validate() error

	// SetRateClassIDs installs the alias-to-rate-class mapping, loaded in
	// advance so extraction does not query the database.
	SetRateClassIDs(ids map[string][]int64)

	// ExtractQuotes streams quotes into emit. Quotes are not yet associated
	// with a supplier; the caller stamps that on.
	ExtractQuotes(emit Sink) error

	// Count returns the number of quotes extracted so far.
	Count() int
}

// expectedCell asserts that a cell matches a regular expression, anchored at
// the start. Used to detect silently-changed layouts before extraction.
type expectedCell struct {
	sheet   reader.Sheet
	row     int
	col     int
	pattern string
}

// base carries the state and configuration shared by all parsers. Concrete
// parsers embed it and fill in the fields their format needs.
type base struct {
	name string

	// exactly one of these is set, depending on the file type
	spreadsheet *reader.Spreadsheet
	pdf         *reader.PDF

	// optional validation of sheet titles and fixed cells
	expectedSheetTitles []string
	expectedCells       []expectedCell

	// energy units for volume ranges: convert from expected to target
	expectedUnit units.Unit
	targetUnit   units.Unit

	// optional source of valid_from/valid_until for all quotes in the file
	dateGetter DateGetter

	// digits to round prices to; negative means no rounding
	roundingDigits int

	// optional file conversion before loading
	preprocess func(ctx context.Context, data []byte, fileName string) ([]byte, error)

	// extraction and extra validation supplied by the concrete parser
	extract  func(emit Sink) error
	validate func() error

	fileName  string
	format    domain.MatrixFormat
	validated bool
	count     int

	validFrom  time.Time
	validUntil time.Time

	rateClassIDs map[string][]int64
}

func newBase(name string) base {
	return base{
		name:           name,
		targetUnit:     units.KWh,
		roundingDigits: -1,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) Count() int { return b.count }

func (b *base) SetRateClassIDs(ids map[string][]int64) {
	b.rateClassIDs = ids
}

func (b *base) Load(ctx context.Context, data []byte, fileName string, format domain.MatrixFormat) error {
	if b.preprocess != nil {
		converted, err := b.preprocess(ctx, data, fileName)
		if err != nil {
			return err
		}
		data = converted
	}

	var err error
	switch {
	case b.spreadsheet != nil:
		err = b.spreadsheet.Load(data, fileName)
	case b.pdf != nil:
		err = b.pdf.Load(data, fileName)
	default:
		err = fmt.Errorf("parser %s has no reader", b.name)
	}
	if err != nil {
		return err
	}

	b.fileName = fileName
	b.format = format
	b.validated = false
	b.count = 0
	return nil
}

func (b *base) loaded() bool {
	if b.spreadsheet != nil {
		return b.spreadsheet.Loaded()
	}
	return b.pdf != nil && b.pdf.Loaded()
}

func (b *base) Validate() error {
	if !b.loaded() {
		return fmt.Errorf("parser %s: no file loaded", b.name)
	}
	if b.expectedSheetTitles != nil {
		actual := b.spreadsheet.SheetTitles()
		have := make(map[string]bool, len(actual))
		for _, t := range actual {
			have[t] = true
		}
		for _, want := range b.expectedSheetTitles {
			if !have[want] {
				return reader.FormatErrorf(
					"expected sheet titles %v, actual %v", b.expectedSheetTitles, actual)
			}
		}
	}
	for _, c := range b.expectedCells {
		if _, err := b.spreadsheet.GetMatches(c.sheet, c.row, c.col, regexp.MustCompile(c.pattern)); err != nil {
			return err
		}
	}
	if b.validate != nil {
		if err := b.validate(); err != nil {
			return err
		}
	}
	b.validated = true
	return nil
}

// ExtractQuotes validates lazily, resolves the file-wide validity dates, and
// streams quotes with rounding and counting applied.
func (b *base) ExtractQuotes(emit Sink) error {
	if !b.validated {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	if b.dateGetter != nil {
		from, until, err := b.dateGetter.Dates(b)
		if err != nil {
			return err
		}
		b.validFrom, b.validUntil = from, until
	}
	return b.extract(func(q domain.MatrixQuote) error {
		if b.roundingDigits >= 0 {
			q.Price = q.Price.Round(int32(b.roundingDigits))
		}
		b.count++
		return emit(q)
	})
}

// rateClassIDsFor returns the rate class ids for an alias, or a single nil
// when the alias is unknown so one quote is still produced without an id.
func (b *base) rateClassIDsFor(alias string) []*int64 {
	ids, ok := b.rateClassIDs[alias]
	if !ok || len(ids) == 0 {
		return []*int64{nil}
	}
	out := make([]*int64, len(ids))
	for i, id := range ids {
		v := id
		out[i] = &v
	}
	return out
}
