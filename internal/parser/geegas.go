package parser

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/dateutil"
)

// GEEGasNJ parses the Great Eastern Energy New Jersey gas matrix PDF. The
// layout is a grid of price tables addressed by coordinates; rows are found
// by stepping down from a known start position.
type GEEGasNJ struct {
	base
}

// geeGasPage holds the coordinates of one page's table: where the labels
// sit, the x position of each term column, and how the data rows step down
// the page.
type geeGasPage struct {
	page int

	stateTypeY, stateTypeX float64
	validDateY, validDateX float64
	volumeY, volumeX       float64

	// x position of the price column for each term length
	termColumns map[int]float64

	utilityX   float64
	startDateX float64
	loadTypeX  float64

	dataStartY float64
	rowStep    float64
	rows       int
}

var geeGasNJPage1 = geeGasPage{
	page:       1,
	stateTypeY: 546, stateTypeX: 376,
	validDateY: 508, validDateX: 27,
	volumeY: 535, volumeX: 369,
	termColumns: map[int]float64{6: 454, 12: 492, 18: 532, 24: 571},
	utilityX:    27,
	startDateX:  105,
	loadTypeX:   61,
	dataStartY:  491,
	rowStep:     10.2,
	rows:        43,
}

var (
	geeGasPricePattern      = regexp.MustCompile(`(\d+\.\d+)`)
	geeGasStartMonthPattern = regexp.MustCompile(`([a-zA-Z]{3}-\d{2})`)
	geeGasUtilityPattern    = regexp.MustCompile(`([a-zA-Z]+)`)
	geeGasLoadTypePattern   = regexp.MustCompile(`([-\w]+)`)
	geeGasValidDatePattern  = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)
	geeGasAnyPattern        = regexp.MustCompile(`(.*)`)
)

// NewGEEGasNJ builds the Great Eastern Energy NJ gas parser.
func NewGEEGasNJ(Env) QuoteParser {
	p := &GEEGasNJ{base: newBase("geegas")}
	p.pdf = reader.NewPDF(5)
	p.validate = p.validateLayout
	p.extract = p.extractQuotes
	return p
}

func (p *GEEGasNJ) validateLayout() error {
	for _, check := range []struct {
		page    int
		y, x    float64
		pattern string
	}{
		{1, 508, 27, `\d+/\d+/\d+`},
		{1, 535, 369, `0 - 999 Dth`},
		{1, 546, 376, `NJ Commercial`},
		{1, 508, 27, `Utility`},
		{1, 508, 61, `Load Type`},
		{1, 502, 106, `Start Date`},
		{1, 524, 544, `Fixed`},
		{1, 514, 489, `Term \(Months\)`},
	} {
		re := regexp.MustCompile(check.pattern)
		if _, err := p.pdf.GetMatches(check.page, check.y, check.x, re, 0); err != nil {
			return err
		}
	}
	return nil
}

// errNoQuote means the assumed coordinates hold no price, which happens on
// the blank filler rows between tables.
var errNoQuote = errors.New("no quote at coordinates")

type geeGasContext struct {
	validFrom, validUntil time.Time
	minVolume             float64
	limitVolume           float64
	stateAndType          string
	termMonths            int
}

func (p *GEEGasNJ) produceQuote(page geeGasPage, ctx geeGasContext, rowY float64) (domain.MatrixQuote, error) {
	priceMatch, err := p.pdf.GetMatches(
		page.page, rowY, page.termColumns[ctx.termMonths], geeGasPricePattern, 0)
	if err != nil {
		var formatErr *reader.FormatError
		if errors.As(err, &formatErr) {
			return domain.MatrixQuote{}, errNoQuote
		}
		return domain.MatrixQuote{}, err
	}

	startMonthMatch, err := p.pdf.GetMatches(
		page.page, rowY, page.startDateX, geeGasStartMonthPattern, 0)
	if err != nil {
		return domain.MatrixQuote{}, err
	}
	// e.g. "Mar-15"; the start is implicitly the first of the month
	startFrom, err := time.Parse("2 Jan-06", "1 "+strings.TrimSpace(startMonthMatch[0]))
	if err != nil {
		return domain.MatrixQuote{}, reader.FormatErrorf(
			"cannot parse start month %q: %v", startMonthMatch[0], err)
	}
	startUntil := dateutil.MonthOf(startFrom).Add(1).First()

	utilityMatch, err := p.pdf.GetMatches(page.page, rowY, page.utilityX, geeGasUtilityPattern, 0)
	if err != nil {
		return domain.MatrixQuote{}, err
	}
	utility := strings.TrimSpace(utilityMatch[0])

	// Heating or Non-Heating
	loadTypeMatch, err := p.pdf.GetMatches(page.page, rowY, page.loadTypeX, geeGasLoadTypePattern, 0)
	if err != nil {
		return domain.MatrixQuote{}, err
	}
	loadType := strings.TrimSpace(loadTypeMatch[0])

	// prices are quoted per Dth; divide by ten for price per therm
	rawPrice, err := reader.ParseNumber(priceMatch[0])
	if err != nil {
		return domain.MatrixQuote{}, err
	}
	price := decimal.NewFromFloat(rawPrice).Div(decimal.NewFromInt(10))
	priceF, _ := price.Float64()

	// every quote gets a distinct reference, which also guards against the
	// wrong price being attached to a start date and utility
	fileReference := fmt.Sprintf("%s %s,%s %s,start %s,%d month,%.4f",
		p.fileName, ctx.stateAndType, utility, loadType,
		startFrom.Format("2006-01-02"), ctx.termMonths, priceF)

	return domain.MatrixQuote{
		ServiceType:    domain.Gas,
		RateClassAlias: "GEE-gas-" + strings.Join([]string{ctx.stateAndType, utility, loadType}, "-"),
		StartFrom:      startFrom,
		StartUntil:     startUntil,
		TermMonths:     ctx.termMonths,
		ValidFrom:      ctx.validFrom,
		ValidUntil:     ctx.validUntil,
		MinVolume:      domain.Float64Ptr(ctx.minVolume),
		LimitVolume:    domain.Float64Ptr(ctx.limitVolume),
		Price:          price,
		FileReference:  fileReference,
	}, nil
}

func (p *GEEGasNJ) parsePage(page geeGasPage, emit Sink, seen map[string]bool) error {
	// the validity date is always the top left element of the first page
	validDateMatch, err := p.pdf.GetMatches(
		1, geeGasNJPage1.validDateY, geeGasNJPage1.validDateX, geeGasValidDatePattern, 0)
	if err != nil {
		return err
	}
	validFrom, err := time.Parse("1/2/2006", strings.TrimSpace(validDateMatch[0]))
	if err != nil {
		return reader.FormatErrorf("cannot parse validity date %q: %v", validDateMatch[0], err)
	}
	validUntil := validFrom.AddDate(0, 0, 1)

	volumeMatch, err := p.pdf.GetMatches(page.page, page.volumeY, page.volumeX, geeGasAnyPattern, 0)
	if err != nil {
		return err
	}
	var minVolume, limitVolume float64
	switch {
	case strings.Contains(volumeMatch[0], "0 - 999"):
		minVolume, limitVolume = 0, 9999
	case strings.Contains(volumeMatch[0], "1,000 - 5,999"):
		minVolume, limitVolume = 10000, 59999
	default:
		return reader.FormatErrorf("unexpected volume range %q", volumeMatch[0])
	}

	// e.g. "NJ Commercial"
	stateTypeMatch, err := p.pdf.GetMatches(page.page, page.stateTypeY, page.stateTypeX, geeGasAnyPattern, 0)
	if err != nil {
		return err
	}
	stateAndType := strings.TrimSpace(stateTypeMatch[0])

	terms := make([]int, 0, len(page.termColumns))
	for term := range page.termColumns {
		terms = append(terms, term)
	}
	sort.Ints(terms)

	for i := 0; i < page.rows; i++ {
		rowY := page.dataStartY - float64(i)*page.rowStep
		for _, termMonths := range terms {
			ctx := geeGasContext{
				validFrom:    validFrom,
				validUntil:   validUntil,
				minVolume:    minVolume,
				limitVolume:  limitVolume,
				stateAndType: stateAndType,
				termMonths:   termMonths,
			}
			quote, err := p.produceQuote(page, ctx, rowY)
			if errors.Is(err, errNoQuote) {
				continue
			}
			if err != nil {
				return err
			}
			// fuzzy coordinate matching can resolve two row positions to
			// the same text boxes; emit each distinct quote once
			if seen[quote.FileReference] {
				continue
			}
			seen[quote.FileReference] = true
			if err := emit(quote); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *GEEGasNJ) extractQuotes(emit Sink) error {
	seen := make(map[string]bool)
	return p.parsePage(geeGasNJPage1, emit, seen)
}
