package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/dateutil"
	"github.com/nexbill/matrix-ingest/pkg/units"
)

// DirectEnergy parses the Direct Energy daily matrix spreadsheet: electric
// quotes in a wide table with one price column per volume band.
type DirectEnergy struct {
	base
}

const (
	directEnergyHeaderRow     = 51
	directEnergyVolumeRow     = 51
	directEnergyQuoteStartRow = 52
	directEnergyPriceStartCol = 8
	directEnergyPriceEndCol   = 13
	directEnergyZoneCol       = 3
)

var (
	directEnergyStateCol          = reader.Col("B")
	directEnergyUtilityCol        = reader.Col("C")
	directEnergyRateClassCol      = reader.Col("E")
	directEnergySpecialOptionsCol = reader.Col("F")
	directEnergyTermCol           = reader.Col("H")

	directEnergyVolumePattern = regexp.MustCompile(`(?P<low>\d+)\s*-\s*(?P<high>\d+)`)
)

// NewDirectEnergy builds the Direct Energy parser.
func NewDirectEnergy(Env) QuoteParser {
	p := &DirectEnergy{base: newBase("directenergy")}
	p.spreadsheet = reader.NewSpreadsheet(reader.FormatXLSX)
	p.expectedUnit = units.MWh
	p.expectedSheetTitles = []string{"Daily Matrix Price"}
	p.expectedCells = []expectedCell{
		{reader.SheetIndex(0), 1, 0, `Direct Energy HQ - Daily Matrix Price Report`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 0, `Contract Start Month`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 1, `State`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 2, `Utility`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 3, `Zone`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 4, `Rate Code\(s\)`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 5, `Product Special Options`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 6, `Billing Method`},
		{reader.SheetIndex(0), directEnergyHeaderRow, 7, `Term`},
	}
	p.dateGetter = SingleCellDate{
		Sheet: reader.SheetIndex(0), Row: 3, Col: 0,
		Regex: regexp.MustCompile(`as of (\d+/\d+/\d+)`),
	}
	p.extract = p.extractQuotes
	return p
}

func (p *DirectEnergy) extractQuotes(emit Sink) error {
	sheet := reader.SheetIndex(0)

	volumeRanges, err := p.extractVolumeRangesHorizontal(
		sheet, directEnergyVolumeRow, directEnergyPriceStartCol, directEnergyPriceEndCol,
		directEnergyVolumePattern, false,
		volumeOptions{fudgeHigh: true, fudgeBlockSize: 5})
	if err != nil {
		return err
	}

	height, err := p.spreadsheet.Height(sheet)
	if err != nil {
		return err
	}
	for row := directEnergyQuoteStartRow; row < height; row++ {
		startSerial, err := p.spreadsheet.GetFloat(sheet, row, 0)
		if err != nil {
			return err
		}
		startFrom := dateutil.ExcelNumberToTime(startSerial)
		startUntil := dateutil.MonthOf(startFrom).Add(1).First()

		termMonths, err := p.spreadsheet.GetInt(sheet, row, directEnergyTermCol)
		if err != nil {
			return err
		}

		rateClass, err := p.spreadsheet.GetString(sheet, row, directEnergyRateClassCol)
		if err != nil {
			return err
		}
		state, err := p.spreadsheet.GetString(sheet, row, directEnergyStateCol)
		if err != nil {
			return err
		}
		zone, err := p.spreadsheet.GetString(sheet, row, directEnergyZoneCol)
		if err != nil {
			return err
		}
		utility, err := p.spreadsheet.GetString(sheet, row, directEnergyUtilityCol)
		if err != nil {
			return err
		}
		rateClassAlias := "Direct-electric-" + strings.Join(
			[]string{state, utility, rateClass, zone}, "-")
		rateClassIDs := p.rateClassIDsFor(rateClassAlias)

		specialOptions, err := p.spreadsheet.GetString(sheet, row, directEnergySpecialOptionsCol)
		if err != nil {
			return err
		}
		switch specialOptions {
		case "", "POR", "UCB", "RR":
		default:
			return reader.FormatErrorf(
				"unexpected special options %q in row %d", specialOptions, row)
		}

		for col := directEnergyPriceStartCol; col <= directEnergyPriceEndCol; col++ {
			volumes := volumeRanges[col-directEnergyPriceStartCol]
			raw, err := p.spreadsheet.GetFloat(sheet, row, col)
			if err != nil {
				return err
			}
			price := decimal.NewFromFloat(raw).Div(decimal.NewFromInt(1000))
			for _, rateClassID := range rateClassIDs {
				quote := domain.MatrixQuote{
					ServiceType:           domain.Electric,
					RateClassAlias:        rateClassAlias,
					RateClassID:           rateClassID,
					StartFrom:             startFrom,
					StartUntil:            startUntil,
					TermMonths:            termMonths,
					ValidFrom:             p.validFrom,
					ValidUntil:            p.validUntil,
					MinVolume:             domain.Float64Ptr(volumes.Low),
					LimitVolume:           volumes.High,
					Price:                 price,
					PurchaseOfReceivables: specialOptions == "POR",
					FileReference:         fmt.Sprintf("%s 0,%d,%d", p.fileName, row, col),
				}
				if err := emit(quote); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
