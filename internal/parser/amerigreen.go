package parser

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/pkg/dateutil"
)

// Amerigreen parses the Amerigreen daily gas matrix. The file arrives in a
// legacy Office format, so it is converted to xlsx before reading. Prices
// have the broker fee built in, which is subtracted back out.
type Amerigreen struct {
	base
}

const (
	amerigreenHeaderRow     = 25
	amerigreenQuoteStartRow = 26

	// "Valid for accounts with annual volume of up to 50,000 therms"
	amerigreenMinVolume   = 0
	amerigreenLimitVolume = 50000
)

var (
	amerigreenUtilityCol    = reader.Col("C")
	amerigreenStateCol      = reader.Col("D")
	amerigreenTermCol       = reader.Col("E")
	amerigreenStartMonthCol = reader.Col("F")
	amerigreenStartDayCol   = reader.Col("G")
	amerigreenPriceCol      = reader.Col("N")

	amerigreenBrokerFeeRow = 22
	amerigreenBrokerFeeCol = reader.Col("F")
)

// NewAmerigreen builds the Amerigreen parser.
func NewAmerigreen(env Env) QuoteParser {
	p := &Amerigreen{base: newBase("amerigreen")}
	p.spreadsheet = reader.NewSpreadsheet(reader.FormatXLSX)
	p.roundingDigits = 4
	p.dateGetter = FileNameDate{}
	p.preprocess = func(ctx context.Context, data []byte, fileName string) ([]byte, error) {
		return env.Office.Convert(ctx, data, fileName)
	}
	p.expectedCells = []expectedCell{
		{reader.SheetIndex(0), 11, reader.Col("C"), `AMERIgreen Energy Daily Matrix Pricing`},
		{reader.SheetIndex(0), 13, reader.Col("C"), `Today's Date:`},
		{reader.SheetIndex(0), 15, reader.Col("C"), `The Matrix Rates include a \$0\.0200/therm Broker Fee`},
		{reader.SheetIndex(0), 15, reader.Col("J"), `All rates are quoted at the burner tip and include LDC Line Loss fees`},
		{reader.SheetIndex(0), 16, reader.Col("J"), `Quotes are valid through the end of the business day`},
		{reader.SheetIndex(0), 17, reader.Col("J"), `Valid for accounts with annual volume of up to 50,000 therms`},
		{reader.SheetIndex(0), 19, reader.Col("J"), `O&R and PECO rates are in Ccf's, all others are in Therms`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("C"), `LDC`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("D"), `State`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("E"), `Term \(Months\)`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("F"), `Start Month`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("G"), `Start Day`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("J"), `Broker Fee`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("K"), `Add'l Fee`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("L"), `Total Fee`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("M"), `Heat`},
		{reader.SheetIndex(0), amerigreenHeaderRow, reader.Col("N"), `Flat`},
	}
	p.extract = p.extractQuotes
	return p
}

func (p *Amerigreen) extractQuotes(emit Sink) error {
	sheet := reader.SheetIndex(0)

	brokerFee, err := p.spreadsheet.GetFloat(sheet, amerigreenBrokerFeeRow, amerigreenBrokerFeeCol)
	if err != nil {
		return err
	}

	height, err := p.spreadsheet.Height(sheet)
	if err != nil {
		return err
	}
	for row := amerigreenQuoteStartRow; row < height; row++ {
		utility, err := p.spreadsheet.GetString(sheet, row, amerigreenUtilityCol)
		if err != nil {
			return err
		}
		// a blank utility cell marks the end of the quotes
		if utility == "" {
			break
		}

		state, err := p.spreadsheet.GetString(sheet, row, amerigreenStateCol)
		if err != nil {
			return err
		}
		rateClassAlias := "Amerigreen-gas-" + state + "-" + utility

		termMonths, err := p.spreadsheet.GetInt(sheet, row, amerigreenTermCol)
		if err != nil {
			return err
		}

		startSerial, err := p.spreadsheet.GetFloat(sheet, row, amerigreenStartMonthCol)
		if err != nil {
			return err
		}
		startFrom := dateutil.ExcelNumberToTime(startSerial)
		startDay, err := p.spreadsheet.GetString(sheet, row, amerigreenStartDayCol)
		if err != nil {
			return err
		}
		if startDay != "1st of the Month" && startDay != "On Cycle Read Date" {
			return reader.FormatErrorf("unexpected start day %q in row %d", startDay, row)
		}
		startUntil := startFrom.AddDate(0, 0, 1)

		rawPrice, err := p.spreadsheet.GetFloat(sheet, row, amerigreenPriceCol)
		if err != nil {
			return err
		}
		price := decimal.NewFromFloat(rawPrice).Sub(decimal.NewFromFloat(brokerFee))

		for _, rateClassID := range p.rateClassIDsFor(rateClassAlias) {
			quote := domain.MatrixQuote{
				ServiceType:    domain.Gas,
				RateClassAlias: rateClassAlias,
				RateClassID:    rateClassID,
				StartFrom:      startFrom,
				StartUntil:     startUntil,
				TermMonths:     termMonths,
				ValidFrom:      p.validFrom,
				ValidUntil:     p.validUntil,
				MinVolume:      domain.Float64Ptr(amerigreenMinVolume),
				LimitVolume:    domain.Float64Ptr(amerigreenLimitVolume),
				Price:          price,
				FileReference:  fmt.Sprintf("%s 0,%d,%d", p.fileName, row, amerigreenPriceCol),
			}
			if err := emit(quote); err != nil {
				return err
			}
		}
	}
	return nil
}
