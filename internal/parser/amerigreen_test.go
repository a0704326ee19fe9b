package parser

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbill/matrix-ingest/internal/domain"
)

// amerigreenFixture is a minimal Amerigreen matrix, already in xlsx form.
// Row 27 is the blank separator under the quotes; row 28 holds data that
// must not be read past it.
func amerigreenFixture(t *testing.T) []byte {
	cells := map[string]any{
		"C11": "AMERIgreen Energy Daily Matrix Pricing",
		"C13": "Today's Date:",
		"C15": "The Matrix Rates include a $0.0200/therm Broker Fee",
		"J15": "All rates are quoted at the burner tip and include LDC Line Loss fees",
		"J16": "Quotes are valid through the end of the business day",
		"J17": "Valid for accounts with annual volume of up to 50,000 therms",
		"J19": "O&R and PECO rates are in Ccf's, all others are in Therms",

		"F22": 0.02,

		"C25": "LDC",
		"D25": "State",
		"E25": "Term (Months)",
		"F25": "Start Month",
		"G25": "Start Day",
		"J25": "Broker Fee",
		"K25": "Add'l Fee",
		"L25": "Total Fee",
		"M25": "Heat",
		"N25": "Flat",

		"C26": "Con Ed",
		"D26": "NY",
		"E26": 12,
		"F26": 43160,
		"G26": "1st of the Month",
		"N26": 0.46953,

		"A27": "Prices are subject to change without notice",

		"C28": "PSEG",
		"D28": "NJ",
		"E28": 6,
		"F28": 43160,
		"G28": "1st of the Month",
		"N28": 0.41,
	}
	return buildWorkbook(t, "Matrix", cells)
}

var amerigreenFormat = domain.MatrixFormat{
	AttachmentPattern: `.*[Aa]merigreen.*(?P<date>\d+-\d+-\d+).*`,
}

// newAmerigreenForTest skips the office conversion step, which needs a
// soffice binary; the fixture is already xlsx.
func newAmerigreenForTest() *Amerigreen {
	p := NewAmerigreen(Env{}).(*Amerigreen)
	p.preprocess = nil
	return p
}

func TestAmerigreen(t *testing.T) {
	p := newAmerigreenForTest()
	assert.Equal(t, "amerigreen", p.Name())

	err := p.Load(context.Background(), amerigreenFixture(t), "Amerigreen Matrix 03-14-2018.xlsx", amerigreenFormat)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	quotes := collectQuotes(t, p)
	// one quote row before the blank separator
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, domain.Gas, q.ServiceType)
	assert.Equal(t, "Amerigreen-gas-NY-Con Ed", q.RateClassAlias)
	assert.Equal(t, 12, q.TermMonths)
	assert.Equal(t, time.Date(2018, time.March, 1, 0, 0, 0, 0, time.UTC), q.StartFrom)
	assert.Equal(t, time.Date(2018, time.March, 2, 0, 0, 0, 0, time.UTC), q.StartUntil)

	// validity dates come from the file name
	assert.Equal(t, time.Date(2018, time.March, 14, 0, 0, 0, 0, time.UTC), q.ValidFrom)
	assert.Equal(t, time.Date(2018, time.March, 15, 0, 0, 0, 0, time.UTC), q.ValidUntil)

	assert.Equal(t, 0.0, *q.MinVolume)
	assert.Equal(t, 50000.0, *q.LimitVolume)

	// the broker fee is subtracted and the price rounded to four digits
	assert.True(t, q.Price.Equal(decimal.RequireFromString("0.4495")), "price %s", q.Price)
	assert.Equal(t, "Amerigreen Matrix 03-14-2018.xlsx 0,26,13", q.FileReference)
}

func TestAmerigreenRejectsUnknownStartDay(t *testing.T) {
	p := newAmerigreenForTest()

	data := amerigreenFixture(t)
	f := reopenWorkbook(t, data)
	require.NoError(t, f.SetCellValue("Matrix", "G26", "Whenever"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	err = p.Load(context.Background(), buf.Bytes(), "Amerigreen Matrix 03-14-2018.xlsx", amerigreenFormat)
	require.NoError(t, err)
	err = p.ExtractQuotes(func(domain.MatrixQuote) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start day")
}

func TestAmerigreenRejectsWrongLayout(t *testing.T) {
	p := newAmerigreenForTest()

	data := buildWorkbook(t, "Matrix", map[string]any{
		"C11": "Some other supplier",
		"N28": "filler",
	})
	err := p.Load(context.Background(), data, "Amerigreen Matrix 03-14-2018.xlsx", amerigreenFormat)
	require.NoError(t, err)
	assert.Error(t, p.Validate())
}
