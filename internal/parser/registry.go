package parser

import (
	"fmt"
	"sort"

	"github.com/nexbill/matrix-ingest/internal/preprocess"
)

// Env holds the external tools parsers may need during preprocessing.
type Env struct {
	Office *preprocess.OfficeConverter
	Tabula *preprocess.TabulaConverter
}

// constructors maps each matrix format's primary key in the database to its
// parser. Each time a parser is written for a new format, add it here.
var constructors = map[int64]func(Env) QuoteParser{
	8:  NewDirectEnergy,
	11: NewAmerigreen,
	21: NewGEEGasNJ,
}

// ForFormat returns a fresh parser for the given matrix format id, or an
// error when no parser is registered for it.
func ForFormat(formatID int64, env Env) (QuoteParser, error) {
	construct, ok := constructors[formatID]
	if !ok {
		return nil, fmt.Errorf("no parser for matrix format %d", formatID)
	}
	return construct(env), nil
}

// ByName returns a fresh parser with the given short name. Used by the
// command-line checker, where format ids are not available.
func ByName(name string, env Env) (QuoteParser, error) {
	for _, construct := range constructors {
		p := construct(env)
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser named %q (known: %v)", name, Names())
}

// Names returns the short names of all registered parsers, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for _, construct := range constructors {
		names = append(names, construct(Env{}).Name())
	}
	sort.Strings(names)
	return names
}
