// Package units converts between the energy units that appear in supplier
// matrix files. Electric volumes are normalised to kWh and gas volumes to
// therms before quotes are stored.
package units

import (
	"fmt"
	"strings"
)

// Unit is an energy unit. The zero value is not a valid unit.
type Unit struct {
	name string
	// size of one unit expressed in kWh. A factor of zero marks a
	// degenerate unit (kWD) that always converts to zero, matching the
	// supplier files that use it as a placeholder.
	kwh float64
}

const kwhPerTherm = 29.3001

var (
	KWh   = Unit{"kWh", 1}
	MWh   = Unit{"MWh", 1000}
	BTU   = Unit{"BTU", kwhPerTherm / 100000}
	MMBTU = Unit{"MMBTU", kwhPerTherm * 10}
	Therm = Unit{"therm", kwhPerTherm}
	// Ccf is treated as equal to one therm, the convention used in the
	// matrix files themselves.
	Ccf = Unit{"ccf", kwhPerTherm}
	// Mcf is ten ccf.
	Mcf = Unit{"Mcf", kwhPerTherm * 10}
	// KWD appears in a few gas files as a demand placeholder; any quantity
	// of it converts to zero.
	KWD = Unit{"kWD", 0}
)

var byName = map[string]Unit{
	"kwh":    KWh,
	"mwh":    MWh,
	"btu":    BTU,
	"mmbtu":  MMBTU,
	"therm":  Therm,
	"therms": Therm,
	"thms":   Therm,
	"ccf":    Ccf,
	"mcf":    Mcf,
	"kwd":    KWD,
}

// Parse returns the unit with the given name, case-insensitively. Plural
// forms of therm are accepted.
func Parse(name string) (Unit, error) {
	u, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Unit{}, fmt.Errorf("unknown energy unit %q", name)
	}
	return u, nil
}

func (u Unit) String() string { return u.name }

// IsZero reports whether u is the zero value (no unit).
func (u Unit) IsZero() bool { return u == Unit{} }

// Convert converts a quantity from one unit to another.
func Convert(quantity float64, from, to Unit) (float64, error) {
	if from.name == "" || to.name == "" {
		return 0, fmt.Errorf("convert %v from %v to %v: missing unit", quantity, from, to)
	}
	if to.kwh == 0 {
		return 0, fmt.Errorf("cannot convert to degenerate unit %v", to)
	}
	return quantity * from.kwh / to.kwh, nil
}

// ConvertToTherms converts a quantity of the named unit to therms.
// ccfConversionFactor, when non-zero, scales ccf quantities by a
// utility-specific heat content factor before conversion.
func ConvertToTherms(quantity float64, unitName string, ccfConversionFactor float64) (float64, error) {
	u, err := Parse(unitName)
	if err != nil {
		return 0, err
	}
	result, err := Convert(quantity, u, Therm)
	if err != nil {
		return 0, err
	}
	if u == Ccf && ccfConversionFactor != 0 {
		result *= ccfConversionFactor
	}
	return result, nil
}
