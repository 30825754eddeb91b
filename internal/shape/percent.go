// Package shape turns executor rows into the output records returned to
// tool callers.
package shape

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Ratio parses a driver value (float, integer, numeric text or nil) into a
// nullable decimal. Floats are taken at their shortest decimal form so 0.005
// stays 0.005 rather than its binary approximation.
func Ratio(v any) (decimal.NullDecimal, error) {
	var d decimal.NullDecimal
	if err := d.Scan(v); err != nil {
		return decimal.NullDecimal{}, err
	}
	return d, nil
}

// Percent renders a dependency ratio as a percentage with two decimals,
// rounded half away from zero, a decimal comma and a "%" suffix.
// A null ratio renders as "".
func Percent(ratio decimal.NullDecimal) string {
	if !ratio.Valid {
		return ""
	}
	s := ratio.Decimal.Mul(hundred).StringFixed(2)
	return strings.Replace(s, ".", ",", 1) + "%"
}
