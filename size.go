package sanlvm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Quantity is a size with an explicit LVM unit suffix, such as the
// "12.00g" strings printed by lvs and vgs. Arithmetic on a size always
// goes through the parsed Value and Unit, never the raw string.
type Quantity struct {
	// Value is the numeric part of the quantity.
	Value float64

	// Unit is the lower-cased single-letter unit suffix (b, k, m, g, t, p).
	Unit string
}

// unitShift maps a unit suffix to its power-of-1024 exponent over bytes.
var unitShift = map[string]int{
	"b": 0,
	"k": 1,
	"m": 2,
	"g": 3,
	"t": 4,
	"p": 5,
}

// ParseQuantity parses a size string with a trailing unit letter.
// Both "12.00g" and "12.00GiB" forms are accepted; a bare number is an
// error since a size without a unit cannot safely be used.
func ParseQuantity(s string) (Quantity, error) {
	trimmed := strings.TrimSpace(s)

	numEnd := len(trimmed)
	for numEnd > 0 {
		c := trimmed[numEnd-1]
		if c >= '0' && c <= '9' {
			break
		}

		numEnd--
	}

	if numEnd == len(trimmed) || numEnd == 0 {
		return Quantity{}, errors.Errorf("size %q has no unit suffix", s)
	}

	unit := strings.ToLower(strings.TrimSuffix(
		strings.TrimSuffix(strings.ToLower(trimmed[numEnd:]), "ib"), "b"))
	if unit == "" {
		// "100B" style: plain bytes.
		unit = "b"
	}

	if _, ok := unitShift[unit]; !ok {
		return Quantity{}, errors.Errorf("size %q has unknown unit %q", s, trimmed[numEnd:])
	}

	val, err := strconv.ParseFloat(trimmed[:numEnd], 64)
	if err != nil {
		return Quantity{}, errors.Wrapf(err, "bad numeric value in size %q", s)
	}

	return Quantity{Value: val, Unit: unit}, nil
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Value, 'f', -1, 64) + q.Unit
}

// Convert returns the value of q expressed in the given unit.
func (q Quantity) Convert(unit string) (float64, error) {
	from, ok := unitShift[q.Unit]
	if !ok {
		return 0, errors.Errorf("quantity has unknown unit %q", q.Unit)
	}

	to, ok := unitShift[strings.ToLower(unit)]
	if !ok {
		return 0, errors.Errorf("unknown unit %q", unit)
	}

	val := q.Value
	for i := from; i < to; i++ {
		val /= 1024
	}

	for i := from; i > to; i-- {
		val *= 1024
	}

	return val, nil
}

// Terabytes returns the quantity expressed in tebibytes.
func (q Quantity) Terabytes() (float64, error) {
	return q.Convert("t")
}
