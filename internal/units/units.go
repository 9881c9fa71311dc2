// Package units provides shared constants and conversion for marker
// coordinate units.
package units

import "strings"

// Unit constants
const (
	M  = "m"
	CM = "cm"
	MM = "mm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{M, CM, MM}

// perMetre is the number of units in one metre.
var perMetre = map[string]float64{
	M:  1,
	CM: 100,
	MM: 1000,
}

// Normalize lower-cases unit and trims surrounding space.
func Normalize(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	_, ok := perMetre[Normalize(unit)]
	return ok
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// Factor returns the multiplier taking a value in from units to to units.
// Unknown units on either side yield 1 so unlabelled data passes through.
func Factor(from, to string) float64 {
	f, okFrom := perMetre[Normalize(from)]
	t, okTo := perMetre[Normalize(to)]
	if !okFrom || !okTo {
		return 1
	}
	return t / f
}

// ConvertLength converts v from one length unit to another.
func ConvertLength(v float64, from, to string) float64 {
	return v * Factor(from, to)
}
