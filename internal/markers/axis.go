package markers

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Axis selects one coordinate column of a marker.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

// Axes lists X, Y and Z in column order.
var Axes = []Axis{X, Y, Z}

func (a Axis) String() string {
	switch a {
	case X:
		return "X"
	case Y:
		return "Y"
	case Z:
		return "Z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Valid reports whether a is one of X, Y or Z.
func (a Axis) Valid() bool {
	return a >= X && a <= Z
}

// ParseAxis maps "X", "Y" or "Z" (case-insensitive) to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return X, nil
	case "Y":
		return Y, nil
	case "Z":
		return Z, nil
	}
	return 0, &NotFoundError{Kind: "axis", Name: s}
}

// ParseAxes parses a compact axis set such as "XYZ" or "xz". Duplicates are
// ignored; an empty string selects all three axes.
func ParseAxes(s string) ([]Axis, error) {
	if strings.TrimSpace(s) == "" {
		return append([]Axis(nil), Axes...), nil
	}
	var seen [3]bool
	var out []Axis
	for _, r := range s {
		if r == ',' || r == ' ' {
			continue
		}
		a, err := ParseAxis(string(r))
		if err != nil {
			return nil, err
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}

// Component returns the a-th component of p.
func Component(p r3.Vec, a Axis) float64 {
	switch a {
	case X:
		return p.X
	case Y:
		return p.Y
	default:
		return p.Z
	}
}

// ColumnName returns the tabular column name for a marker axis, following the
// {marker}_{X|Y|Z} convention used by TRC exports.
func ColumnName(marker string, a Axis) string {
	return marker + "_" + a.String()
}

// SplitColumnName is the inverse of ColumnName. ok is false when col does not
// end in _X, _Y or _Z.
func SplitColumnName(col string) (marker string, a Axis, ok bool) {
	i := strings.LastIndexByte(col, '_')
	if i <= 0 || i == len(col)-1 {
		return "", 0, false
	}
	a, err := ParseAxis(col[i+1:])
	if err != nil || len(col)-i != 2 {
		return "", 0, false
	}
	return col[:i], a, true
}
