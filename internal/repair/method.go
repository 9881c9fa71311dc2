package repair

import (
	"strconv"
	"strings"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// Method selects a gap-filling strategy.
type Method int

const (
	Linear Method = iota
	Nearest
	Zero
	SLinear
	Quadratic
	Cubic
	Polynomial
	Spline
	Barycentric
	Krogh
	PCHIP
	Akima
	FromDerivatives
	Pattern
)

// MaxSplineOrder is the highest spline degree accepted.
const MaxSplineOrder = 5

var methodNames = [...]string{
	Linear:          "linear",
	Nearest:         "nearest",
	Zero:            "zero",
	SLinear:         "slinear",
	Quadratic:       "quadratic",
	Cubic:           "cubic",
	Polynomial:      "polynomial",
	Spline:          "spline",
	Barycentric:     "barycentric",
	Krogh:           "krogh",
	PCHIP:           "pchip",
	Akima:           "akima",
	FromDerivatives: "from_derivatives",
	Pattern:         "pattern",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "Method(" + strconv.Itoa(int(m)) + ")"
	}
	return methodNames[m]
}

// Methods lists every method name accepted by ParseMethod.
func Methods() []string {
	return append([]string(nil), methodNames[:]...)
}

// ParseMethod maps a method name to a Method. "pattern-based" is accepted as
// an alias for pattern.
func ParseMethod(s string) (Method, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "pattern-based" {
		return Pattern, nil
	}
	for m, n := range methodNames {
		if n == name {
			return Method(m), nil
		}
	}
	return 0, markers.InvalidParam("method", s, "unknown interpolation method")
}

// NeedsOrder reports whether the method takes an order parameter.
func (m Method) NeedsOrder() bool {
	return m == Polynomial || m == Spline
}

// Params configures a classical interpolation.
type Params struct {
	Method Method
	// Order is the polynomial or spline degree. Zero means unset.
	Order int
}

// ParseOrder parses a user-entered order.
func ParseOrder(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, markers.InvalidParam("order", s, "must be an integer")
	}
	if n < 1 {
		return 0, markers.InvalidParam("order", n, "must be a positive integer")
	}
	return n, nil
}

// Validate checks the parameters before any data is touched.
func (p Params) Validate() error {
	if p.Method < 0 || int(p.Method) >= len(methodNames) {
		return markers.InvalidParam("method", p.Method, "unknown interpolation method")
	}
	if p.Method == Pattern {
		return markers.InvalidParam("method", p.Method, "pattern repair needs reference markers")
	}
	if !p.Method.NeedsOrder() {
		return nil
	}
	if p.Order == 0 {
		return markers.InvalidParam("order", nil, "required for "+p.Method.String())
	}
	if p.Order < 1 {
		return markers.InvalidParam("order", p.Order, "must be a positive integer")
	}
	if p.Method == Spline && p.Order > MaxSplineOrder {
		return markers.InvalidParam("order", p.Order, "spline order must be at most "+strconv.Itoa(MaxSplineOrder))
	}
	return nil
}

// minSamples is the number of valid knots the interpolant needs.
func (p Params) minSamples() int {
	switch p.Method {
	case Quadratic:
		return 3
	case Cubic:
		return 4
	case PCHIP, Akima:
		return 3
	case Polynomial, Spline:
		return p.Order + 1
	default:
		return 2
	}
}
