package report

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the finite samples of a series. When Valid is false the
// series had no finite sample and the numeric fields are zero.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Range float64 `json:"range"`
	Valid bool    `json:"valid"`
}

// Summarize computes count, mean, population standard deviation and extent
// over the finite values of series.
func Summarize(series []float64) Summary {
	vals := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(vals, nil)
	lo, hi := floats.Min(vals), floats.Max(vals)
	return Summary{
		Count: len(vals),
		Mean:  mean,
		Std:   std,
		Min:   lo,
		Max:   hi,
		Range: hi - lo,
		Valid: true,
	}
}

// Format renders "mean ± std [min, max]" with prec decimals, or "no data".
func (s Summary) Format(prec int) string {
	if !s.Valid {
		return "no data"
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	return fmt.Sprintf("%s ± %s [%s, %s]", f(s.Mean), f(s.Std), f(s.Min), f(s.Max))
}
