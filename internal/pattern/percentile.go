package pattern

import (
	"math"
	"sort"
)

// PercentileCont returns the p-th continuous percentile of values, linearly
// interpolating between the two nearest ranks (PostgreSQL percentile_cont).
// values is sorted in place. It returns NaN for an empty input.
func PercentileCont(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)

	switch {
	case p <= 0:
		return values[0]
	case p >= 1:
		return values[len(values)-1]
	}

	pos := p * float64(len(values)-1)
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return values[int(lo)]
	}
	return values[int(lo)] + (pos-lo)*(values[int(hi)]-values[int(lo)])
}
