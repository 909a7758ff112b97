package simm

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// sqrtIterations bounds Newton's method so identical inputs always
	// produce identical output.
	sqrtIterations = 10
	// sqrtScale is the internal division scale used during iteration.
	sqrtScale = 12
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// Sqrt computes the square root of a non-negative decimal using Newton's
// method over a fixed iteration count, carrying more than ten decimal digits
// of internal precision. The seed comes from the float64 approximation so the
// fixed iterations converge across the full magnitude range; callers round
// the result when producing reported figures.
func Sqrt(value decimal.Decimal) decimal.Decimal {
	if value.Sign() <= 0 {
		return decimal.Zero
	}

	y := decimal.NewFromFloat(math.Sqrt(value.InexactFloat64()))
	if y.Sign() <= 0 {
		y = value.Add(one).DivRound(two, sqrtScale)
	}
	for i := 0; i < sqrtIterations; i++ {
		x := y
		y = x.Add(value.DivRound(x, sqrtScale)).DivRound(two, sqrtScale)
	}
	return y
}
