package quant

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ratioPrecision absorbs binary floating point noise in the value/step
// ratio before ceiling, so 100.00/0.01 stays 10000 instead of 10000.000…1.
const ratioPrecision = 10

// Quantize rounds value up to the next multiple of step and formats it with
// exactly as many decimal places as the step carries (none when step >= 1).
// Rounding up guarantees the result never falls below a venue minimum
// increment. Steps must be positive; callers validate before calling.
func Quantize(value, step decimal.Decimal) string {
	ratio := value.Div(step).Round(ratioPrecision)
	q := ratio.Ceil().Mul(step)
	return q.StringFixed(StepDecimals(step))
}

// QuantizeFloat is Quantize for a float64 value, used for prices and sizes
// reported by the venue as numbers.
func QuantizeFloat(value float64, step decimal.Decimal) string {
	return Quantize(decimal.NewFromFloat(value), step)
}

// StepDecimals reports how many decimal places a step size dictates.
// Trailing zeros do not count: a step of "0.010" formats to two places.
func StepDecimals(step decimal.Decimal) int32 {
	if step.GreaterThanOrEqual(decimal.New(1, 0)) {
		return 0
	}
	s := step.String()
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(s[dot+1:], "0")
	return int32(len(frac))
}
