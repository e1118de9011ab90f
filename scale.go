package finledger

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// relativeErrorWarnThreshold is the 0.1% threshold above which scale logs a
// rounding warning, per spec §4.A.
var relativeErrorWarnThreshold = decimal.NewFromFloat(0.001)

// ParseRational interprets text of the form "num/den" as an exact rational.
// Empty input returns (zero, false, nil) meaning "absent"; malformed input
// returns a Parse error.
func ParseRational(text string) (decimal.Decimal, bool, error) {
	if text == "" {
		return decimal.Zero, false, nil
	}
	parts := strings.SplitN(text, "/", 2)
	if len(parts) != 2 {
		return decimal.Zero, false, parseErr("malformed rational %q: expected num/den", text)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return decimal.Zero, false, parseErr("malformed numerator in %q: %v", text, err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return decimal.Zero, false, parseErr("malformed denominator in %q: %v", text, err)
	}
	if num == 0 {
		return decimal.Zero, true, nil
	}
	if den == 0 {
		return decimal.Zero, false, parseErr("zero denominator in %q", text)
	}
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)), true, nil
}

// roundAndErr rounds d to zero decimal places under the given rounding
// strategy, returning the rounded value and its relative error. Rounding a
// non-zero value to exactly zero is treated as maximal error so scale never
// collapses a tiny holding to 0 purely because of the rounding direction.
func roundAndErr(d decimal.Decimal, strategy func(decimal.Decimal) decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	v := strategy(d)
	switch {
	case d.IsZero():
		return v, decimal.Zero
	case v.IsZero():
		return v, decimal.NewFromInt(1 << 32) // stand-in for "maximal error"
	default:
		return v, d.Div(v).Sub(decimal.NewFromInt(1)).Abs()
	}
}

var halfExactly = decimal.NewFromFloat(0.5)

// roundMidpointTowardZero rounds to the nearest integer, but at an exact
// x.5 midpoint rounds toward zero instead of away from it.
func roundMidpointTowardZero(d decimal.Decimal) decimal.Decimal {
	truncated := d.Truncate(0)
	if d.Sub(truncated).Abs().Equal(halfExactly) {
		return truncated
	}
	return d.Round(0)
}

// roundMidpointAwayFromZero rounds to the nearest integer, rounding an exact
// x.5 midpoint away from zero (shopspring/decimal's native Round behavior).
func roundMidpointAwayFromZero(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Scale converts a rational (as produced by ParseRational, or absent when
// present=false) to the signed integer closest to value*factor, choosing
// whichever rounding direction yields the smaller relative error. It returns
// (0, nil) for absent input. An error above 0.1% relative is logged but not
// fatal.
func Scale(value decimal.Decimal, present bool, factor int64) (int64, error) {
	if !present {
		return 0, nil
	}
	if value.IsZero() {
		return 0, nil
	}

	scaled := value.Mul(decimal.NewFromInt(factor))
	d1, err1 := roundAndErr(scaled, roundMidpointTowardZero)
	d2, err2 := roundAndErr(scaled, roundMidpointAwayFromZero)

	best, bestErr := d1, err1
	if err2.LessThan(err1) {
		best, bestErr = d2, err2
	}

	if !best.IsInt() || !best.BigInt().IsInt64() {
		return 0, domainErr("scaled value %s does not fit in 64 bits", best.String())
	}
	result := best.IntPart()
	if result == 0 && !value.IsZero() {
		return 0, domainErr("scaling %s by %d rounded a non-zero value to exactly zero", value.String(), factor)
	}

	if bestErr.GreaterThan(relativeErrorWarnThreshold) {
		log.Warn().
			Str("value", value.String()).
			Int64("factor", factor).
			Int64("scaled", result).
			Str("relative_error_pct", bestErr.Mul(decimal.NewFromInt(100)).Round(2).String()).
			Msg("scale: rounding error above 0.1%")
	}

	return result, nil
}
