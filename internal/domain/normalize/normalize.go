// Package normalize turns heterogeneous raw forecast encodings into a
// canonical probability: a float in [0,1] plus the same value as a
// 1e18-scaled decimal string ("D18").
package normalize

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Probability is the canonical form of a forecast.
type Probability struct {
	Float float64
	D18   string // probability * 1e18 as a decimal integer string
}

// decimalInUnit matches decimal strings within [0,1]: "0", ".5", "0.5",
// "1", "1.0", "1.000". Anything outside the unit interval fails the match
// and falls through to the big-integer path or rejection.
var decimalInUnit = regexp.MustCompile(`^(?:0?(?:\.\d+)?|1(?:\.0+)?)$`)

// pureDigits matches big-integer encodings such as D18-scaled values.
var pureDigits = regexp.MustCompile(`^\d+$`)

var (
	oneD18     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil) // 1e18
	hundredD18 = new(big.Int).Mul(big.NewInt(100), oneD18)             // 100e18
	d18Scale   = decimal.New(1, 18)
)

// Prediction normalizes a raw forecast string. The second return is false
// when the input is empty, unparseable, or outside [0,1]; normalization
// failure is total, never partial.
//
// Recognized encodings, in order:
//   - case-insensitive "yes"/"true" and the literal "1" mean certainty of YES
//   - case-insensitive "no"/"false" and the literal "0" mean certainty of NO
//   - a decimal string in [0,1], e.g. "0.73"
//   - a pure-digit big integer: values up to 1e18 are read as already
//     D18-scaled; values in (1e18, 100e18] are read as percentage-scaled
//     D18 and re-normalized to the standard 1e18 scale
func Prediction(raw string) (Probability, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Probability{}, false
	}

	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return Probability{Float: 1, D18: oneD18.String()}, true
	case "no", "false", "0":
		return Probability{Float: 0, D18: "0"}, true
	}

	if decimalInUnit.MatchString(s) {
		return fromUnitDecimal(s)
	}

	if pureDigits.MatchString(s) {
		return fromBigInteger(s)
	}

	return Probability{}, false
}

// fromUnitDecimal handles decimal strings already confirmed to be in [0,1].
func fromUnitDecimal(s string) (Probability, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) {
		return Probability{}, false
	}
	f = math.Max(0, math.Min(1, f))

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Probability{}, false
	}
	return Probability{
		Float: f,
		D18:   d.Mul(d18Scale).Round(0).String(),
	}, true
}

// fromBigInteger handles pure-digit encodings on the D18 and
// percentage-D18 scales.
func fromBigInteger(s string) (Probability, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Probability{}, false
	}

	switch {
	case n.Cmp(oneD18) <= 0:
		// Already on the standard 1e18 scale; keep the original digits.
		f := decimal.NewFromBigInt(n, -18).InexactFloat64()
		if !isFinite(f) {
			return Probability{}, false
		}
		return Probability{Float: f, D18: n.String()}, true

	case n.Cmp(hundredD18) <= 0:
		// Percentage-scaled D18 (1x-100x band). The stored D18 is
		// re-normalized to the standard scale, not the original digits.
		f := decimal.NewFromBigInt(n, -20).InexactFloat64()
		if !isFinite(f) {
			return Probability{}, false
		}
		return Probability{
			Float: f,
			D18:   decimal.NewFromFloat(f).Mul(d18Scale).Round(0).String(),
		}, true

	default:
		return Probability{}, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
