// Package accuracy computes the horizon-weighted Brier-style error for a
// forecaster's probability history on a single market.
//
// A history is treated as a right-continuous step function over
// [start, end]: each forecast holds until the next one supersedes it. Each
// interval contributes its squared error weighted by
// duration * (end - midpoint)^alpha. Duration weighting keeps rapid-fire
// updates from moving the result through sheer frequency; the decay term
// scales an interval by how far from settlement it was held.
package accuracy

import (
	"math"
	"sort"
)

// DefaultDecayExponent is the fallback decay exponent alpha.
const DefaultDecayExponent = 2.0

// Forecast is one point of a probability history.
type Forecast struct {
	MadeAt      int64 // unix seconds
	Probability float64
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithDecayExponent sets alpha. Non-positive or non-finite values fall
// back to DefaultDecayExponent.
func WithDecayExponent(alpha float64) Option {
	return func(c *Calculator) {
		if alpha > 0 && !math.IsInf(alpha, 0) && !math.IsNaN(alpha) {
			c.alpha = alpha
		}
	}
}

// Calculator holds the decay exponent. The zero value is unusable; use New.
type Calculator struct {
	alpha float64
}

// New creates a Calculator with configuration options.
func New(opts ...Option) *Calculator {
	c := &Calculator{alpha: DefaultDecayExponent}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Alpha returns the effective decay exponent.
func (c *Calculator) Alpha() float64 {
	return c.alpha
}

// TwError integrates the squared error of a forecast history against the
// realized outcome bit over [first forecast, end]. The second return is
// false when the history is degenerate: no forecasts, no positive
// duration, or zero total weight.
func (c *Calculator) TwError(end int64, outcomeBit int, history []Forecast) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}

	forecasts := make([]Forecast, len(history))
	copy(forecasts, history)
	sort.SliceStable(forecasts, func(i, j int) bool {
		return forecasts[i].MadeAt < forecasts[j].MadeAt
	})

	start := forecasts[0].MadeAt
	if end <= start {
		return 0, false
	}

	target := float64(outcomeBit)
	var weightedErr, totalWeight float64
	for i, f := range forecasts {
		t0 := start
		if i > 0 && f.MadeAt > t0 {
			t0 = f.MadeAt
		}
		t1 := end
		if i < len(forecasts)-1 && forecasts[i+1].MadeAt < end {
			t1 = forecasts[i+1].MadeAt
		}
		duration := float64(t1 - t0)
		if duration <= 0 {
			continue
		}

		midpoint := (float64(t0) + float64(t1)) / 2
		weight := duration * math.Pow(float64(end)-midpoint, c.alpha)
		errSq := (f.Probability - target) * (f.Probability - target)

		weightedErr += errSq * weight
		totalWeight += weight
	}

	if totalWeight <= 0 || !isFinite(weightedErr) || !isFinite(totalWeight) {
		return 0, false
	}
	return weightedErr / totalWeight, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
