package accuracy_test

import (
	"math"
	"testing"

	"github.com/okian/foresight/internal/domain/accuracy"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalculator_TwError(t *testing.T) {
	Convey("Given the default calculator", t, func() {
		calc := accuracy.New()

		Convey("When a forecaster updates 0.9 at t=0 and 0.95 at t=50 on a market ending at t=100 that resolves YES", func() {
			history := []accuracy.Forecast{
				{MadeAt: 0, Probability: 0.9},
				{MadeAt: 50, Probability: 0.95},
			}
			got, ok := calc.TwError(100, 1, history)

			Convey("Then the error matches the hand-computed integral", func() {
				// [0,50): w = 50*(100-25)^2 = 281250, e = 0.01
				// [50,100]: w = 50*(100-75)^2 = 31250, e = 0.0025
				// (2812.5 + 78.125) / 312500
				So(ok, ShouldBeTrue)
				So(got, ShouldAlmostEqual, 0.00925, 1e-9)
			})
		})

		Convey("When two histories differ only in the final pre-end forecast", func() {
			base := []accuracy.Forecast{
				{MadeAt: 0, Probability: 0.6},
				{MadeAt: 40, Probability: 0.7},
			}
			exact := append(append([]accuracy.Forecast{}, base...), accuracy.Forecast{MadeAt: 80, Probability: 1})
			wrong := append(append([]accuracy.Forecast{}, base...), accuracy.Forecast{MadeAt: 80, Probability: 0.7})

			Convey("Then the exactly-correct final forecast yields a strictly lower error", func() {
				exactErr, ok := calc.TwError(100, 1, exact)
				So(ok, ShouldBeTrue)
				wrongErr, ok := calc.TwError(100, 1, wrong)
				So(ok, ShouldBeTrue)
				So(exactErr, ShouldBeLessThan, wrongErr)
			})
		})

		Convey("When the history is unsorted", func() {
			got, ok := calc.TwError(100, 1, []accuracy.Forecast{
				{MadeAt: 50, Probability: 0.95},
				{MadeAt: 0, Probability: 0.9},
			})

			Convey("Then ordering is repaired before integrating", func() {
				So(ok, ShouldBeTrue)
				So(got, ShouldAlmostEqual, 0.00925, 1e-9)
			})
		})

		Convey("When the history is degenerate", func() {
			Convey("Then an empty history yields no value", func() {
				_, ok := calc.TwError(100, 1, nil)
				So(ok, ShouldBeFalse)
			})

			Convey("Then a single forecast at the end time yields no value", func() {
				_, ok := calc.TwError(100, 1, []accuracy.Forecast{{MadeAt: 100, Probability: 0.5}})
				So(ok, ShouldBeFalse)
			})

			Convey("Then a first forecast after the end time yields no value", func() {
				_, ok := calc.TwError(100, 1, []accuracy.Forecast{{MadeAt: 150, Probability: 0.5}})
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a perfect forecast is held the whole horizon", func() {
			got, ok := calc.TwError(100, 0, []accuracy.Forecast{{MadeAt: 0, Probability: 0}})

			Convey("Then the error is zero", func() {
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, 0)
			})
		})
	})
}

func TestCalculator_DecayExponent(t *testing.T) {
	Convey("Given decay exponent configuration", t, func() {
		Convey("Then a positive finite alpha is honored", func() {
			So(accuracy.New(accuracy.WithDecayExponent(3.5)).Alpha(), ShouldEqual, 3.5)
		})

		Convey("Then non-positive and non-finite alphas fall back to the default", func() {
			So(accuracy.New(accuracy.WithDecayExponent(0)).Alpha(), ShouldEqual, accuracy.DefaultDecayExponent)
			So(accuracy.New(accuracy.WithDecayExponent(-2)).Alpha(), ShouldEqual, accuracy.DefaultDecayExponent)
			So(accuracy.New(accuracy.WithDecayExponent(math.NaN())).Alpha(), ShouldEqual, accuracy.DefaultDecayExponent)
			So(accuracy.New(accuracy.WithDecayExponent(math.Inf(1))).Alpha(), ShouldEqual, accuracy.DefaultDecayExponent)
		})

		Convey("Then a larger alpha amplifies the weight of long-horizon intervals", func() {
			history := []accuracy.Forecast{
				{MadeAt: 0, Probability: 0.5},  // early, poor
				{MadeAt: 90, Probability: 1.0}, // late, exact
			}
			mild, ok := accuracy.New(accuracy.WithDecayExponent(1)).TwError(100, 1, history)
			So(ok, ShouldBeTrue)
			steep, ok := accuracy.New(accuracy.WithDecayExponent(4)).TwError(100, 1, history)
			So(ok, ShouldBeTrue)
			So(steep, ShouldBeGreaterThan, mild)
		})
	})
}
