package aqi_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/aqicast/internal/domain/aqi"
	"github.com/okian/aqicast/internal/domain/pollutant"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStandardTable(t *testing.T) {
	Convey("Given the embedded breakpoint table", t, func() {
		table := aqi.StandardTable()

		Convey("Then the standard table validates", func() {
			So(table.Validate(), ShouldBeNil)
		})

		Convey("And it should cover every canonical pollutant", func() {
			for _, p := range pollutant.Canonical() {
				_, ok := table[p]
				So(ok, ShouldBeTrue)
			}
		})

		Convey("And every pollutant should saturate at 500", func() {
			for _, bp := range table {
				So(bp.Ceiling, ShouldEqual, 500.0)
			}
		})

		Convey("And every table should start at (0, 0)", func() {
			for _, bp := range table {
				So(bp.Concentration[0], ShouldEqual, 0.0)
				So(bp.Index[0], ShouldEqual, 0.0)
			}
		})

		Convey("And mutating the copy should not affect calculations", func() {
			table[pollutant.PM25].Index[1] = 999
			res, err := aqi.Compute(pollutant.Concentrations{pollutant.PM25: 12.1})
			So(err, ShouldBeNil)
			So(res.SubIndices[pollutant.PM25], ShouldEqual, 50.0)
		})
	})
}

func TestCompute(t *testing.T) {
	Convey("Given the default calculator", t, func() {
		table := aqi.StandardTable()

		Convey("When every pollutant is at zero concentration", func() {
			for p := range table {
				res, err := aqi.Compute(pollutant.Concentrations{p: 0})
				So(err, ShouldBeNil)
				So(res.SubIndices[p], ShouldEqual, 0.0)
			}
		})

		Convey("When a concentration sits exactly on a breakpoint", func() {
			Convey("Then the index should equal the breakpoint index", func() {
				for p, bp := range table {
					for i, c := range bp.Concentration {
						res, err := aqi.Compute(pollutant.Concentrations{p: c})
						So(err, ShouldBeNil)
						So(res.SubIndices[p], ShouldEqual, bp.Index[i])
					}
				}
			})

			Convey("And PM2.5 at 12.1 should be exactly 50", func() {
				res, err := aqi.Compute(pollutant.Concentrations{pollutant.PM25: 12.1})
				So(err, ShouldBeNil)
				So(res.SubIndices[pollutant.PM25], ShouldEqual, 50.0)
			})
		})

		Convey("When a concentration falls inside a segment", func() {
			res, err := aqi.Compute(pollutant.Concentrations{pollutant.PM10: 105})

			Convey("Then it should interpolate linearly", func() {
				So(err, ShouldBeNil)
				So(res.SubIndices[pollutant.PM10], ShouldAlmostEqual, 75, 1e-9)
			})
		})

		Convey("When a concentration exceeds the last breakpoint", func() {
			res, err := aqi.Compute(pollutant.Concentrations{pollutant.PM10: 1000})

			Convey("Then the index should saturate at the last value", func() {
				So(err, ShouldBeNil)
				So(res.SubIndices[pollutant.PM10], ShouldEqual, 500.0)
			})

			Convey("And no pollutant should extrapolate past its table", func() {
				for p, bp := range table {
					last := bp.Concentration[len(bp.Concentration)-1]
					r, err := aqi.Compute(pollutant.Concentrations{p: last * 10})
					So(err, ShouldBeNil)
					So(r.SubIndices[p], ShouldEqual, bp.Ceiling)
				}
			})
		})

		Convey("When a concentration is just past the last breakpoint", func() {
			cases := []struct {
				p    pollutant.Pollutant
				vals []float64
			}{
				{pollutant.PM25, []float64{350.6, 400}},
				{pollutant.PM10, []float64{505.1, 550}},
				{pollutant.NO2, []float64{1650.1, 1800}},
				{pollutant.SO2, []float64{805.1, 900}},
				{pollutant.CO, []float64{40.6, 45}},
				{pollutant.Ozone, []float64{201.1, 300}},
			}

			Convey("Then it should jump straight to 500", func() {
				for _, tc := range cases {
					for _, v := range tc.vals {
						r, err := aqi.Compute(pollutant.Concentrations{tc.p: v})
						So(err, ShouldBeNil)
						So(r.SubIndices[tc.p], ShouldEqual, 500.0)
					}
				}
			})
		})

		Convey("When a concentration falls in the last segment", func() {
			r, err := aqi.Compute(pollutant.Concentrations{pollutant.PM10: 465, pollutant.Ozone: 153.5})

			Convey("Then it should still interpolate within that segment", func() {
				So(err, ShouldBeNil)
				So(r.SubIndices[pollutant.PM10], ShouldAlmostEqual, 350, 1e-9)
				So(r.SubIndices[pollutant.Ozone], ShouldAlmostEqual, 250, 1e-9)
			})
		})

		Convey("When the input is empty", func() {
			res, err := aqi.Compute(pollutant.Concentrations{})

			Convey("Then the overall index should be undefined, not zero", func() {
				So(err, ShouldBeNil)
				So(res.Overall, ShouldBeNil)
				So(res.SubIndices, ShouldBeEmpty)
				_, ok := res.OverallValue()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When several pollutants are present", func() {
			conc := pollutant.Concentrations{
				pollutant.PM25: 25,
				pollutant.NO2:  48.6,
				pollutant.CO:   1.2,
			}
			res, err := aqi.Compute(conc)

			Convey("Then the overall index should be the maximum sub-index", func() {
				So(err, ShouldBeNil)
				So(res.Overall, ShouldNotBeNil)
				maxSub := math.Inf(-1)
				for _, v := range res.SubIndices {
					maxSub = math.Max(maxSub, v)
				}
				So(*res.Overall, ShouldEqual, maxSub)
				So(len(res.SubIndices), ShouldEqual, 3)
			})

			Convey("And pollutants absent from the input should be skipped", func() {
				_, ok := res.SubIndices[pollutant.Ozone]
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the input names an unknown pollutant", func() {
			_, err := aqi.Compute(pollutant.Concentrations{"NH3": 10})

			Convey("Then it should fail with a configuration error", func() {
				So(err, ShouldNotBeNil)
				var cfgErr *aqi.ConfigurationError
				So(errors.As(err, &cfgErr), ShouldBeTrue)
				So(cfgErr.Pollutant, ShouldEqual, pollutant.Pollutant("NH3"))
				So(errors.Is(err, aqi.ErrUnknownPollutant), ShouldBeTrue)
			})
		})

		Convey("When computing twice with identical input", func() {
			conc := pollutant.Concentrations{
				pollutant.PM25:  37.3,
				pollutant.PM10:  88.8,
				pollutant.NO2:   12.5,
				pollutant.SO2:   4.1,
				pollutant.CO:    0.7,
				pollutant.Ozone: 63.2,
			}
			a, errA := aqi.Compute(conc)
			b, errB := aqi.Compute(conc)

			Convey("Then the outputs should be bit-identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(math.Float64bits(*a.Overall), ShouldEqual, math.Float64bits(*b.Overall))
				for p, v := range a.SubIndices {
					So(math.Float64bits(v), ShouldEqual, math.Float64bits(b.SubIndices[p]))
				}
			})
		})
	})
}

func TestNewCalculator(t *testing.T) {
	Convey("Given a custom two-point table", t, func() {
		table := aqi.Table{
			pollutant.PM25: {Concentration: []float64{0, 100}, Index: []float64{0, 80}},
			pollutant.NO2:  {Concentration: []float64{0, 100}, Index: []float64{0, 45}},
		}
		calc, err := aqi.NewCalculator(aqi.WithTable(table))
		So(err, ShouldBeNil)

		Convey("When both pollutants are at the top of their range", func() {
			res, err := calc.Compute(pollutant.Concentrations{pollutant.PM25: 100, pollutant.NO2: 100})

			Convey("Then the overall index should be the larger sub-index", func() {
				So(err, ShouldBeNil)
				So(res.SubIndices[pollutant.PM25], ShouldEqual, 80.0)
				So(res.SubIndices[pollutant.NO2], ShouldEqual, 45.0)
				So(*res.Overall, ShouldEqual, 80.0)
			})
		})

		Convey("When a concentration is above the table without a ceiling", func() {
			v, err := calc.SubIndex(pollutant.PM25, 250)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 80.0)
		})

		Convey("When asking for a single sub-index", func() {
			v, err := calc.SubIndex(pollutant.NO2, 50)
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 22.5, 1e-9)

			_, err = calc.SubIndex(pollutant.CO, 1)
			So(errors.Is(err, aqi.ErrUnknownPollutant), ShouldBeTrue)
		})
	})

	Convey("Given invalid tables", t, func() {
		cases := []struct {
			name  string
			table aqi.Table
		}{
			{"mismatched lengths", aqi.Table{pollutant.CO: {Concentration: []float64{0, 1, 2}, Index: []float64{0, 50}}}},
			{"single breakpoint", aqi.Table{pollutant.CO: {Concentration: []float64{0}, Index: []float64{0}}}},
			{"non-increasing", aqi.Table{pollutant.CO: {Concentration: []float64{0, 5, 5}, Index: []float64{0, 50, 100}}}},
			{"decreasing index", aqi.Table{pollutant.CO: {Concentration: []float64{0, 5, 6}, Index: []float64{0, 50, 40}}}},
			{"ceiling below last index", aqi.Table{pollutant.CO: {Concentration: []float64{0, 5}, Index: []float64{0, 50}, Ceiling: 40}}},
		}
		for _, tc := range cases {
			Convey("When the table has "+tc.name, func() {
				calc, err := aqi.NewCalculator(aqi.WithTable(tc.table))
				So(calc, ShouldBeNil)
				So(errors.Is(err, aqi.ErrInvalidTable), ShouldBeTrue)
			})
		}
	})
}

func TestCategoryOf(t *testing.T) {
	Convey("Given index values across bands", t, func() {
		So(aqi.CategoryOf(0), ShouldEqual, aqi.Good)
		So(aqi.CategoryOf(50), ShouldEqual, aqi.Good)
		So(aqi.CategoryOf(50.1), ShouldEqual, aqi.Moderate)
		So(aqi.CategoryOf(100), ShouldEqual, aqi.Moderate)
		So(aqi.CategoryOf(120), ShouldEqual, aqi.UnhealthyForSensitiveGroups)
		So(aqi.CategoryOf(200), ShouldEqual, aqi.Unhealthy)
		So(aqi.CategoryOf(250), ShouldEqual, aqi.VeryUnhealthy)
		So(aqi.CategoryOf(301), ShouldEqual, aqi.Hazardous)
		So(aqi.CategoryOf(500), ShouldEqual, aqi.Hazardous)
	})
}
