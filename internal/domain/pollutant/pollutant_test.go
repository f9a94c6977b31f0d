package pollutant_test

import (
	"testing"

	"github.com/okian/aqicast/internal/domain/pollutant"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCanonicalOrder(t *testing.T) {
	Convey("Given the canonical pollutant order", t, func() {
		order := pollutant.Canonical()

		Convey("Then it should match the model output order", func() {
			So(order, ShouldResemble, []pollutant.Pollutant{
				pollutant.PM25, pollutant.PM10, pollutant.NO2,
				pollutant.SO2, pollutant.CO, pollutant.Ozone,
			})
			So(len(order), ShouldEqual, pollutant.Count)
		})

		Convey("And mutating the returned slice should not leak", func() {
			order[0] = "mutated"
			So(pollutant.Canonical()[0], ShouldEqual, pollutant.PM25)
		})
	})
}

func TestReadingVector(t *testing.T) {
	Convey("Given a complete reading", t, func() {
		r := pollutant.Reading{
			pollutant.BarometricPressure: 760,
			pollutant.Temperature:        28,
			pollutant.WindSpeed:          3.2,
			pollutant.RelativeHumidity:   55,
		}

		Convey("When converting to a vector", func() {
			vec, ok := r.Vector()

			Convey("Then values should follow feature order", func() {
				So(ok, ShouldBeTrue)
				So(vec, ShouldResemble, []float64{55, 3.2, 28, 760})
			})
		})
	})

	Convey("Given a reading without temperature", t, func() {
		r := pollutant.Reading{
			pollutant.RelativeHumidity:   55,
			pollutant.WindSpeed:          3.2,
			pollutant.BarometricPressure: 760,
		}

		Convey("Then the vector should not be available", func() {
			vec, ok := r.Vector()
			So(ok, ShouldBeFalse)
			So(vec, ShouldBeNil)
		})
	})
}

func TestResolveFeature(t *testing.T) {
	Convey("Given request keys", t, func() {
		So(pollutant.ResolveFeature("WS"), ShouldEqual, pollutant.WindSpeed)
		So(pollutant.ResolveFeature("BP"), ShouldEqual, pollutant.BarometricPressure)
		So(pollutant.ResolveFeature("RH"), ShouldEqual, pollutant.RelativeHumidity)
		So(pollutant.ResolveFeature("Temp"), ShouldEqual, pollutant.Temperature)
		So(pollutant.ResolveFeature("other"), ShouldEqual, pollutant.Feature("other"))
	})
}

func TestFromVector(t *testing.T) {
	Convey("Given a vector of six values", t, func() {
		c := pollutant.FromVector([]float64{1, 2, 3, 4, 5, 6})

		Convey("Then each value should land on its pollutant", func() {
			So(c[pollutant.PM25], ShouldEqual, 1.0)
			So(c[pollutant.PM10], ShouldEqual, 2.0)
			So(c[pollutant.NO2], ShouldEqual, 3.0)
			So(c[pollutant.SO2], ShouldEqual, 4.0)
			So(c[pollutant.CO], ShouldEqual, 5.0)
			So(c[pollutant.Ozone], ShouldEqual, 6.0)
		})
	})

	Convey("Given a short vector", t, func() {
		So(pollutant.FromVector([]float64{1, 2}), ShouldBeNil)
	})
}
