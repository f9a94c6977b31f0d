package metrics

import (
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults apply", func() {
				So(m, ShouldNotBeNil)
				So(m.Enabled(), ShouldBeTrue)
				So(m.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x"),
				WithHistogramBuckets([]float64{1, 10}),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			m.RecordValidationFailure()

			Convey("Then names and labels reflect them", func() {
				So(m.RefreshInterval(), ShouldEqual, 5*time.Second)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_x_validation_failures_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When the refresh interval is changed after creation", func() {
			m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))
			m.SetRefreshInterval(time.Minute)
			m.SetRefreshInterval(0)
			m.SetRefreshInterval(-time.Second)

			Convey("Then only positive values are kept", func() {
				So(m.RefreshInterval(), ShouldEqual, time.Minute)
			})
		})

		Convey("When empty options are passed", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then the defaults are kept", func() {
				So(m.namespace, ShouldEqual, "aqicast")
				So(m.subsystem, ShouldEqual, "service")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("When predictions are recorded", func() {
			m.RecordPrediction(3 * time.Millisecond)
			m.RecordPrediction(time.Millisecond)
			m.RecordValidationFailure()
			m.RecordComputationFailure("tree_ensemble")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(m.predictions), ShouldEqual, 2.0)
				So(testutil.ToFloat64(m.validationFailures), ShouldEqual, 1.0)
				So(testutil.ToFloat64(m.computationFailures.WithLabelValues("tree_ensemble")), ShouldEqual, 1.0)
			})
		})

		Convey("When AQI values are recorded", func() {
			m.RecordAQI(42, "Good")
			m.RecordAQI(180, "Unhealthy")
			m.RecordAQI(12, "Good")
			m.UpdateConcentration("PM2.5", 18.4)

			Convey("Then categories and gauges reflect them", func() {
				So(testutil.ToFloat64(m.aqiCategory.WithLabelValues("Good")), ShouldEqual, 2.0)
				So(testutil.ToFloat64(m.concentration.WithLabelValues("PM2.5")), ShouldEqual, 18.4)
				So(testutil.CollectAndCount(m.aqiValue), ShouldEqual, 1)
			})
		})

		Convey("When the batch pool reports", func() {
			m.RecordBatchSize(4)
			m.AddBatchInFlight(4)
			m.AddBatchInFlight(-3)

			Convey("Then the in-flight gauge nets out", func() {
				So(testutil.ToFloat64(m.batchInFlight), ShouldEqual, 1.0)
			})
		})

		Convey("When location lookups are recorded", func() {
			m.RecordLocationLookup("hit")
			m.RecordLocationLookup("miss")
			m.RecordLocationLookup("hit")
			m.RecordLocationLatency(20 * time.Millisecond)

			Convey("Then outcomes are split by label", func() {
				So(testutil.ToFloat64(m.locationLookups.WithLabelValues("hit")), ShouldEqual, 2.0)
				So(testutil.ToFloat64(m.locationLookups.WithLabelValues("miss")), ShouldEqual, 1.0)
			})
		})

		Convey("When HTTP requests are recorded", func() {
			m.RecordHTTPRequest("/predict", "POST", "200", 4.2)
			m.RecordHTTPRequest("/predict", "POST", "400", 0.3)
			m.RecordErrorByEndpoint("/predict", "POST", "validation")

			Convey("Then each status has its own series", func() {
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("/predict", "POST", "200")), ShouldEqual, 1.0)
				So(testutil.ToFloat64(m.errorsByEndpoint.WithLabelValues("/predict", "POST", "validation")), ShouldEqual, 1.0)
			})
		})

		Convey("When system stats are refreshed", func() {
			runtime.GC()
			m.RefreshSystem()

			Convey("Then runtime gauges are populated", func() {
				So(testutil.ToFloat64(m.systemGoroutineCount), ShouldBeGreaterThan, 0)
				So(testutil.ToFloat64(m.systemMemoryUsage), ShouldBeGreaterThan, 0)
				So(m.lastGC, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestLatencyBuckets(t *testing.T) {
	Convey("Given a manager with default buckets", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))

		Convey("When a 42ms prediction and a 3s location fetch are observed", func() {
			m.RecordPrediction(42 * time.Millisecond)
			m.RecordLocationLatency(3 * time.Second)
			m.RecordHTTPRequest("/predict", "POST", "200", 42)

			families, err := registry.Gather()
			So(err, ShouldBeNil)
			bounds := map[string]map[float64]uint64{}
			for _, f := range families {
				if !strings.HasSuffix(f.GetName(), "_milliseconds") || strings.Contains(f.GetName(), "gc_pause") {
					continue
				}
				counts := map[float64]uint64{}
				for _, b := range f.GetMetric()[0].GetHistogram().GetBucket() {
					counts[b.GetUpperBound()] = b.GetCumulativeCount()
				}
				bounds[f.GetName()] = counts
			}

			Convey("Then bucket bounds are in milliseconds", func() {
				So(len(bounds), ShouldEqual, 3)
				for _, counts := range bounds {
					So(len(counts), ShouldEqual, len(defaultLatencyBuckets))
					So(counts, ShouldContainKey, 5000.0)
				}
				inference := bounds["aqicast_service_inference_latency_milliseconds"]
				So(inference[25], ShouldEqual, uint64(0))
				So(inference[50], ShouldEqual, uint64(1))
				location := bounds["aqicast_service_location_fetch_latency_milliseconds"]
				So(location[1000], ShouldEqual, uint64(0))
				So(location[5000], ShouldEqual, uint64(1))
			})
		})
	})
}

func TestMetricsDisabled(t *testing.T) {
	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("Observations are dropped", func() {
			m.RecordPrediction(time.Millisecond)
			m.RecordAQI(10, "Good")
			m.RefreshSystem()
			So(m.Enabled(), ShouldBeFalse)
			So(testutil.ToFloat64(m.predictions), ShouldEqual, 0.0)
			So(testutil.ToFloat64(m.systemGoroutineCount), ShouldEqual, 0.0)
		})
	})
}

func TestGlobalManager(t *testing.T) {
	Convey("Given the process wide manager", t, func() {
		So(Default(), ShouldNotBeNil)
		So(GetRegistry(), ShouldNotBeNil)

		Convey("Shortcuts are safe under concurrency", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					RecordPrediction(time.Millisecond)
					RecordValidationFailure()
					RecordComputationFailure("normalize")
					RecordAQI(75, "Moderate")
					UpdateConcentration("CO", 1.2)
					RecordBatchSize(3)
					AddBatchInFlight(1)
					AddBatchInFlight(-1)
					RecordLocationLookup("miss")
					RecordLocationLatency(time.Millisecond)
					RecordHTTPRequest("/aqi", "POST", "200", 1)
					RecordErrorByEndpoint("/aqi", "POST", "bad_request")
					RefreshSystem()
				}()
			}
			wg.Wait()

			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "aqicast_service_predictions_total")
		})
	})
}
