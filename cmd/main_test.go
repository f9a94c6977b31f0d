package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/aqicast/internal/config"
	"github.com/okian/aqicast/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestBuild(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatal(err)
	}

	convey.Convey("Given a config pointing at an empty models dir", t, func() {
		cfg := config.New()
		cfg.ModelsDir = filepath.Join(t.TempDir(), "missing")
		cfg.LocationURL = ""
		cfg.MetricsInterval = 7 * time.Second

		a, err := build(context.Background(), cfg)
		convey.So(err, convey.ShouldBeNil)
		defer a.svc.Stop()

		convey.Convey("Then the service starts without models", func() {
			convey.So(a.svc.GetStats()["modelsLoaded"], convey.ShouldBeFalse)
			convey.So(a.cache, convey.ShouldBeNil)
			convey.So(a.scheduler, convey.ShouldNotBeNil)
			convey.So(a.scheduler.MetricsInterval(), convey.ShouldEqual, 7*time.Second)
		})

		convey.Convey("And predictions answer 503", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"RH": 1}`))
			w := httptest.NewRecorder()
			a.mux.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("And the AQI and docs routes still work", func() {
			w := httptest.NewRecorder()
			a.mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/aqi", strings.NewReader(`{"concentrations": {"SO2": 36}}`)))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			w = httptest.NewRecorder()
			a.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And /location is unavailable", func() {
			w := httptest.NewRecorder()
			a.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/location", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	convey.Convey("Given a location endpoint", t, func() {
		cfg := config.New()
		cfg.ModelsDir = t.TempDir()
		cfg.LocationURL = "http://127.0.0.1:1/json"

		a, err := build(context.Background(), cfg)
		convey.So(err, convey.ShouldBeNil)
		defer a.svc.Stop()

		convey.Convey("Then a cached locator is wired", func() {
			convey.So(a.cache, convey.ShouldNotBeNil)
			convey.So(a.svc.GetStats()["locatorEnabled"], convey.ShouldBeTrue)
		})
	})
}
