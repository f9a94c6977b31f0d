package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Get panics before Init", t, func() {
		saved := global
		global = nil
		defer func() { global = saved }()
		So(func() { Get() }, ShouldPanic)
	})

	Convey("Init installs a global logger", t, func() {
		So(Init(WithOutput(&bytes.Buffer{})), ShouldBeNil)
		So(Get(), ShouldNotBeNil)
		So(Named("test"), ShouldNotBeNil)
		So(Sync(), ShouldBeNil)
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger", t, func() {
		var buf bytes.Buffer
		So(SetLevelString("info"), ShouldBeNil)
		l := New(WithOutput(&buf), WithFormat(FormatJSON)).Named("estimator")

		decode := func() map[string]any {
			var m map[string]any
			So(json.Unmarshal(buf.Bytes(), &m), ShouldBeNil)
			return m
		}

		Convey("Fields, component and source are written", func() {
			l.Info(context.Background(), "predicted",
				String("stage", "trees"),
				Int("count", 6),
				Bool("cached", true),
				Duration("took", time.Second),
				Strings("missing", []string{"RH"}),
			)
			m := decode()
			So(m["msg"], ShouldEqual, "predicted")
			So(m["component"], ShouldEqual, "estimator")
			So(m["stage"], ShouldEqual, "trees")
			So(m["count"], ShouldEqual, float64(6))
			So(m["cached"], ShouldEqual, true)
			So(m["source"], ShouldContainSubstring, "logger_test.go")
		})

		Convey("Errors are rendered as their message", func() {
			l.Error(context.Background(), "failed", Error(errors.New("boom")))
			So(decode()["error"], ShouldEqual, "boom")
		})

		Convey("The request id travels in the context", func() {
			ctx := WithRequestID(context.Background(), "req-1")
			So(RequestID(ctx), ShouldEqual, "req-1")
			l.Warn(ctx, "slow")
			So(decode()["request_id"], ShouldEqual, "req-1")
		})

		Convey("Lines below the level are dropped", func() {
			l.Debug(context.Background(), "hidden")
			So(buf.Len(), ShouldEqual, 0)
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Known levels parse", t, func() {
		for _, lvl := range []string{"debug", "INFO", " warn ", "warning", "error", ""} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("info"), ShouldBeNil)
	})

	Convey("Unknown levels are rejected", t, func() {
		So(SetLevelString("verbose"), ShouldNotBeNil)
	})
}

func TestNop(t *testing.T) {
	Convey("Nop swallows everything including Fatal", t, func() {
		l := Nop()
		l.Info(context.Background(), "x")
		l.Fatal(context.Background(), "y")
		So(l.Named("z"), ShouldNotBeNil)
	})
}
