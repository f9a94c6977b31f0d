// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/okian/aqicast/internal/adapters/geo"
	service "github.com/okian/aqicast/internal/app"
	"github.com/okian/aqicast/internal/domain/aqi"
	"github.com/okian/aqicast/internal/domain/pollutant"
	"github.com/okian/aqicast/pkg/logger"
)

const defaultMaxBodyBytes = 1 << 20

// Predictor runs the concentration and AQI pipeline.
type Predictor interface {
	Predict(ctx context.Context, r pollutant.Reading) (*service.Prediction, error)
	PredictBatch(ctx context.Context, readings []pollutant.Reading) ([]service.BatchItem, error)
}

// AQIComputer derives AQI values from concentrations.
type AQIComputer interface {
	ComputeAQI(ctx context.Context, conc pollutant.Concentrations) (aqi.Result, aqi.Category, error)
}

// Locator resolves the service location.
type Locator interface {
	Locate(ctx context.Context) (geo.Location, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Predictor
	AQIComputer
	Locator
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	predictHandler  *PredictHandler
	aqiHandler      *AQIHandler
	locationHandler *LocationHandler
}

// Option applies a configuration option to the Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger       logger.Logger
	maxBodyBytes int64
}

// WithLogger sets the logger handlers report failures to.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{logger: logger.Nop(), maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		predictHandler:  &PredictHandler{deps: deps, validate: v, logger: o.logger, maxBodyBytes: o.maxBodyBytes},
		aqiHandler:      &AQIHandler{deps: deps, validate: v, logger: o.logger, maxBodyBytes: o.maxBodyBytes},
		locationHandler: &LocationHandler{deps: deps, logger: o.logger},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	route := func(path, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(path, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}
	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/metrics", "metrics", s.healthHandler.HandleMetrics)
	route("/stats", "stats", s.statsHandler.HandleStats)
	route("/predict", "predict", s.predictHandler.HandlePredict)
	route("/predict/batch", "predict_batch", s.predictHandler.HandlePredictBatch)
	route("/aqi", "aqi", s.aqiHandler.HandleComputeAQI)
	route("/location", "location", s.locationHandler.HandleLocation)
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func allowMethod(w http.ResponseWriter, r *http.Request, op, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodBlocked))
	return false
}

// decodeBody reads a single JSON value from the request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, limit int64, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", NewKind(op, ErrBodyTooLarge))
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return false
	}
	return true
}
