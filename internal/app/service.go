// Package service binds the estimator, the AQI calculator and the location
// lookup into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/aqicast/internal/adapters/geo"
	"github.com/okian/aqicast/internal/adapters/worker"
	"github.com/okian/aqicast/internal/domain/aqi"
	"github.com/okian/aqicast/internal/domain/estimator"
	"github.com/okian/aqicast/internal/domain/pollutant"
	"github.com/okian/aqicast/pkg/logger"
	"github.com/okian/aqicast/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultMaxBatchSize = 256
)

// Estimator predicts concentrations from a reading.
type Estimator interface {
	Estimate(ctx context.Context, r pollutant.Reading) (pollutant.Concentrations, error)
}

// Calculator turns concentrations into AQI values.
type Calculator interface {
	Compute(conc pollutant.Concentrations) (aqi.Result, error)
}

// Locator resolves the service location.
type Locator interface {
	Locate(ctx context.Context) (geo.Location, error)
}

// Prediction is the outcome of one reading.
type Prediction struct {
	Concentrations pollutant.Concentrations
	AQI            aqi.Result
	// Category is empty when no overall index is defined.
	Category aqi.Category
}

// BatchItem is one slot of a batch result, in input order.
type BatchItem struct {
	Prediction *Prediction
	Err        error
}

// Service implements the API dependencies.
type Service struct {
	estimator    Estimator
	calculator   Calculator
	locator      Locator
	batchWorkers int
	maxBatchSize int
	pool         *worker.Pool
	logger       logger.Logger

	startedAt   time.Time
	predictions atomic.Int64
	failures    atomic.Int64
	batches     atomic.Int64

	mu          sync.RWMutex
	lastOverall *float64
	lastAt      time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEstimator sets the concentration estimator.
func WithEstimator(e Estimator) Option {
	return func(s *Service) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithCalculator replaces the default AQI calculator.
func WithCalculator(c Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calculator = c
		}
	}
}

// WithLocator sets the location lookup.
func WithLocator(l Locator) Option {
	return func(s *Service) {
		if l != nil {
			s.locator = l
		}
	}
}

// WithBatchWorkers sets how many batch readings are predicted at once.
func WithBatchWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithMaxBatchSize caps the number of readings per batch.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without WithCalculator the standard breakpoint
// table is used.
func New(opts ...Option) *Service {
	s := &Service{
		batchWorkers: runtime.NumCPU(),
		maxBatchSize: defaultMaxBatchSize,
		logger:       logger.Nop(),
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.calculator == nil {
		c, err := aqi.NewCalculator()
		if err != nil {
			// the embedded table always validates
			panic(err)
		}
		s.calculator = c
	}
	s.pool = worker.NewPool(s.batchWorkers, worker.WithName("batch"), worker.WithLogger(s.logger))
	return s
}

// Predict estimates concentrations for r and derives the AQI.
func (s *Service) Predict(ctx context.Context, r pollutant.Reading) (*Prediction, error) {
	if s.estimator == nil {
		return nil, ErrNoEstimator
	}

	start := time.Now()
	conc, err := s.estimator.Estimate(ctx, r)
	if err != nil {
		s.recordFailure(ctx, err)
		return nil, err
	}

	res, err := s.calculator.Compute(conc)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error(ctx, "aqi computation failed", logger.Error(err))
		return nil, err
	}

	p := &Prediction{Concentrations: conc, AQI: res}
	if v, ok := res.OverallValue(); ok {
		p.Category = aqi.CategoryOf(v)
		metrics.RecordAQI(v, string(p.Category))
		s.remember(v)
	}
	for pol, v := range conc {
		metrics.UpdateConcentration(string(pol), v)
	}
	metrics.RecordPrediction(time.Since(start))
	s.predictions.Add(1)

	s.logger.Debug(ctx, "prediction complete",
		logger.String("category", string(p.Category)),
		logger.Duration("took", time.Since(start)),
	)
	return p, nil
}

func (s *Service) recordFailure(ctx context.Context, err error) {
	s.failures.Add(1)

	var verr *estimator.ValidationError
	if errors.As(err, &verr) {
		metrics.RecordValidationFailure()
		s.logger.Debug(ctx, "reading rejected",
			logger.Strings("missing", verr.Missing),
			logger.Strings("invalid", verr.Invalid),
		)
		return
	}

	var cerr *estimator.ComputationError
	if errors.As(err, &cerr) {
		metrics.RecordComputationFailure(string(cerr.Stage))
		s.logger.Error(ctx, "model failure",
			logger.String("stage", string(cerr.Stage)),
			logger.Error(cerr.Cause),
		)
		return
	}

	s.logger.Error(ctx, "prediction failed", logger.Error(err))
}

func (s *Service) remember(overall float64) {
	s.mu.Lock()
	s.lastOverall = &overall
	s.lastAt = time.Now()
	s.mu.Unlock()
}

// PredictBatch predicts every reading on the bounded worker pool. Results
// keep input order; a failed reading carries its own error and does not
// affect the others.
func (s *Service) PredictBatch(ctx context.Context, readings []pollutant.Reading) ([]BatchItem, error) {
	switch {
	case s.estimator == nil:
		return nil, ErrNoEstimator
	case len(readings) == 0:
		return nil, ErrEmptyBatch
	case len(readings) > s.maxBatchSize:
		return nil, fmt.Errorf("%w: %d readings, limit %d", ErrBatchTooLarge, len(readings), s.maxBatchSize)
	}

	s.batches.Add(1)
	metrics.RecordBatchSize(len(readings))

	items := make([]BatchItem, len(readings))
	for i := range items {
		items[i].Err = ErrNotProcessed
	}
	err := s.pool.Run(ctx, len(readings), func(ctx context.Context, i int) {
		p, err := s.Predict(ctx, readings[i])
		items[i] = BatchItem{Prediction: p, Err: err}
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ComputeAQI derives AQI values from caller supplied concentrations.
func (s *Service) ComputeAQI(ctx context.Context, conc pollutant.Concentrations) (aqi.Result, aqi.Category, error) {
	res, err := s.calculator.Compute(conc)
	if err != nil {
		s.logger.Warn(ctx, "aqi computation rejected", logger.Error(err))
		return aqi.Result{}, "", err
	}
	var cat aqi.Category
	if v, ok := res.OverallValue(); ok {
		cat = aqi.CategoryOf(v)
	}
	return res, cat, nil
}

// Locate resolves the current location.
func (s *Service) Locate(ctx context.Context) (geo.Location, error) {
	if s.locator == nil {
		return geo.Location{}, ErrNoLocator
	}
	return s.locator.Locate(ctx)
}

// Stop rejects further batch work.
func (s *Service) Stop() {
	s.pool.Stop()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"uptimeSeconds":  int64(time.Since(s.startedAt).Seconds()),
		"predictions":    s.predictions.Load(),
		"failures":       s.failures.Load(),
		"batches":        s.batches.Load(),
		"batchWorkers":   s.batchWorkers,
		"maxBatchSize":   s.maxBatchSize,
		"batchInFlight":  s.pool.InFlight(),
		"modelsLoaded":   s.estimator != nil,
		"locatorEnabled": s.locator != nil,
	}
	if s.lastOverall != nil {
		stats["lastAQI"] = *s.lastOverall
		stats["lastCategory"] = string(aqi.CategoryOf(*s.lastOverall))
		stats["lastPredictionAt"] = s.lastAt.UTC().Format(time.RFC3339)
	}
	if e, ok := s.estimator.(*estimator.Estimator); ok {
		stats["blendWeight"] = e.BlendWeight()
		stats["window"] = e.Window()
		stats["negativePolicy"] = string(e.Policy())
	}
	return stats
}
