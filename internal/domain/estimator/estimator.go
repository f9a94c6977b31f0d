// Package estimator turns a meteorological reading into pollutant
// concentrations by blending a tree ensemble with a sequence model.
//
// Pipeline: validate -> normalize -> (trees | sequence) -> blend ->
// inverse transform -> fold negatives -> map by canonical pollutant order.
package estimator

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/aqicast/internal/domain/pollutant"
)

// Default estimator configuration constants.
const (
	DefaultBlendWeight = 0.5
	DefaultWindow      = 10
)

// FeatureScaler normalizes a raw meteorological vector.
type FeatureScaler interface {
	Transform(x []float64) ([]float64, error)
}

// PollutantScaler maps scaled pollutant predictions back to physical units.
type PollutantScaler interface {
	InverseTransform(x []float64) ([]float64, error)
}

// Regressor predicts one pollutant from a scaled feature vector.
type Regressor interface {
	Predict(x []float64) (float64, error)
}

// SequencePredictor predicts every pollutant from a window of scaled
// feature vectors.
type SequencePredictor interface {
	Predict(window [][]float64) ([]float64, error)
	// Window is the number of time steps the model was trained on.
	Window() int
}

// Estimator implements the concentration pipeline. Collaborators are never
// mutated, so one Estimator serves concurrent requests.
type Estimator struct {
	meteo     FeatureScaler
	pollutant PollutantScaler
	trees     []Regressor
	sequence  SequencePredictor

	blendWeight float64
	policy      NegativePolicy
	window      int
}

// New builds an Estimator. trees must hold one regressor per pollutant in
// canonical order.
func New(meteo FeatureScaler, pol PollutantScaler, trees []Regressor, seq SequencePredictor, opts ...Option) (*Estimator, error) {
	switch {
	case meteo == nil:
		return nil, fmt.Errorf("%w: feature scaler is nil", ErrMisconfigured)
	case pol == nil:
		return nil, fmt.Errorf("%w: pollutant scaler is nil", ErrMisconfigured)
	case seq == nil:
		return nil, fmt.Errorf("%w: sequence predictor is nil", ErrMisconfigured)
	case len(trees) != pollutant.Count:
		return nil, fmt.Errorf("%w: want %d tree regressors, got %d", ErrMisconfigured, pollutant.Count, len(trees))
	}
	for i, t := range trees {
		if t == nil {
			return nil, fmt.Errorf("%w: tree regressor %d is nil", ErrMisconfigured, i)
		}
	}

	e := &Estimator{
		meteo:       meteo,
		pollutant:   pol,
		trees:       append([]Regressor(nil), trees...),
		sequence:    seq,
		blendWeight: DefaultBlendWeight,
		policy:      Absolute,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.window <= 0 {
		e.window = seq.Window()
	}
	if e.window <= 0 {
		e.window = DefaultWindow
	}
	return e, nil
}

// BlendWeight returns the weight applied to the tree ensemble.
func (e *Estimator) BlendWeight() float64 { return e.blendWeight }

// Window returns the sequence window length in use.
func (e *Estimator) Window() int { return e.window }

// Policy returns the negative value policy in use.
func (e *Estimator) Policy() NegativePolicy { return e.policy }

// Validate reports every required feature that is absent or not finite.
func Validate(r pollutant.Reading) error {
	var missing, invalid []string
	for _, f := range pollutant.Features() {
		v, ok := r[f]
		switch {
		case !ok:
			missing = append(missing, string(f))
		case math.IsNaN(v) || math.IsInf(v, 0):
			invalid = append(invalid, string(f))
		}
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// Estimate runs the pipeline for a single reading. It returns a
// *ValidationError before touching any model, or a *ComputationError when a
// collaborator fails.
func (e *Estimator) Estimate(ctx context.Context, r pollutant.Reading) (pollutant.Concentrations, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}
	raw, _ := r.Vector()

	scaled, err := e.meteo.Transform(raw)
	if err != nil {
		return nil, computeErr(StageNormalize, err)
	}
	if err := checkVector(scaled, pollutant.FeatureCount); err != nil {
		return nil, computeErr(StageNormalize, err)
	}

	treeOut, err := e.predictTrees(scaled)
	if err != nil {
		return nil, computeErr(StageTrees, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqOut, err := e.sequence.Predict(repeat(scaled, e.window))
	if err != nil {
		return nil, computeErr(StageSequence, err)
	}
	if err := checkVector(seqOut, pollutant.Count); err != nil {
		return nil, computeErr(StageSequence, err)
	}

	blended := make([]float64, pollutant.Count)
	for i := range blended {
		blended[i] = e.blendWeight*treeOut[i] + (1-e.blendWeight)*seqOut[i]
	}

	physical, err := e.pollutant.InverseTransform(blended)
	if err != nil {
		return nil, computeErr(StageInverse, err)
	}
	if err := checkVector(physical, pollutant.Count); err != nil {
		return nil, computeErr(StageInverse, err)
	}

	for i, v := range physical {
		physical[i] = e.policy.apply(v)
	}
	return pollutant.FromVector(physical), nil
}

func (e *Estimator) predictTrees(scaled []float64) ([]float64, error) {
	out := make([]float64, len(e.trees))
	for i, t := range e.trees {
		v, err := t.Predict(scaled)
		if err != nil {
			return nil, fmt.Errorf("regressor %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("regressor %d: non-finite output", i)
		}
		out[i] = v
	}
	return out, nil
}

// repeat replicates a single observation across the window. Only one time
// step of input is available per request.
func repeat(vec []float64, n int) [][]float64 {
	window := make([][]float64, n)
	for i := range window {
		window[i] = append([]float64(nil), vec...)
	}
	return window
}

func checkVector(v []float64, want int) error {
	if len(v) != want {
		return fmt.Errorf("want %d values, got %d", want, len(v))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("non-finite value at %d", i)
		}
	}
	return nil
}
