package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// MinMaxScaler is a fitted min-max transform with scikit-learn semantics:
// x' = x*scale + min, where scale = (hi-lo)/(dataMax-dataMin).
// A constant feature (dataMax == dataMin) gets a scale of 1.
type MinMaxScaler struct {
	scale []float64
	min   []float64
}

// scalerFile is the exported scaler parameters.
type scalerFile struct {
	DataMin      []float64  `json:"data_min"`
	DataMax      []float64  `json:"data_max"`
	FeatureRange [2]float64 `json:"feature_range"`
}

// NewMinMaxScaler builds a scaler from fitted bounds and a target range.
func NewMinMaxScaler(dataMin, dataMax []float64, lo, hi float64) (*MinMaxScaler, error) {
	if len(dataMin) == 0 || len(dataMin) != len(dataMax) {
		return nil, fmt.Errorf("%w: data_min has %d values, data_max has %d", ErrInvalidModel, len(dataMin), len(dataMax))
	}
	if hi <= lo {
		return nil, fmt.Errorf("%w: feature range [%g, %g] is empty", ErrInvalidModel, lo, hi)
	}
	s := &MinMaxScaler{
		scale: make([]float64, len(dataMin)),
		min:   make([]float64, len(dataMin)),
	}
	for i := range dataMin {
		span := dataMax[i] - dataMin[i]
		if span < 0 {
			return nil, fmt.Errorf("%w: data_max < data_min for feature %d", ErrInvalidModel, i)
		}
		if span == 0 {
			span = 1
		}
		s.scale[i] = (hi - lo) / span
		s.min[i] = lo - dataMin[i]*s.scale[i]
	}
	return s, nil
}

// LoadMinMaxScaler reads scaler parameters from a JSON file.
func LoadMinMaxScaler(path string) (*MinMaxScaler, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadModel, err)
	}
	var f scalerFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadModel, path, err)
	}
	lo, hi := f.FeatureRange[0], f.FeatureRange[1]
	if lo == 0 && hi == 0 {
		hi = 1
	}
	return NewMinMaxScaler(f.DataMin, f.DataMax, lo, hi)
}

// Dim returns the number of features the scaler was fitted on.
func (s *MinMaxScaler) Dim() int { return len(s.scale) }

// Transform maps raw values into the feature range.
func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.scale) {
		return nil, fmt.Errorf("%w: scaler expects %d values, got %d", ErrShape, len(s.scale), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.scale[i] + s.min[i]
	}
	return out, nil
}

// InverseTransform maps scaled values back to the original units.
func (s *MinMaxScaler) InverseTransform(x []float64) ([]float64, error) {
	if len(x) != len(s.scale) {
		return nil, fmt.Errorf("%w: scaler expects %d values, got %d", ErrShape, len(s.scale), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.min[i]) / s.scale[i]
	}
	return out, nil
}
