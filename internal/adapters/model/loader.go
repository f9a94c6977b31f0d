package model

import (
	"fmt"
	"path/filepath"

	"github.com/okian/aqicast/internal/domain/estimator"
	"github.com/okian/aqicast/internal/domain/pollutant"
)

// File names expected inside a model directory.
const (
	MeteoScalerFile     = "scaler_meteo.json"
	PollutantScalerFile = "pollutant_scaler.json"
	LSTMFile            = "lstm_weights.json"
	boosterPattern      = "xgb_booster_%d.json"
)

// BoosterFile returns the file name of the tree model for pollutant index i.
func BoosterFile(i int) string { return fmt.Sprintf(boosterPattern, i) }

// Bundle holds every fitted artifact the estimator needs.
type Bundle struct {
	Meteo     *MinMaxScaler
	Pollutant *MinMaxScaler
	Trees     []*Booster
	Sequence  *LSTM
}

// Load reads a complete bundle from dir and checks the artifacts agree on
// feature and pollutant counts.
func Load(dir string) (*Bundle, error) {
	meteo, err := LoadMinMaxScaler(filepath.Join(dir, MeteoScalerFile))
	if err != nil {
		return nil, err
	}
	pol, err := LoadMinMaxScaler(filepath.Join(dir, PollutantScalerFile))
	if err != nil {
		return nil, err
	}
	seq, err := LoadLSTM(filepath.Join(dir, LSTMFile))
	if err != nil {
		return nil, err
	}
	b := &Bundle{Meteo: meteo, Pollutant: pol, Sequence: seq}
	for i := 0; i < pollutant.Count; i++ {
		t, err := LoadBooster(filepath.Join(dir, BoosterFile(i)))
		if err != nil {
			return nil, err
		}
		b.Trees = append(b.Trees, t)
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) check() error {
	switch {
	case b.Meteo.Dim() != pollutant.FeatureCount:
		return fmt.Errorf("%w: meteo scaler has %d features, want %d", ErrInvalidModel, b.Meteo.Dim(), pollutant.FeatureCount)
	case b.Pollutant.Dim() != pollutant.Count:
		return fmt.Errorf("%w: pollutant scaler has %d outputs, want %d", ErrInvalidModel, b.Pollutant.Dim(), pollutant.Count)
	case b.Sequence.InputDim() != pollutant.FeatureCount:
		return fmt.Errorf("%w: lstm takes %d features, want %d", ErrInvalidModel, b.Sequence.InputDim(), pollutant.FeatureCount)
	case b.Sequence.OutputDim() != pollutant.Count:
		return fmt.Errorf("%w: lstm yields %d outputs, want %d", ErrInvalidModel, b.Sequence.OutputDim(), pollutant.Count)
	}
	return nil
}

// Regressors exposes the tree models in pollutant order.
func (b *Bundle) Regressors() []estimator.Regressor {
	out := make([]estimator.Regressor, len(b.Trees))
	for i, t := range b.Trees {
		out[i] = t
	}
	return out
}

// Estimator wires the bundle into an estimator.
func (b *Bundle) Estimator(opts ...estimator.Option) (*estimator.Estimator, error) {
	return estimator.New(b.Meteo, b.Pollutant, b.Regressors(), b.Sequence, opts...)
}
