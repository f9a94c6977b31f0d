// Package aqi computes Air Quality Index values from pollutant
// concentrations by piecewise-linear interpolation over a breakpoint table.
package aqi

import (
	"github.com/okian/aqicast/internal/domain/pollutant"
)

// Result holds per-pollutant sub-indices and the overall index.
// Overall is nil when no pollutant was supplied.
type Result struct {
	Overall    *float64
	SubIndices map[pollutant.Pollutant]float64
}

// OverallValue returns the overall index and whether it is defined.
func (r Result) OverallValue() (float64, bool) {
	if r.Overall == nil {
		return 0, false
	}
	return *r.Overall, true
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithTable replaces the embedded breakpoint table.
func WithTable(t Table) Option {
	return func(c *Calculator) {
		if t != nil {
			c.table = t.clone()
		}
	}
}

// Calculator evaluates concentrations against a breakpoint table.
// A Calculator is read-only after construction and safe for concurrent use.
type Calculator struct {
	table Table
}

// NewCalculator builds a Calculator using the embedded table unless a
// custom one is supplied. The table is validated once here.
func NewCalculator(opts ...Option) (*Calculator, error) {
	c := &Calculator{table: standard}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.table.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Compute returns the sub-index of every pollutant in conc and their maximum.
// A pollutant absent from the table yields a *ConfigurationError.
func (c *Calculator) Compute(conc pollutant.Concentrations) (Result, error) {
	res := Result{SubIndices: make(map[pollutant.Pollutant]float64, len(conc))}
	for p, val := range conc {
		bp, ok := c.table[p]
		if !ok {
			return Result{}, &ConfigurationError{Pollutant: p}
		}
		sub := interpolate(bp, val)
		res.SubIndices[p] = sub
		if res.Overall == nil || sub > *res.Overall {
			v := sub
			res.Overall = &v
		}
	}
	return res, nil
}

// SubIndex computes the index of a single pollutant.
func (c *Calculator) SubIndex(p pollutant.Pollutant, val float64) (float64, error) {
	bp, ok := c.table[p]
	if !ok {
		return 0, &ConfigurationError{Pollutant: p}
	}
	return interpolate(bp, val), nil
}

// Compute evaluates conc against the embedded table.
func Compute(conc pollutant.Concentrations) (Result, error) {
	return defaultCalculator.Compute(conc)
}

var defaultCalculator = &Calculator{table: standard}

// interpolate finds the first segment whose upper bound covers val.
// Above the last breakpoint the index saturates at the ceiling.
func interpolate(bp Breakpoints, val float64) float64 {
	c, a := bp.Concentration, bp.Index
	for i := 1; i < len(c); i++ {
		if val <= c[i] {
			// fraction first so that val == c[i] lands exactly on a[i]
			frac := (val - c[i-1]) / (c[i] - c[i-1])
			return a[i-1] + frac*(a[i]-a[i-1])
		}
	}
	return bp.ceiling()
}

func (bp Breakpoints) ceiling() float64 {
	if bp.Ceiling != 0 {
		return bp.Ceiling
	}
	return bp.Index[len(bp.Index)-1]
}
