package estimator

import (
	"fmt"
	"math"
	"strings"
)

// NegativePolicy decides what happens to negative inverse-scaled values.
type NegativePolicy string

// Supported policies.
const (
	// Absolute folds a negative value to its magnitude.
	Absolute NegativePolicy = "absolute"
	// Clamp replaces a negative value with zero.
	Clamp NegativePolicy = "clamp"
)

// ParseNegativePolicy accepts "absolute" or "clamp" (case-insensitive).
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	p := NegativePolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.valid() {
		return "", fmt.Errorf("%w: unknown negative policy %q", ErrMisconfigured, s)
	}
	return p, nil
}

func (p NegativePolicy) valid() bool {
	return p == Absolute || p == Clamp
}

func (p NegativePolicy) apply(v float64) float64 {
	if p == Clamp {
		return math.Max(0, v)
	}
	return math.Abs(v)
}
