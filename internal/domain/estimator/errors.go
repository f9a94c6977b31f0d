package estimator

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for this package. These allow errors.Is from callers
// without depending on the concrete error types.
var (
	ErrValidation    = errors.New("invalid meteorological reading")
	ErrComputation   = errors.New("concentration estimate failed")
	ErrMisconfigured = errors.New("estimator misconfigured")
)

// Stage names the pipeline step a collaborator failed in.
type Stage string

// Pipeline stages.
const (
	StageNormalize Stage = "normalize"
	StageTrees     Stage = "tree_ensemble"
	StageSequence  Stage = "sequence_model"
	StageInverse   Stage = "inverse_transform"
)

// ValidationError lists every required feature that was missing or not a
// finite number. It is the caller's to fix.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "Missing features: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "Non-numeric features: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ComputationError wraps a collaborator failure. Its message is meant for
// logs only; callers should report an opaque internal failure.
type ComputationError struct {
	Stage Stage
	Cause error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrComputation, e.Stage, e.Cause)
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *ComputationError) Unwrap() []error { return []error{ErrComputation, e.Cause} }

func computeErr(stage Stage, cause error) error {
	return &ComputationError{Stage: stage, Cause: cause}
}
