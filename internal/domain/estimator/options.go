package estimator

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithBlendWeight sets the weight of the tree ensemble in the blend. The
// sequence model receives 1-w. Values outside [0, 1] are ignored.
func WithBlendWeight(w float64) Option {
	return func(e *Estimator) {
		if w >= 0 && w <= 1 {
			e.blendWeight = w
		}
	}
}

// WithNegativePolicy selects how negative inverse-scaled values are folded.
func WithNegativePolicy(p NegativePolicy) Option {
	return func(e *Estimator) {
		if p.valid() {
			e.policy = p
		}
	}
}

// WithWindow overrides the sequence window length. By default the window
// length reported by the sequence predictor is used.
func WithWindow(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.window = n
		}
	}
}
