package model

import "errors"

// Sentinel error kinds for model loading and inference.
var (
	ErrLoadModel    = errors.New("load model failed")
	ErrInvalidModel = errors.New("invalid model")
	ErrShape        = errors.New("input shape mismatch")
)
