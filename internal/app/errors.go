package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoEstimator   = errors.New("models are not loaded")
	ErrNoLocator     = errors.New("location lookup is disabled")
	ErrEmptyBatch    = errors.New("batch is empty")
	ErrBatchTooLarge = errors.New("batch exceeds size limit")
	ErrNotProcessed  = errors.New("reading was not processed")
)
