package geo

import "errors"

var (
	ErrRateLimited   = errors.New("location provider rate limited")
	ErrServer        = errors.New("location provider server error")
	ErrUnexpected    = errors.New("unexpected status code")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrInvalidConfig = errors.New("invalid backoff configuration")
	ErrBadPayload    = errors.New("malformed location payload")
)
