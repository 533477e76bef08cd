// Package apperrors holds the sentinel errors returned across the simulator.
// Call sites wrap them with detail via fmt.Errorf("%w: ...") so callers can
// match with errors.Is.
package apperrors

import "errors"

// Validation errors raised by the simulation core
var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrEmptyDistribution    = errors.New("empty distribution")
	ErrInvalidPercentile    = errors.New("invalid percentile")
)

// Errors raised by the surrounding pipeline, store and transports
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrRunNotFound    = errors.New("run not found")
	ErrMalformedData  = errors.New("malformed data")
)
