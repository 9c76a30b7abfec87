package domain

import "errors"

var (
	// ErrEmptyInput indicates a record set or required sub-sequence has no usable samples.
	ErrEmptyInput = errors.New("empty input")

	// ErrDegenerateMetric indicates a mathematically undefined result, e.g. zero variance.
	ErrDegenerateMetric = errors.New("degenerate metric")

	// ErrSchemaMismatch indicates a requested column is absent or malformed.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidParameter indicates a bad window size, top-k count or similar argument.
	ErrInvalidParameter = errors.New("invalid parameter")
)
