package database

import "errors"

// Sentinel errors returned (wrapped) by every store backend.
// Test with errors.Is.
var (
	// ErrStorageUnavailable means the store could not be opened or reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSchema means the schema could not be created or does not match.
	ErrSchema = errors.New("schema error")

	// ErrWrite means an insert could not be made durable.
	ErrWrite = errors.New("write failed")

	// ErrEmptyVector is returned when inserting a vector with no components.
	ErrEmptyVector = errors.New("empty feature vector")

	// ErrDimensionMismatch is returned when a vector length differs from the store dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
