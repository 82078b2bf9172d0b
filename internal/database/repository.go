package database

import (
	"context"
	"iter"
)

// EnrollmentReader provides read-only access to enrolled feature vectors
type EnrollmentReader interface {
	// ScanAll yields every record from one read-only snapshot. Order is
	// unspecified. Each range runs a fresh query; breaking out early releases
	// the cursor. A read failure is yielded once as the error and ends the scan.
	ScanAll(ctx context.Context) iter.Seq2[EnrollmentRecord, error]
	// Count returns the total number of records
	Count(ctx context.Context) (int, error)
	// Labels returns the distinct labels with their sample counts, sorted by label
	Labels(ctx context.Context) ([]LabelCount, error)
	// Info summarizes the store
	Info(ctx context.Context) (StoreInfo, error)
}

// EnrollmentWriter appends feature vectors
type EnrollmentWriter interface {
	// Insert durably appends one record and returns its id. The vector is
	// copied. Empty vectors fail with ErrEmptyVector, vectors of the wrong
	// length with ErrDimensionMismatch, anything else with ErrWrite.
	Insert(ctx context.Context, label string, embedding []float32) (int64, error)
}

// VerificationLog records verification decisions for auditing
type VerificationLog interface {
	// RecordVerification stores v; an empty ID is replaced with a new UUID.
	// Returns the stored ID.
	RecordVerification(ctx context.Context, v Verification) (string, error)
	// RecentVerifications returns the newest decisions first
	RecentVerifications(ctx context.Context, limit int) ([]Verification, error)
}

// Store is a durable, append-only multiset of enrollment records.
type Store interface {
	EnrollmentReader
	EnrollmentWriter
	VerificationLog

	// InitializeSchema creates missing tables and records or verifies meta.
	// It is idempotent. A failure wraps ErrSchema; a conflicting dimension
	// additionally wraps ErrDimensionMismatch.
	InitializeSchema(ctx context.Context, meta StoreMeta) error
	// Close releases the underlying connection(s)
	Close() error
}
