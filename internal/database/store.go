package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Snapshot collects one ScanAll pass into a slice.
func Snapshot(ctx context.Context, r EnrollmentReader) ([]EnrollmentRecord, error) {
	var records []EnrollmentRecord
	for rec, err := range r.ScanAll(ctx) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CheckVector validates a vector for insertion into a store of dimension dim.
// A dim of 0 means the store has no recorded dimension yet.
func CheckVector(embedding []float32, dim int) error {
	if len(embedding) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(embedding) != dim {
		return fmt.Errorf("%w: store holds %d-dimensional vectors, got %d", ErrDimensionMismatch, dim, len(embedding))
	}
	return nil
}

// CheckMeta compares the recorded store meta with the one requested at
// initialization. Only the dimension is binding.
func CheckMeta(stored, requested StoreMeta) error {
	if requested.Dim > 0 && stored.Dim != requested.Dim {
		return fmt.Errorf("%w: %w: store holds %d-dimensional vectors, encoder produces %d",
			ErrSchema, ErrDimensionMismatch, stored.Dim, requested.Dim)
	}
	return nil
}

// CopyVector returns a freshly allocated copy of v.
func CopyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// NewVerificationID returns a new random verification id.
func NewVerificationID() string {
	return uuid.NewString()
}
