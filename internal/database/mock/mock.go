// Package mock provides an in-memory implementation of database.Store for testing.
package mock

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-engine/internal/database"
)

// MockStore is an in-memory database.Store. It enforces the same vector
// checks as the real backends and copies vectors on the way in and out.
type MockStore struct {
	mu            sync.RWMutex
	records       []database.EnrollmentRecord
	verifications []database.Verification
	meta          database.StoreMeta
	nextID        int64
	closed        bool

	// Track calls
	InsertCalls []InsertCall
	ScanCalls   int

	// Error injection. InsertError is returned once InsertErrorAfter
	// inserts have succeeded.
	InitError        error
	InsertError      error
	InsertErrorAfter int
	ScanError        error
	CountError       error
	LabelsError      error
	InfoError        error
	VerifyError      error
	ListError        error
}

// InsertCall tracks an Insert call
type InsertCall struct {
	Label     string
	Embedding []float32
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{nextID: 1}
}

// AddRecord adds a record directly, bypassing validation. The id is assigned
// by the mock.
func (m *MockStore) AddRecord(label string, embedding []float32) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(label, embedding)
}

func (m *MockStore) appendLocked(label string, embedding []float32) int64 {
	id := m.nextID
	m.nextID++
	m.records = append(m.records, database.EnrollmentRecord{
		ID:        id,
		Label:     label,
		Embedding: database.CopyVector(embedding),
		CreatedAt: time.Now(),
	})
	return id
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// InitializeSchema records or verifies meta
func (m *MockStore) InitializeSchema(ctx context.Context, meta database.StoreMeta) error {
	if m.InitError != nil {
		return m.InitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta.Dim == 0 {
		m.meta = meta
		return nil
	}
	return database.CheckMeta(m.meta, meta)
}

// Insert appends a record
func (m *MockStore) Insert(ctx context.Context, label string, embedding []float32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertCalls = append(m.InsertCalls, InsertCall{Label: label, Embedding: database.CopyVector(embedding)})
	if m.InsertError != nil && len(m.InsertCalls) > m.InsertErrorAfter {
		return 0, m.InsertError
	}
	if err := database.CheckVector(embedding, m.meta.Dim); err != nil {
		return 0, err
	}
	return m.appendLocked(label, embedding), nil
}

// ScanAll yields copies of all records in insertion order
func (m *MockStore) ScanAll(ctx context.Context) iter.Seq2[database.EnrollmentRecord, error] {
	return func(yield func(database.EnrollmentRecord, error) bool) {
		m.mu.Lock()
		m.ScanCalls++
		scanErr := m.ScanError
		snapshot := slices.Clone(m.records)
		m.mu.Unlock()

		if scanErr != nil {
			yield(database.EnrollmentRecord{}, scanErr)
			return
		}
		for _, rec := range snapshot {
			rec.Embedding = database.CopyVector(rec.Embedding)
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Count returns the number of records
func (m *MockStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Labels returns distinct labels with sample counts
func (m *MockStore) Labels(ctx context.Context) ([]database.LabelCount, error) {
	if m.LabelsError != nil {
		return nil, m.LabelsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.labelsLocked(), nil
}

func (m *MockStore) labelsLocked() []database.LabelCount {
	counts := make(map[string]int)
	for _, rec := range m.records {
		counts[rec.Label]++
	}
	labels := make([]database.LabelCount, 0, len(counts))
	for label, n := range counts {
		labels = append(labels, database.LabelCount{Label: label, Samples: n})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })
	return labels
}

// Info summarizes the mock store
func (m *MockStore) Info(ctx context.Context) (database.StoreInfo, error) {
	if m.InfoError != nil {
		return database.StoreInfo{}, m.InfoError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := database.StoreInfo{
		Backend: "mock",
		Count:   len(m.records),
		Labels:  len(m.labelsLocked()),
		Meta:    m.meta,
	}
	if n := len(m.records); n > 0 {
		info.MaxID = m.records[n-1].ID
	}
	return info, nil
}

// RecordVerification stores a verification
func (m *MockStore) RecordVerification(ctx context.Context, v database.Verification) (string, error) {
	if m.VerifyError != nil {
		return "", m.VerifyError
	}
	if v.ID == "" {
		v.ID = database.NewVerificationID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, v)
	return v.ID, nil
}

// RecentVerifications returns stored verifications, newest first
func (m *MockStore) RecentVerifications(ctx context.Context, limit int) ([]database.Verification, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = database.ClampVerificationLimit(limit)
	out := make([]database.Verification, 0, min(limit, len(m.verifications)))
	for i := len(m.verifications) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.verifications[i])
	}
	return out, nil
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ database.Store = (*MockStore)(nil)
