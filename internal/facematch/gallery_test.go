package facematch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/database/mock"
)

type fakeNearest struct {
	records []database.EnrollmentRecord
	err     error
	gotK    int
}

func (f *fakeNearest) NearestCandidates(ctx context.Context, query []float32, k int) ([]database.EnrollmentRecord, error) {
	f.gotK = k
	return f.records, f.err
}

func seededStore(t *testing.T, records []database.EnrollmentRecord) *mock.MockStore {
	t.Helper()
	store := mock.NewMockStore()
	if len(records) > 0 {
		if err := store.InitializeSchema(context.Background(), database.StoreMeta{Dim: len(records[0].Embedding)}); err != nil {
			t.Fatalf("InitializeSchema failed: %v", err)
		}
	}
	for _, rec := range records {
		store.AddRecord(rec.Label, rec.Embedding)
	}
	return store
}

func TestGallery_Mode(t *testing.T) {
	store := mock.NewMockStore()
	tests := []struct {
		name    string
		gallery *Gallery
		want    string
	}{
		{"default", NewGallery(store), "full-scan"},
		{"hnsw", NewGallery(store, WithIndex(NewHNSWIndex())), "hnsw"},
		{"pgvector", NewGallery(store, WithNearestFinder(&fakeNearest{})), "pgvector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gallery.Mode(); got != tt.want {
				t.Errorf("Mode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGallery_FullScan(t *testing.T) {
	store := seededStore(t, randomUnitRecords(4, 3))
	g := NewGallery(store)

	got, err := g.Candidates(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("Candidates returned %d records, want 4", len(got))
	}
	if store.ScanCalls != 1 {
		t.Errorf("ScanCalls = %d, want 1", store.ScanCalls)
	}
}

func TestGallery_ScanError(t *testing.T) {
	store := mock.NewMockStore()
	store.ScanError = database.ErrStorageUnavailable
	g := NewGallery(store)

	if _, err := g.Candidates(context.Background(), []float32{1}, 1); !errors.Is(err, database.ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}

func TestGallery_HNSWMatchesFullScan(t *testing.T) {
	records := randomUnitRecords(12, 8)
	store := seededStore(t, records)
	ctx := context.Background()

	full := NewGallery(store)
	indexed := NewGallery(store, WithIndex(NewHNSWIndex()))
	if err := indexed.BuildIndex(ctx); err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	queries := randomUnitRecords(20, 8)
	for _, q := range queries {
		// shift the query so it does not coincide with an enrolled vector
		query := append([]float32(nil), q.Embedding...)
		query[0] += 0.05

		fullCandidates, err := full.Candidates(ctx, query, 1)
		if err != nil {
			t.Fatalf("full-scan Candidates failed: %v", err)
		}
		hnswCandidates, err := indexed.Candidates(ctx, query, 1)
		if err != nil {
			t.Fatalf("hnsw Candidates failed: %v", err)
		}
		if len(hnswCandidates) > 1*HNSWSearchMultiplier {
			t.Errorf("hnsw returned %d candidates, want at most %d", len(hnswCandidates), HNSWSearchMultiplier)
		}
		for i := 1; i < len(hnswCandidates); i++ {
			if hnswCandidates[i-1].ID > hnswCandidates[i].ID {
				t.Fatal("hnsw candidates are not sorted by id")
			}
		}

		want := Search(query, fullCandidates)
		got := Search(query, hnswCandidates)
		if got.RecordID != want.RecordID {
			t.Errorf("hnsw best = record %d (%.4f), full scan best = record %d (%.4f)",
				got.RecordID, got.Score, want.RecordID, want.Score)
		}
	}
}

func TestGallery_EmptyIndexFallsBackToScan(t *testing.T) {
	store := seededStore(t, randomUnitRecords(3, 4))
	g := NewGallery(store, WithIndex(NewHNSWIndex()))

	got, err := g.Candidates(context.Background(), []float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(got) != 3 || store.ScanCalls != 1 {
		t.Errorf("Expected full-scan fallback, got %d records and %d scans", len(got), store.ScanCalls)
	}
}

func TestGallery_EnrollUpdatesIndex(t *testing.T) {
	store := mock.NewMockStore()
	ctx := context.Background()
	if err := store.InitializeSchema(ctx, database.StoreMeta{Dim: 2}); err != nil {
		t.Fatalf("InitializeSchema failed: %v", err)
	}
	g := NewGallery(store, WithIndex(NewHNSWIndex()))

	id, err := g.Enroll(ctx, "alice", []float32{1, 0})
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if g.Index().Count() != 1 {
		t.Errorf("Index count = %d, want 1", g.Index().Count())
	}

	got, err := g.Candidates(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != id || got[0].Label != "alice" {
		t.Errorf("Candidates = %+v, want alice", got)
	}
	if store.ScanCalls != 0 {
		t.Errorf("ScanCalls = %d, want 0", store.ScanCalls)
	}

	if _, err := g.Enroll(ctx, "bob", []float32{1, 0, 0}); !errors.Is(err, database.ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
	if g.Index().Count() != 1 {
		t.Error("Rejected enrollment should not reach the index")
	}
}

func TestGallery_NearestFinder(t *testing.T) {
	store := seededStore(t, randomUnitRecords(3, 2))
	finder := &fakeNearest{records: []database.EnrollmentRecord{{ID: 9, Label: "near", Embedding: []float32{1, 0}}}}
	g := NewGallery(store, WithNearestFinder(finder))

	got, err := g.Candidates(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 9 {
		t.Errorf("Candidates = %+v, want finder result", got)
	}
	if finder.gotK != 2*HNSWSearchMultiplier {
		t.Errorf("finder k = %d, want %d", finder.gotK, 2*HNSWSearchMultiplier)
	}

	finder.err = database.ErrStorageUnavailable
	if _, err := g.Candidates(context.Background(), []float32{1, 0}, 1); !errors.Is(err, database.ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}

func TestGallery_LoadOrBuildIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.hnsw")
	store := seededStore(t, randomUnitRecords(5, 4))

	g := NewGallery(store, WithIndex(NewHNSWIndex()))
	if err := g.LoadOrBuildIndex(ctx, path); err != nil {
		t.Fatalf("LoadOrBuildIndex failed: %v", err)
	}
	if g.Index().Count() != 5 || store.ScanCalls != 1 {
		t.Fatalf("Expected a rebuild from one scan, got count %d, scans %d", g.Index().Count(), store.ScanCalls)
	}
	if err := g.SaveIndex(path); err != nil {
		t.Fatalf("SaveIndex failed: %v", err)
	}

	reloaded := NewGallery(store, WithIndex(NewHNSWIndex()))
	if err := reloaded.LoadOrBuildIndex(ctx, path); err != nil {
		t.Fatalf("LoadOrBuildIndex failed: %v", err)
	}
	if reloaded.Index().Count() != 5 || store.ScanCalls != 1 {
		t.Errorf("Expected fresh index to load without scanning, got count %d, scans %d",
			reloaded.Index().Count(), store.ScanCalls)
	}

	store.AddRecord("late", []float32{0, 0, 0, 1})
	stale := NewGallery(store, WithIndex(NewHNSWIndex()))
	if err := stale.LoadOrBuildIndex(ctx, path); err != nil {
		t.Fatalf("LoadOrBuildIndex failed: %v", err)
	}
	if stale.Index().Count() != 6 || store.ScanCalls != 2 {
		t.Errorf("Expected stale index to be rebuilt, got count %d, scans %d",
			stale.Index().Count(), store.ScanCalls)
	}
}

func TestGallery_WithoutIndexIsNoop(t *testing.T) {
	g := NewGallery(mock.NewMockStore())
	if err := g.LoadOrBuildIndex(context.Background(), "ignored"); err != nil {
		t.Errorf("LoadOrBuildIndex = %v, want nil", err)
	}
	if err := g.SaveIndex("ignored"); err != nil {
		t.Errorf("SaveIndex = %v, want nil", err)
	}
}
