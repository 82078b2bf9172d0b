package facematch

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/kozaktomas/face-engine/internal/database"
)

// CandidateSource supplies the records a query is scored against. k is the
// number of results the caller needs; full-scan sources ignore it.
type CandidateSource interface {
	Candidates(ctx context.Context, query []float32, k int) ([]database.EnrollmentRecord, error)
}

// NearestFinder is implemented by stores that can narrow candidates
// themselves (pgvector).
type NearestFinder interface {
	NearestCandidates(ctx context.Context, query []float32, k int) ([]database.EnrollmentRecord, error)
}

// Gallery supplies candidates from a store. By default every query scores a
// full-scan snapshot. With an index (in-memory HNSW or a NearestFinder) the
// candidates are narrowed to the k*HNSWSearchMultiplier nearest records,
// sorted by id so tie-breaking stays deterministic.
type Gallery struct {
	store   database.Store
	index   *HNSWIndex
	nearest NearestFinder
}

// GalleryOption configures a Gallery.
type GalleryOption func(*Gallery)

// WithIndex narrows candidates with an in-memory HNSW index.
func WithIndex(idx *HNSWIndex) GalleryOption {
	return func(g *Gallery) { g.index = idx }
}

// WithNearestFinder narrows candidates with a store-side nearest-neighbor query.
func WithNearestFinder(f NearestFinder) GalleryOption {
	return func(g *Gallery) { g.nearest = f }
}

// NewGallery creates a gallery over store.
func NewGallery(store database.Store, opts ...GalleryOption) *Gallery {
	g := &Gallery{store: store}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Index returns the in-memory index, or nil.
func (g *Gallery) Index() *HNSWIndex {
	return g.index
}

// Mode names the candidate strategy in use.
func (g *Gallery) Mode() string {
	switch {
	case g.nearest != nil:
		return "pgvector"
	case g.index != nil:
		return "hnsw"
	default:
		return "full-scan"
	}
}

// Candidates implements CandidateSource.
func (g *Gallery) Candidates(ctx context.Context, query []float32, k int) ([]database.EnrollmentRecord, error) {
	limit := max(k, 1) * HNSWSearchMultiplier

	if g.nearest != nil {
		recs, err := g.nearest.NearestCandidates(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			return recs, nil
		}
	}

	if g.index != nil && !g.index.IsEmpty() {
		if recs := g.index.Search(query, limit); len(recs) > 0 {
			sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
			return recs, nil
		}
	}

	return database.Snapshot(ctx, g.store)
}

// Enroll inserts a record and keeps the in-memory index current.
func (g *Gallery) Enroll(ctx context.Context, label string, embedding []float32) (int64, error) {
	id, err := g.store.Insert(ctx, label, embedding)
	if err != nil {
		return 0, err
	}
	if g.index != nil {
		g.index.Add(database.EnrollmentRecord{ID: id, Label: label, Embedding: embedding})
	}
	return id, nil
}

// BuildIndex rebuilds the in-memory index from a full scan.
func (g *Gallery) BuildIndex(ctx context.Context) error {
	if g.index == nil {
		return nil
	}
	records, err := database.Snapshot(ctx, g.store)
	if err != nil {
		return fmt.Errorf("scan store for index: %w", err)
	}
	g.index.Build(records)
	return nil
}

// LoadOrBuildIndex loads the saved index at path when it is fresh and
// rebuilds it from the store otherwise. An empty path always rebuilds.
func (g *Gallery) LoadOrBuildIndex(ctx context.Context, path string) error {
	if g.index == nil {
		return nil
	}
	if path != "" {
		info, err := g.store.Info(ctx)
		if err != nil {
			return fmt.Errorf("read store info: %w", err)
		}
		err = g.index.LoadIfFresh(path, info)
		if err == nil {
			log.Printf("Loaded HNSW index from %s (%d records)", path, g.index.Count())
			return nil
		}
		log.Printf("HNSW index at %s not used: %v", path, err)
	}

	if err := g.BuildIndex(ctx); err != nil {
		return err
	}
	log.Printf("Built HNSW index (%d records)", g.index.Count())
	return nil
}

// SaveIndex persists the in-memory index to path.
func (g *Gallery) SaveIndex(path string) error {
	if g.index == nil || path == "" {
		return nil
	}
	return g.index.Save(path)
}
