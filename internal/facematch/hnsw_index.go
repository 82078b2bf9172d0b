package facematch

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/klauspost/compress/zstd"
	"github.com/kozaktomas/face-engine/internal/database"
)

// HNSW index parameters.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier widens the neighbor request so the exact rescoring
	// in Search still sees the true best match.
	HNSWSearchMultiplier = 3
)

const hnswMetadataVersion = 1

// HNSWIndexMetadata is stored next to a saved index to detect staleness.
type HNSWIndexMetadata struct {
	RecordCount int       `json:"record_count"`
	MaxRecordID int64     `json:"max_record_id"`
	Dim         int       `json:"dim"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

// IsStale reports whether the saved index no longer reflects the store.
func (m HNSWIndexMetadata) IsStale(info database.StoreInfo) bool {
	return m.Version != hnswMetadataVersion ||
		m.RecordCount != info.Count ||
		m.MaxRecordID != info.MaxID ||
		(info.Meta.Dim > 0 && m.Dim != info.Meta.Dim)
}

// HNSWIndex is an in-memory approximate nearest-neighbor index over
// enrollment records, keyed by record id, using cosine distance.
type HNSWIndex struct {
	graph  *hnsw.Graph[int64]
	labels map[int64]string
	dim    int
	maxID  int64
	mu     sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{labels: make(map[int64]string)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with records. Records whose length
// differs from the first non-empty record are skipped.
func (h *HNSWIndex) Build(records []database.EnrollmentRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.labels = make(map[int64]string, len(records))
	h.dim = 0
	h.maxID = 0

	for _, rec := range records {
		h.addLocked(rec)
	}
}

// Add inserts a single record.
func (h *HNSWIndex) Add(rec database.EnrollmentRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(rec)
}

func (h *HNSWIndex) addLocked(rec database.EnrollmentRecord) {
	if len(rec.Embedding) == 0 {
		return
	}
	if h.dim == 0 {
		h.dim = len(rec.Embedding)
	}
	if len(rec.Embedding) != h.dim {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}

	h.graph.Add(hnsw.MakeNode(rec.ID, database.CopyVector(rec.Embedding)))
	h.labels[rec.ID] = rec.Label
	h.maxID = max(h.maxID, rec.ID)
}

// Search returns up to k records nearest to query. Returned vectors are copies.
func (h *HNSWIndex) Search(query []float32, k int) []database.EnrollmentRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 || len(query) != h.dim || k <= 0 {
		return nil
	}

	neighbors := h.graph.Search(query, k)
	out := make([]database.EnrollmentRecord, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, database.EnrollmentRecord{
			ID:        n.Key,
			Label:     h.labels[n.Key],
			Embedding: database.CopyVector(n.Value),
		})
	}
	return out
}

// Count returns the number of indexed records.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.labels)
}

// Dim returns the indexed vector length, 0 when empty.
func (h *HNSWIndex) Dim() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// IsEmpty returns true if the index holds no records.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil || h.graph.Len() == 0
}

// Metadata describes the current index contents.
func (h *HNSWIndex) Metadata() HNSWIndexMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.metadataLocked()
}

func (h *HNSWIndex) metadataLocked() HNSWIndexMetadata {
	return HNSWIndexMetadata{
		RecordCount: len(h.labels),
		MaxRecordID: h.maxID,
		Dim:         h.dim,
		BuildTime:   time.Now(),
		Version:     hnswMetadataVersion,
	}
}

// Save persists the graph (zstd-compressed), the id->label map and metadata.
// An empty index removes any files at path.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".labels")
		return nil
	}

	if err := writeZstd(path, h.graph.Export); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	if err := writeZstd(path+".labels", func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(h.labels)
	}); err != nil {
		return fmt.Errorf("failed to save index labels: %w", err)
	}

	metaData, err := json.Marshal(h.metadataLocked())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load replaces the index contents with a graph saved by Save.
func (h *HNSWIndex) Load(path string) error {
	g := newGraph()
	if err := readZstd(path, g.Import); err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	labels := make(map[int64]string)
	if err := readZstd(path+".labels", func(r io.Reader) error {
		return gob.NewDecoder(r).Decode(&labels)
	}); err != nil {
		return fmt.Errorf("failed to load index labels: %w", err)
	}

	if g.Len() != len(labels) {
		return fmt.Errorf("index has %d nodes but %d labels", g.Len(), len(labels))
	}

	var maxID int64
	for id := range labels {
		maxID = max(maxID, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.labels = labels
	h.dim = g.Dims()
	h.maxID = maxID
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// ErrIndexNotFound is returned by LoadIfFresh when no saved index exists.
var ErrIndexNotFound = errors.New("saved index not found")

// ErrIndexStale is returned by LoadIfFresh when the saved index does not
// match the store.
var ErrIndexStale = errors.New("saved index is stale")

// LoadIfFresh loads the index at path when its metadata matches info.
func (h *HNSWIndex) LoadIfFresh(path string, info database.StoreInfo) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrIndexNotFound
	}
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if meta.IsStale(info) {
		return fmt.Errorf("%w: index has %d records (max id %d), store has %d (max id %d)",
			ErrIndexStale, meta.RecordCount, meta.MaxRecordID, info.Count, info.MaxID)
	}
	return h.Load(path)
}

func writeZstd(path string, write func(io.Writer) error) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err := write(zw); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func readZstd(path string, read func(io.Reader) error) error {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	return read(zr)
}
