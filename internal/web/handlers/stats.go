package handlers

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
)

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(constants.StatsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	reader    database.EnrollmentReader
	gallery   *facematch.Gallery
	encoder   fingerprint.Encoder
	threshold float64
	cache     statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(reader database.EnrollmentReader, gallery *facematch.Gallery, enc fingerprint.Encoder, threshold float64) *StatsHandler {
	return &StatsHandler{
		reader:    reader,
		gallery:   gallery,
		encoder:   enc,
		threshold: threshold,
	}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// IndexStats describes the candidate index.
type IndexStats struct {
	Mode    string `json:"mode"`
	Records int    `json:"records"`
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	Backend    string     `json:"backend"`
	Records    int        `json:"records"`
	Identities int        `json:"identities"`
	MaxID      int64      `json:"max_id"`
	StoreDim   int        `json:"store_dim"`
	Dim        int        `json:"dim"`
	Encoder    string     `json:"encoder"`
	Threshold  float64    `json:"threshold"`
	Index      IndexStats `json:"index"`
}

// Get returns store, encoder and index statistics
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	info, err := h.reader.Info(r.Context())
	if err != nil {
		log.Printf("stats failed: %v", err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to read store info: %v", err))
		return
	}

	stats := &StatsResponse{
		Backend:    info.Backend,
		Records:    info.Count,
		Identities: info.Labels,
		MaxID:      info.MaxID,
		StoreDim:   info.Meta.Dim,
		Dim:        h.encoder.Dim(),
		Encoder:    h.encoder.Name(),
		Threshold:  h.threshold,
		Index:      IndexStats{Mode: h.gallery.Mode()},
	}
	if idx := h.gallery.Index(); idx != nil {
		stats.Index.Records = idx.Count()
	}

	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
