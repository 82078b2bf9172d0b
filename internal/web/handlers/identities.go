package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/facematch"
)

// IdentitiesHandler serves the administrative read endpoints.
type IdentitiesHandler struct {
	reader database.EnrollmentReader
	audit  database.VerificationLog
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(reader database.EnrollmentReader, audit database.VerificationLog) *IdentitiesHandler {
	return &IdentitiesHandler{reader: reader, audit: audit}
}

// IdentitiesResponse lists labels with their sample counts.
type IdentitiesResponse struct {
	Identities []database.LabelCount `json:"identities"`
	Count      int                   `json:"count"`
}

// List returns every enrolled label with its sample count.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	labels, err := h.reader.Labels(r.Context())
	if err != nil {
		log.Printf("list identities failed: %v", err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to list identities: %v", err))
		return
	}
	if labels == nil {
		labels = []database.LabelCount{}
	}
	respondJSON(w, http.StatusOK, IdentitiesResponse{Identities: labels, Count: len(labels)})
}

// Get returns the labels whose normalized form equals the path label,
// so /identities/jan-novak finds "Jan Novák".
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if facematch.NormalizeLabel(label) == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}

	labels, err := h.reader.Labels(r.Context())
	if err != nil {
		log.Printf("get identity %s failed: %v", sanitizeForLog(label), err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to list identities: %v", err))
		return
	}

	matches := facematch.MatchLabels(labels, label)
	if len(matches) == 0 {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, IdentitiesResponse{Identities: matches, Count: len(matches)})
}

// VerificationsResponse lists recent verification decisions.
type VerificationsResponse struct {
	Verifications []database.Verification `json:"verifications"`
	Count         int                     `json:"count"`
}

// Verifications returns recent verification audit rows, newest first.
func (h *IdentitiesHandler) Verifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := h.audit.RecentVerifications(r.Context(), database.ClampVerificationLimit(limit))
	if err != nil {
		log.Printf("list verifications failed: %v", err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to list verifications: %v", err))
		return
	}
	if rows == nil {
		rows = []database.Verification{}
	}
	respondJSON(w, http.StatusOK, VerificationsResponse{Verifications: rows, Count: len(rows)})
}
