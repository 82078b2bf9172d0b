package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
)

// FacesHandler handles encoding, enrollment and matching endpoints.
type FacesHandler struct {
	encoder    fingerprint.Encoder
	gallery    *facematch.Gallery
	identifier *facematch.Identifier
	audit      database.VerificationLog
	stats      *StatsHandler
}

// NewFacesHandler creates a new faces handler. stats may be nil.
func NewFacesHandler(
	enc fingerprint.Encoder,
	gallery *facematch.Gallery,
	identifier *facematch.Identifier,
	audit database.VerificationLog,
	stats *StatsHandler,
) *FacesHandler {
	return &FacesHandler{
		encoder:    enc,
		gallery:    gallery,
		identifier: identifier,
		audit:      audit,
		stats:      stats,
	}
}

// encode decodes and encodes one image. nil means no features.
func (h *FacesHandler) encode(ctx context.Context, data []byte) []float32 {
	img := fingerprint.Decode(data)
	if img == nil {
		return nil
	}
	return h.encoder.Encode(ctx, img)
}

// readSingleImage reads one image from the raw body or the multipart "file" field.
// It writes the error response itself and returns nil when there is nothing to encode.
func readSingleImage(w http.ResponseWriter, r *http.Request) []byte {
	payloads, err := readUpload(r, "file")
	if err != nil {
		respondUploadError(w, err)
		return nil
	}
	if len(payloads) == 0 {
		respondError(w, http.StatusBadRequest, errNoImage)
		return nil
	}
	return payloads[0]
}

// EncodeResponse is the body of a successful encode request.
type EncodeResponse struct {
	Embedding []float32 `json:"embedding"`
	Dim       int       `json:"dim"`
	Encoder   string    `json:"encoder"`
}

// Encode returns the feature vector of an uploaded image.
func (h *FacesHandler) Encode(w http.ResponseWriter, r *http.Request) {
	data := readSingleImage(w, r)
	if data == nil {
		return
	}

	vec := h.encode(r.Context(), data)
	if vec == nil {
		respondError(w, http.StatusUnprocessableEntity, "no features could be extracted from the image")
		return
	}

	respondJSON(w, http.StatusOK, EncodeResponse{
		Embedding: vec,
		Dim:       len(vec),
		Encoder:   h.encoder.Name(),
	})
}

// CompareRequest carries two vectors to score. embedA/embedB are accepted
// for older clients.
type CompareRequest struct {
	EmbedA       []float32 `json:"embed_a"`
	EmbedB       []float32 `json:"embed_b"`
	LegacyEmbedA []float32 `json:"embedA"`
	LegacyEmbedB []float32 `json:"embedB"`
}

// CompareResponse is the body of a compare request.
type CompareResponse struct {
	Score     float64 `json:"score"`
	Match     bool    `json:"match"`
	Threshold float64 `json:"threshold"`
}

// Compare scores two client-supplied vectors against the threshold.
func (h *FacesHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	a, b := req.EmbedA, req.EmbedB
	if len(a) == 0 {
		a = req.LegacyEmbedA
	}
	if len(b) == 0 {
		b = req.LegacyEmbedB
	}
	if len(a) == 0 || len(b) == 0 {
		respondError(w, http.StatusBadRequest, "embed_a and embed_b are required")
		return
	}

	threshold := h.identifier.Threshold()
	score := facematch.Similarity(a, b)
	respondJSON(w, http.StatusOK, CompareResponse{
		Score:     score,
		Match:     score >= threshold,
		Threshold: threshold,
	})
}

// EnrollResponse is the body of a successful enrollment.
type EnrollResponse struct {
	OK              bool    `json:"ok"`
	Label           string  `json:"label"`
	IDs             []int64 `json:"ids"`
	EmbeddingSize   int     `json:"embedding_size"`
	EmbeddingsAdded int     `json:"embeddings_added"`
}

// EnrollErrorResponse is the body of a failed enrollment. Samples are
// stored one by one, so IDs lists the records written before the failure.
type EnrollErrorResponse struct {
	Error string  `json:"error"`
	Label string  `json:"label"`
	IDs   []int64 `json:"ids"`
}

// enrollLabel reads the label from the query string, or from the form for
// multipart requests. personId is an alias.
func enrollLabel(r *http.Request) string {
	q := r.URL.Query()
	for _, key := range []string{"label", "personId"} {
		if v := q.Get(key); v != "" {
			return v
		}
		if r.MultipartForm != nil {
			if vals := r.MultipartForm.Value[key]; len(vals) > 0 && vals[0] != "" {
				return vals[0]
			}
		}
	}
	return ""
}

// Enroll stores one sample (raw body) or several (multipart "files") under a label.
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	multi := isMultipart(r)
	payloads, err := readUpload(r, "files", "file")
	if err != nil {
		respondUploadError(w, err)
		return
	}

	label := enrollLabel(r)
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	if len(payloads) == 0 {
		respondError(w, http.StatusBadRequest, "no valid image provided")
		return
	}

	var vectors [][]float32
	for i, data := range payloads {
		vec := h.encode(r.Context(), data)
		if vec == nil {
			log.Printf("enroll %s: no features in sample %d, skipping", sanitizeForLog(label), i)
			continue
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		if multi {
			respondError(w, http.StatusBadRequest, "no valid images provided")
		} else {
			respondError(w, http.StatusUnprocessableEntity, "no features could be extracted from the image")
		}
		return
	}

	ids := make([]int64, 0, len(vectors))
	for _, vec := range vectors {
		id, err := h.gallery.Enroll(r.Context(), label, vec)
		if err != nil {
			log.Printf("enroll %s failed after storing ids %v: %v", sanitizeForLog(label), ids, err)
			if len(ids) > 0 && h.stats != nil {
				h.stats.InvalidateCache()
			}
			respondJSON(w, storeErrorStatus(err), EnrollErrorResponse{
				Error: fmt.Sprintf("failed to enroll: %v", err),
				Label: label,
				IDs:   ids,
			})
			return
		}
		ids = append(ids, id)
	}
	if h.stats != nil {
		h.stats.InvalidateCache()
	}

	respondJSON(w, http.StatusOK, EnrollResponse{
		OK:              true,
		Label:           label,
		IDs:             ids,
		EmbeddingSize:   len(vectors[0]),
		EmbeddingsAdded: len(ids),
	})
}

// VerifyResponse is the body of a verify request. PersonID mirrors Label
// for older clients.
type VerifyResponse struct {
	Match          bool    `json:"match"`
	Score          float64 `json:"score"`
	Label          string  `json:"label"`
	PersonID       string  `json:"personId"`
	Threshold      float64 `json:"threshold"`
	VerificationID string  `json:"verification_id,omitempty"`
}

// Verify identifies the uploaded face and records the decision. An image
// without features is answered with a no-match decision, not an error.
func (h *FacesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	data := readSingleImage(w, r)
	if data == nil {
		return
	}

	decision, err := h.identifier.Identify(r.Context(), h.encode(r.Context(), data))
	if err != nil {
		log.Printf("verify failed: %v", err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to verify: %v", err))
		return
	}

	resp := VerifyResponse{
		Match:     decision.Matched,
		Score:     decision.Score,
		Label:     decision.Label,
		PersonID:  decision.Label,
		Threshold: decision.Threshold,
	}

	if h.audit != nil {
		id, err := h.audit.RecordVerification(r.Context(), database.Verification{
			Label:     decision.Label,
			Score:     decision.Score,
			Threshold: decision.Threshold,
			Matched:   decision.Matched,
		})
		if err != nil {
			log.Printf("Warning: failed to record verification: %v", err)
		} else {
			resp.VerificationID = id
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// parseK reads the k query parameter. Missing means the identifier default.
func parseK(r *http.Request) (int, error) {
	s := r.URL.Query().Get("k")
	if s == "" {
		return 0, nil
	}
	k, err := strconv.Atoi(s)
	if err != nil || k < 1 {
		return 0, fmt.Errorf("k must be a positive integer, got %q", s)
	}
	return min(k, constants.MaxCandidates), nil
}

// CandidatesResponse is the body of a ranking request.
type CandidatesResponse struct {
	Candidates []facematch.RankedCandidate `json:"candidates"`
}

// Candidates returns the top-k enrolled records for the uploaded face,
// without applying the threshold.
func (h *FacesHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	k, err := parseK(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data := readSingleImage(w, r)
	if data == nil {
		return
	}

	ranked, err := h.identifier.Rank(r.Context(), h.encode(r.Context(), data), k)
	if err != nil {
		log.Printf("candidates failed: %v", err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to rank candidates: %v", err))
		return
	}
	if ranked == nil {
		ranked = []facematch.RankedCandidate{}
	}

	respondJSON(w, http.StatusOK, CandidatesResponse{Candidates: ranked})
}
