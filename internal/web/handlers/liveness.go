package handlers

import (
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
)

// livenessChallenges are the actions a client may be asked to perform
// between its two frames.
var livenessChallenges = []string{"turn_left", "turn_right", "blink", "open_mouth"}

// LivenessHandler handles the two-frame liveness verification flow.
type LivenessHandler struct {
	encoder    fingerprint.Encoder
	identifier *facematch.Identifier
	audit      database.VerificationLog
}

// NewLivenessHandler creates a new liveness handler. audit may be nil.
func NewLivenessHandler(enc fingerprint.Encoder, identifier *facematch.Identifier, audit database.VerificationLog) *LivenessHandler {
	return &LivenessHandler{encoder: enc, identifier: identifier, audit: audit}
}

// ChallengeResponse is the body of a challenge request.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	ExpiresIn int    `json:"expires_in"`
}

// Challenge picks a random liveness challenge.
func (h *LivenessHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ChallengeResponse{
		Challenge: livenessChallenges[rand.IntN(len(livenessChallenges))],
		ExpiresIn: int(constants.ChallengeTTL / time.Second),
	})
}

// LiveVerifyResponse is the body of a liveness verification. Error is set
// when the face did not match.
type LiveVerifyResponse struct {
	OK              bool    `json:"ok"`
	Label           string  `json:"label"`
	Score           float64 `json:"score"`
	Threshold       float64 `json:"threshold"`
	Challenge       string  `json:"challenge"`
	FrameDifference float64 `json:"frame_difference"`
	VerificationID  string  `json:"verification_id,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// firstFormFile returns the first file uploaded under field, nil when absent.
func firstFormFile(r *http.Request, field string) ([]byte, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	return readFormFile(files[0])
}

// Verify checks that frame_a and frame_b differ enough to rule out a
// replayed still, then identifies the face in frame_b. An optional label
// form value restricts the match to that identity. Every identification is
// audited with its challenge.
func (h *LivenessHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		respondError(w, http.StatusBadRequest, "multipart form with frame_a and frame_b is required")
		return
	}
	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		respondUploadError(w, err)
		return
	}

	challenge := r.FormValue("challenge")
	if !slices.Contains(livenessChallenges, challenge) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown challenge %q", challenge))
		return
	}

	dataA, err := firstFormFile(r, "frame_a")
	if err != nil {
		respondUploadError(w, err)
		return
	}
	dataB, err := firstFormFile(r, "frame_b")
	if err != nil {
		respondUploadError(w, err)
		return
	}
	if len(dataA) == 0 || len(dataB) == 0 {
		respondError(w, http.StatusBadRequest, "frame_a and frame_b are required")
		return
	}

	frameA, frameB := fingerprint.Decode(dataA), fingerprint.Decode(dataB)
	if frameA == nil || frameB == nil {
		respondError(w, http.StatusBadRequest, "frames could not be decoded")
		return
	}

	diff := fingerprint.FrameDifference(frameA, frameB)
	if diff <= constants.MinFrameDifference {
		log.Printf("liveness %s failed: frame difference %.2f", challenge, diff)
		respondError(w, http.StatusUnauthorized, "liveness check failed")
		return
	}

	decision, err := h.identifier.Identify(r.Context(), h.encoder.Encode(r.Context(), frameB))
	if err != nil {
		log.Printf("liveness verify failed: %v", err)
		respondError(w, storeErrorStatus(err), fmt.Sprintf("failed to verify: %v", err))
		return
	}

	hint := r.FormValue("label")
	resp := LiveVerifyResponse{
		OK:              decision.Matched && (hint == "" || decision.Label == hint),
		Label:           decision.Label,
		Score:           decision.Score,
		Threshold:       decision.Threshold,
		Challenge:       challenge,
		FrameDifference: diff,
	}

	if h.audit != nil {
		id, err := h.audit.RecordVerification(r.Context(), database.Verification{
			Label:     decision.Label,
			Score:     decision.Score,
			Threshold: decision.Threshold,
			Matched:   resp.OK,
			Challenge: challenge,
		})
		if err != nil {
			log.Printf("Warning: failed to record verification: %v", err)
		} else {
			resp.VerificationID = id
		}
	}

	if !resp.OK {
		resp.Error = "face mismatch"
		respondJSON(w, http.StatusUnauthorized, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
