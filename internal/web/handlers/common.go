package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

const errNoImage = "no image provided"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// storeErrorStatus maps a store error to an HTTP status.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrEmptyVector), errors.Is(err, database.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, database.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readUpload returns the image payloads of a request. Multipart requests
// yield every file under the given form fields, in order; any other request
// yields its raw body. Empty payloads are dropped.
func readUpload(r *http.Request, fields ...string) ([][]byte, error) {
	if !isMultipart(r) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, nil
		}
		return [][]byte{data}, nil
	}

	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		return nil, err
	}
	var out [][]byte
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			data, err := readFormFile(fh)
			if err != nil {
				return nil, err
			}
			if len(data) > 0 {
				out = append(out, data)
			}
		}
	}
	return out, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// respondUploadError answers a failed readUpload.
func respondUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	respondError(w, http.StatusBadRequest, "failed to read request body")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
