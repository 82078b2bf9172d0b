package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-engine/internal/database"
)

func TestRespondJSON_SetsStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"BadRequest", http.StatusBadRequest},
		{"UnprocessableEntity", http.StatusUnprocessableEntity},
		{"InternalServerError", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.statusCode, nil)

			if recorder.Code != tc.statusCode {
				t.Errorf("expected status %d, got %d", tc.statusCode, recorder.Code)
			}
			assertContentType(t, recorder, "application/json")
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "bad input")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["error"] != "bad input" {
		t.Errorf("expected error 'bad input', got '%s'", result["error"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\nINFO forged\r"); got != "aliceINFO forged" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestStoreErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"dimension", fmt.Errorf("%w: %w", database.ErrWrite, database.ErrDimensionMismatch), http.StatusUnprocessableEntity},
		{"empty", database.ErrEmptyVector, http.StatusUnprocessableEntity},
		{"unavailable", fmt.Errorf("ping: %w", database.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{"write", database.ErrWrite, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := storeErrorStatus(tc.err); got != tc.want {
				t.Errorf("storeErrorStatus() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestReadUpload(t *testing.T) {
	t.Run("raw body", func(t *testing.T) {
		got, err := readUpload(rawImageRequest(http.MethodPost, "/", []byte("abc")), "file")
		if err != nil || len(got) != 1 || string(got[0]) != "abc" {
			t.Errorf("readUpload() = %q, %v", got, err)
		}
	})

	t.Run("empty raw body", func(t *testing.T) {
		got, err := readUpload(rawImageRequest(http.MethodPost, "/", nil), "file")
		if err != nil || got != nil {
			t.Errorf("readUpload() = %q, %v", got, err)
		}
	})

	t.Run("multipart fields in order", func(t *testing.T) {
		req := multipartRequest(t, "/", nil, "files", []byte("one"), []byte(""), []byte("two"))
		got, err := readUpload(req, "files", "file")
		if err != nil {
			t.Fatalf("readUpload() error: %v", err)
		}
		if len(got) != 2 || string(got[0]) != "one" || string(got[1]) != "two" {
			t.Errorf("readUpload() = %q", got)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		req := rawImageRequest(http.MethodPost, "/", []byte(strings.Repeat("x", 64)))
		recorder := httptest.NewRecorder()
		req.Body = http.MaxBytesReader(recorder, req.Body, 16)

		_, err := readUpload(req, "file")
		if err == nil {
			t.Fatal("expected an error for an oversized body")
		}
		respondUploadError(recorder, err)
		assertStatusCode(t, recorder, http.StatusRequestEntityTooLarge)
	})
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}
