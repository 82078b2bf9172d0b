package fingerprint

import (
	"context"
	"encoding/json"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-engine/internal/config"
)

func newFaceServer(t *testing.T, status int, resp FaceResponse) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected file field: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRemoteEncoder_PicksBestFace(t *testing.T) {
	server := newFaceServer(t, http.StatusOK, FaceResponse{
		FacesCount: 2,
		Faces: []FaceDetection{
			{FaceIndex: 0, DetScore: 0.6, Embedding: []float32{0, 3, 4}},
			{FaceIndex: 1, DetScore: 0.9, Embedding: []float32{3, 4, 0}},
		},
	})

	enc := NewRemoteEncoder(config.RemoteConfig{URL: server.URL + "/", Dim: 3})
	v := enc.Encode(context.Background(), createTestImage(32, 32, color.White))

	if len(v) != 3 {
		t.Fatalf("expected 3 values, got %d", len(v))
	}
	want := []float32{0.6, 0.8, 0}
	for i := range want {
		if math.Abs(float64(v[i]-want[i])) > 1e-6 {
			t.Errorf("component %d = %f; want %f", i, v[i], want[i])
		}
	}
	if enc.Dim() != 3 {
		t.Errorf("Dim = %d; want 3", enc.Dim())
	}
}

func TestRemoteEncoder_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		resp   FaceResponse
		dim    int
	}{
		{"server error", http.StatusInternalServerError, FaceResponse{}, 3},
		{"no faces", http.StatusOK, FaceResponse{FacesCount: 0}, 3},
		{"dimension mismatch", http.StatusOK, FaceResponse{
			FacesCount: 1,
			Faces:      []FaceDetection{{DetScore: 0.9, Embedding: []float32{1, 0}}},
		}, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := newFaceServer(t, tc.status, tc.resp)
			enc := NewRemoteEncoder(config.RemoteConfig{URL: server.URL, Dim: tc.dim})
			if v := enc.Encode(context.Background(), createTestImage(16, 16, color.White)); v != nil {
				t.Errorf("expected nil, got %v", v)
			}
		})
	}
}

func TestRemoteEncoder_EmptyImage(t *testing.T) {
	enc := NewRemoteEncoder(config.RemoteConfig{URL: "http://127.0.0.1:1", Dim: 3})
	if v := enc.Encode(context.Background(), nil); v != nil {
		t.Errorf("expected nil for nil image, got %v", v)
	}
}

func TestRemoteEncoder_Defaults(t *testing.T) {
	enc := NewRemoteEncoder(config.RemoteConfig{})
	if enc.baseURL != defaultEmbeddingURL {
		t.Errorf("expected default URL, got %q", enc.baseURL)
	}
	if enc.maxSize != defaultRemoteMaxSize {
		t.Errorf("expected default max size, got %d", enc.maxSize)
	}
}
