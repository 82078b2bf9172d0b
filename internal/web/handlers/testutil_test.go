package handlers

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/database/mock"
	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
)

// testEnv bundles the handlers over a shared mock store
type testEnv struct {
	store      *mock.MockStore
	encoder    *fingerprint.HOGEncoder
	gallery    *facematch.Gallery
	faces      *FacesHandler
	identities *IdentitiesHandler
	liveness   *LivenessHandler
	stats      *StatsHandler
}

// newTestEnv creates handlers over an initialized mock store
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	enc, err := fingerprint.NewHOGEncoder(config.DefaultEncoderConfig())
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	store := mock.NewMockStore()
	if err := store.InitializeSchema(context.Background(), database.StoreMeta{Dim: enc.Dim(), Encoder: enc.Name()}); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	gallery := facematch.NewGallery(store)
	identifier := facematch.NewIdentifier(gallery, config.DefaultThreshold, 3)
	stats := NewStatsHandler(store, gallery, enc, config.DefaultThreshold)

	return &testEnv{
		store:      store,
		encoder:    enc,
		gallery:    gallery,
		faces:      NewFacesHandler(enc, gallery, identifier, store, stats),
		identities: NewIdentitiesHandler(store, store),
		liveness:   NewLivenessHandler(enc, identifier, store),
		stats:      stats,
	}
}

// solidPNG returns a 64x64 PNG filled with c
func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

var (
	gray  = color.Gray{Y: 128}
	white = color.White
)

// rawImageRequest creates a request carrying an image as the raw body
func rawImageRequest(method, path string, data []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "image/png")
	return req
}

// multipartRequest creates a multipart request with the given form values and files
func multipartRequest(t *testing.T, path string, values map[string]string, field string, files ...[]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for i, data := range files {
		fw, err := mw.CreateFormFile(field, "sample"+string(rune('a'+i))+".png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// framesRequest creates a multipart request with one file per field
func framesRequest(t *testing.T, path string, values map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// blankPNG builds an all-black grayscale PNG of the given size without
// holding the pixel grid in memory
func blankPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, zlib.BestSpeed)
	if err != nil {
		t.Fatalf("failed to create zlib writer: %v", err)
	}
	row := make([]byte, width+1) // filter byte + samples
	for range height {
		if _, err := zw.Write(row); err != nil {
			t.Fatalf("failed to compress row: %v", err)
		}
	}
	zw.Close()

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(height))
	ihdr[8] = 8 // bit depth; color type 0 is grayscale

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	writePNGChunk(&out, "IHDR", ihdr)
	writePNGChunk(&out, "IDAT", idat.Bytes())
	writePNGChunk(&out, "IEND", nil)
	return out.Bytes()
}

func writePNGChunk(buf *bytes.Buffer, typ string, data []byte) {
	buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(data))))
	buf.WriteString(typ)
	buf.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	buf.Write(binary.BigEndian.AppendUint32(nil, crc.Sum32()))
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}
