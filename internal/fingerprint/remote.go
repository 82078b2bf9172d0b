package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-engine/internal/config"
)

const (
	defaultEmbeddingURL  = "http://localhost:8000"
	defaultRemoteMaxSize = 640
)

// RemoteEncoder computes face embeddings with a learned model served over HTTP.
// The server detects faces and returns one embedding per face; the face with
// the highest detection score is used.
type RemoteEncoder struct {
	baseURL string
	dim     int
	maxSize int
	client  *http.Client
}

// NewRemoteEncoder creates a new remote encoder
func NewRemoteEncoder(cfg config.RemoteConfig) *RemoteEncoder {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = defaultRemoteMaxSize
	}
	return &RemoteEncoder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     cfg.Dim,
		maxSize: maxSize,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Encode implements Encoder. Failures are logged and reported as nil.
func (c *RemoteEncoder) Encode(ctx context.Context, img image.Image) []float32 {
	if img == nil || img.Bounds().Empty() {
		return nil
	}

	data, err := encodeJPEG(downscale(img, c.maxSize))
	if err != nil {
		log.Printf("remote encoder: %v", err)
		return nil
	}

	emb, err := c.ComputeFaceEmbedding(ctx, data)
	if err != nil {
		log.Printf("remote encoder: %v", err)
		return nil
	}
	if c.dim > 0 && len(emb) != c.dim {
		log.Printf("remote encoder: expected %d dimensions, server returned %d", c.dim, len(emb))
		return nil
	}

	v := make([]float64, len(emb))
	for i, x := range emb {
		v[i] = float64(x)
	}
	return l2Normalize(v)
}

// Dim implements Encoder.
func (c *RemoteEncoder) Dim() int {
	return c.dim
}

// Name implements Encoder.
func (c *RemoteEncoder) Name() string {
	return fmt.Sprintf("%s(%s,d=%d)", config.EncoderRemote, c.baseURL, c.dim)
}

// ComputeFaceEmbedding returns the embedding of the most confidently detected face.
func (c *RemoteEncoder) ComputeFaceEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	best := -1
	for i := range faceResp.Faces {
		if len(faceResp.Faces[i].Embedding) == 0 {
			continue
		}
		if best < 0 || faceResp.Faces[i].DetScore > faceResp.Faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, errors.New("no face detected")
	}

	return faceResp.Faces[best].Embedding, nil
}

// postMultipartImage posts JPEG image data as the multipart "file" field.
func (c *RemoteEncoder) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

var _ Encoder = (*RemoteEncoder)(nil)
