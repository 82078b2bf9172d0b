package fingerprint

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/face-engine/internal/config"
)

// HOGEncoder is the built-in deterministic encoder: a global intensity
// histogram followed by a truncated gradient-orientation descriptor.
// It holds no mutable state and is safe for concurrent use.
type HOGEncoder struct {
	cfg config.EncoderConfig
	dim int
}

// NewHOGEncoder validates cfg and returns an encoder for it.
func NewHOGEncoder(cfg config.EncoderConfig) (*HOGEncoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoder config: %w", err)
	}
	return &HOGEncoder{cfg: cfg, dim: VectorDim(cfg)}, nil
}

// Encode implements Encoder. The context is unused; encoding is a pure
// computation over the pixels.
func (e *HOGEncoder) Encode(_ context.Context, img image.Image) []float32 {
	return Encode(img, e.cfg)
}

// Dim implements Encoder.
func (e *HOGEncoder) Dim() int {
	return e.dim
}

// Name implements Encoder.
func (e *HOGEncoder) Name() string {
	return fmt.Sprintf("%s(h=%d,s=%d,c=%d,b=%d,st=%d,o=%d,g=%d)",
		config.EncoderHistogramHOG,
		e.cfg.HistBins, e.cfg.CanonicalSize, e.cfg.CellSize, e.cfg.BlockSize,
		e.cfg.BlockStride, e.cfg.OrientationBins, e.cfg.MaxGradientLen)
}

// VectorDim returns the length of vectors produced for cfg:
// HistBins + min(descriptor length, MaxGradientLen).
func VectorDim(cfg config.EncoderConfig) int {
	g := descriptorLen(cfg)
	if cfg.MaxGradientLen > 0 && g > cfg.MaxGradientLen {
		g = cfg.MaxGradientLen
	}
	return cfg.HistBins + g
}

// Encode computes the feature vector of img using cfg.
// Returns nil for a nil or empty image, or for an invalid cfg.
//
// Steps:
//  1. luma reduction to 8-bit intensity
//  2. HistBins-bucket intensity histogram over 0..255
//  3. bilinear resize to CanonicalSize², block-normalized orientation histograms
//  4. histogram ++ first MaxGradientLen descriptor values
//  5. L2 normalization
func Encode(img image.Image, cfg config.EncoderConfig) []float32 {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return nil
	}

	gray := toIntensity(img)
	hist := intensityHistogram(gray, cfg.HistBins)

	grad := gradientDescriptor(resizeIntensity(gray, cfg.CanonicalSize), cfg)
	if cfg.MaxGradientLen > 0 && len(grad) > cfg.MaxGradientLen {
		grad = grad[:cfg.MaxGradientLen]
	}

	feat := make([]float64, 0, len(hist)+len(grad))
	feat = append(feat, hist...)
	feat = append(feat, grad...)
	return l2Normalize(feat)
}

// intensityHistogram counts pixels into bins uniform buckets over 0..255.
func intensityHistogram(gray *image.Gray, bins int) []float64 {
	hist := make([]float64, bins)
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[(y-b.Min.Y)*gray.Stride : (y-b.Min.Y)*gray.Stride+b.Dx()]
		for _, v := range row {
			hist[int(v)*bins/256]++
		}
	}
	return hist
}

var _ Encoder = (*HOGEncoder)(nil)
