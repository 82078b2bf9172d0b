package fingerprint

import (
	"context"
	"image"
	"math"
)

// Encoder turns a decoded image into a unit-length feature vector.
// A nil result means no features could be extracted (nil or empty image,
// unreachable model server, ...). Implementations never return an error;
// callers decide how to react to the empty vector.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) []float32
	// Dim is the length of every non-empty vector the encoder produces.
	Dim() int
	// Name identifies the encoder and its parameters. It is stored alongside
	// enrolled vectors so incompatible configurations can be detected.
	Name() string
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// normEpsilon keeps normalization finite for all-zero input.
const normEpsilon = 1e-9

// l2Normalize divides every component by sqrt(sum of squares)+ε and
// returns the result as a new float32 slice.
func l2Normalize(v []float64) []float32 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	denom := math.Sqrt(sum) + normEpsilon

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x / denom)
	}
	return out
}
