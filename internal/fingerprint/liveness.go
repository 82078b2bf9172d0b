package fingerprint

import (
	"image"

	"golang.org/x/image/draw"
)

// frameCompareSize bounds the longer side of a frame before comparison.
const frameCompareSize = 512

// FrameDifference returns the mean absolute difference of the R, G and B
// channels of two frames, in 0..255. Frames are downscaled to at most
// frameCompareSize pixels per side, and b is scaled to a's size when they
// differ. An empty frame yields 0.
func FrameDifference(a, b image.Image) float64 {
	if a == nil || b == nil || a.Bounds().Empty() || b.Bounds().Empty() {
		return 0
	}

	ra := toRGBA(downscale(a, frameCompareSize))
	rb := toRGBA(downscale(b, frameCompareSize))
	if ra.Rect.Size() != rb.Rect.Size() {
		scaled := image.NewRGBA(image.Rect(0, 0, ra.Rect.Dx(), ra.Rect.Dy()))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), rb, rb.Bounds(), draw.Src, nil)
		rb = scaled
	}

	width, height := ra.Rect.Dx(), ra.Rect.Dy()
	var sum uint64
	for y := range height {
		rowA := ra.Pix[ra.PixOffset(ra.Rect.Min.X, ra.Rect.Min.Y+y):]
		rowB := rb.Pix[rb.PixOffset(rb.Rect.Min.X, rb.Rect.Min.Y+y):]
		for x := range width {
			for c := range 3 {
				i := 4*x + c
				sum += uint64(absDiff(rowA[i], rowB[i]))
			}
		}
	}
	return float64(sum) / float64(width*height*3)
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// toRGBA returns img as *image.RGBA, copying only when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
