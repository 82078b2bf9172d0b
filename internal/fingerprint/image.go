package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/kozaktomas/face-engine/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Decode decodes a JPEG, PNG, GIF or BMP image of at most
// constants.MaxImagePixels pixels.
// Returns nil if the data cannot be decoded; Encode maps nil to the empty vector.
func Decode(data []byte) image.Image {
	return DecodeLimited(data, constants.MaxImagePixels)
}

// DecodeLimited decodes an image whose header declares at most maxPixels
// pixels. The header is checked before the pixel grid is allocated.
// maxPixels <= 0 disables the check.
func DecodeLimited(data []byte, maxPixels int) image.Image {
	if len(data) == 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return nil
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return img
}

// luma is the ITU-R BT.601 luma of 8-bit RGB, rounded.
func luma(r, g, b uint32) uint8 {
	l := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(min(math.Round(l), 255))
}

// toIntensity converts an image to 8-bit luma with origin at (0,0).
// Gray, RGBA and YCbCr images are read from their pixel buffers; the
// result is the same as going through At.
func toIntensity(img image.Image) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	gray := image.NewGray(image.Rect(0, 0, width, height))

	switch src := img.(type) {
	case *image.Gray:
		for y := range height {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := gray.Pix[y*gray.Stride:]
			for x := range width {
				v := uint32(row[x])
				dst[x] = luma(v, v, v)
			}
		}
	case *image.RGBA:
		for y := range height {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := gray.Pix[y*gray.Stride:]
			for x := range width {
				p := row[4*x : 4*x+3]
				dst[x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
	case *image.YCbCr:
		for y := range height {
			dst := gray.Pix[y*gray.Stride:]
			for x := range width {
				px, py := bounds.Min.X+x, bounds.Min.Y+y
				yi, ci := src.YOffset(px, py), src.COffset(px, py)
				r, g, b, _ := color.YCbCr{Y: src.Y[yi], Cb: src.Cb[ci], Cr: src.Cr[ci]}.RGBA()
				dst[x] = luma(r>>8, g>>8, b>>8)
			}
		}
	default:
		intensityAt(img, gray)
	}
	return gray
}

// intensityAt fills gray from img through the generic color interface.
func intensityAt(img image.Image, gray *image.Gray) {
	bounds := img.Bounds()
	for y := range bounds.Dy() {
		for x := range bounds.Dx() {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray.Pix[y*gray.Stride+x] = luma(r>>8, g>>8, b>>8)
		}
	}
}

// resizeIntensity scales an intensity image to size×size.
func resizeIntensity(gray *image.Gray, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return dst
}

// downscale resizes img to fit within maxSize while keeping aspect ratio.
// Images that already fit are returned unchanged.
func downscale(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(int(float64(height)*float64(maxSize)/float64(width)), 1)
	} else {
		newHeight = maxSize
		newWidth = max(int(float64(width)*float64(maxSize)/float64(height)), 1)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

// encodeJPEG encodes img as JPEG.
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
