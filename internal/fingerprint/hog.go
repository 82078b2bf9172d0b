package fingerprint

import (
	"image"
	"math"

	"github.com/kozaktomas/face-engine/internal/config"
)

// l2HysClip is the per-component cap applied between the two block normalizations.
const l2HysClip = 0.2

// hogGeometry derives cell and block counts for the canonical image.
type hogGeometry struct {
	cellSize      int
	cellsPerSide  int
	cellsPerBlock int
	strideCells   int
	blocksPerSide int
	bins          int
}

func newHOGGeometry(cfg config.EncoderConfig) hogGeometry {
	g := hogGeometry{
		cellSize:      cfg.CellSize,
		cellsPerSide:  cfg.CanonicalSize / cfg.CellSize,
		cellsPerBlock: cfg.BlockSize / cfg.CellSize,
		strideCells:   cfg.BlockStride / cfg.CellSize,
		bins:          cfg.OrientationBins,
	}
	g.blocksPerSide = (g.cellsPerSide-g.cellsPerBlock)/g.strideCells + 1
	return g
}

func (g hogGeometry) blockLen() int {
	return g.cellsPerBlock * g.cellsPerBlock * g.bins
}

// descriptorLen is the full (untruncated) gradient descriptor length for cfg.
// 64x64 with 8px cells, 16px blocks, 8px stride and 9 bins gives 7*7*4*9 = 1764.
func descriptorLen(cfg config.EncoderConfig) int {
	g := newHOGGeometry(cfg)
	return g.blocksPerSide * g.blocksPerSide * g.blockLen()
}

// gradientDescriptor computes block-normalized histograms of oriented
// gradients over a square intensity image of side cfg.CanonicalSize.
// Layout: blocks row-major, cells row-major within a block, then bins.
func gradientDescriptor(img *image.Gray, cfg config.EncoderConfig) []float64 {
	g := newHOGGeometry(cfg)
	cellHist := cellHistograms(img, g)

	out := make([]float64, 0, g.blocksPerSide*g.blocksPerSide*g.blockLen())
	block := make([]float64, g.blockLen())
	for by := range g.blocksPerSide {
		for bx := range g.blocksPerSide {
			block = block[:0]
			for cy := range g.cellsPerBlock {
				for cx := range g.cellsPerBlock {
					row := by*g.strideCells + cy
					col := bx*g.strideCells + cx
					idx := (row*g.cellsPerSide + col) * g.bins
					block = append(block, cellHist[idx:idx+g.bins]...)
				}
			}
			l2Hys(block)
			out = append(out, block...)
		}
	}
	return out
}

// cellHistograms accumulates magnitude-weighted orientation votes per cell.
// Orientations are unsigned (0..π); each vote is split linearly between the
// two nearest bin centers.
func cellHistograms(img *image.Gray, g hogGeometry) []float64 {
	hist := make([]float64, g.cellsPerSide*g.cellsPerSide*g.bins)
	span := g.cellsPerSide * g.cellSize
	binWidth := math.Pi / float64(g.bins)

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return float64(img.Pix[y*img.Stride+x])
	}

	for y := range span {
		for x := range span {
			gx := at(x+1, y) - at(x-1, y)
			gy := at(x, y+1) - at(x, y-1)
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}

			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			if angle >= math.Pi {
				angle -= math.Pi
			}

			pos := angle/binWidth - 0.5
			lo := math.Floor(pos)
			frac := pos - lo
			b0 := (int(lo) + g.bins) % g.bins
			b1 := (b0 + 1) % g.bins

			cell := ((y/g.cellSize)*g.cellsPerSide + x/g.cellSize) * g.bins
			hist[cell+b0] += mag * (1 - frac)
			hist[cell+b1] += mag * frac
		}
	}
	return hist
}

// l2Hys normalizes v in place: L2 normalize, clip at l2HysClip, renormalize.
// An all-zero block stays zero.
func l2Hys(v []float64) {
	normalize := func() {
		var sum float64
		for _, x := range v {
			sum += x * x
		}
		if sum == 0 {
			return
		}
		n := math.Sqrt(sum) + 1e-6
		for i := range v {
			v[i] /= n
		}
	}

	normalize()
	for i := range v {
		if v[i] > l2HysClip {
			v[i] = l2HysClip
		}
	}
	normalize()
}
