package quantizer

import (
	"context"
	"fmt"
	"math"

	"github.com/newsgen/newsgen-data/newsgen/transform"
)

// Palette bit depths: 5 bits red, 5 bits green, 4 bits blue = 16384 content codes.
const (
	paletteRedBits   = 5
	paletteGreenBits = 5
	paletteBlueBits  = 4
)

// PaletteModel is a deterministic, non-learned quantizer: each cell of a square
// grid is replaced by the nearest colour of a fixed 32x32x16 RGB palette. It shares
// the VQGAN code layout (16384 content codes, 256 codes per image) and is used for
// dry runs and tests where no exported model is available.
type PaletteModel struct {
	grid int
	size int
}

// NewPaletteModel returns a model emitting codeLength codes (a perfect square) per
// image and decoding to size x size images.
func NewPaletteModel(codeLength, size int) (*PaletteModel, error) {
	grid := int(math.Sqrt(float64(codeLength)))
	if grid <= 0 || grid*grid != codeLength {
		return nil, fmt.Errorf("%w: code length %d is not a square grid", ErrShapeMismatch, codeLength)
	}
	if size <= 0 || size%grid != 0 {
		return nil, fmt.Errorf("%w: image size %d is not divisible by grid %d", ErrShapeMismatch, size, grid)
	}
	return &PaletteModel{grid: grid, size: size}, nil
}

// Device implements Model.
func (m *PaletteModel) Device() string { return "cpu" }

// Close implements Model.
func (m *PaletteModel) Close() error { return nil }

// Encode implements Model.
func (m *PaletteModel) Encode(ctx context.Context, images []transform.Tensor) ([][]int64, error) {
	out := make([][]int64, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if img.Channels != transform.Channels || img.Height%m.grid != 0 || img.Width%m.grid != 0 {
			return nil, fmt.Errorf("%w: image %d is %dx%dx%d", ErrShapeMismatch, i, img.Channels, img.Height, img.Width)
		}
		out[i] = m.encodeOne(img)
	}
	return out, nil
}

func (m *PaletteModel) encodeOne(img transform.Tensor) []int64 {
	ch, cw := img.Height/m.grid, img.Width/m.grid
	codes := make([]int64, 0, m.grid*m.grid)
	for gy := 0; gy < m.grid; gy++ {
		for gx := 0; gx < m.grid; gx++ {
			var mean [3]float64
			for c := 0; c < 3; c++ {
				var s float64
				for y := gy * ch; y < (gy+1)*ch; y++ {
					for x := gx * cw; x < (gx+1)*cw; x++ {
						s += float64(img.At(c, y, x))
					}
				}
				// [-1,1] -> [0,1]
				mean[c] = (s/float64(ch*cw) + 1) / 2
			}
			r := level(mean[0], paletteRedBits)
			g := level(mean[1], paletteGreenBits)
			b := level(mean[2], paletteBlueBits)
			codes = append(codes, r<<(paletteGreenBits+paletteBlueBits)|g<<paletteBlueBits|b)
		}
	}
	return codes
}

// DecodeCode implements Model.
func (m *PaletteModel) DecodeCode(ctx context.Context, codes [][]int64) ([]transform.Tensor, error) {
	out := make([]transform.Tensor, len(codes))
	cell := m.size / m.grid
	for i, row := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) != m.grid*m.grid {
			return nil, fmt.Errorf("%w: row %d has %d codes, want %d", ErrShapeMismatch, i, len(row), m.grid*m.grid)
		}
		t := transform.NewTensor(transform.Channels, m.size, m.size)
		plane := m.size * m.size
		for k, code := range row {
			if code < 0 || code >= ContentCodes {
				return nil, fmt.Errorf("%w: row %d position %d holds %d", ErrReservedCode, i, k, code)
			}
			rgb := [3]float32{
				center(code>>(paletteGreenBits+paletteBlueBits), paletteRedBits),
				center((code>>paletteBlueBits)&(1<<paletteGreenBits-1), paletteGreenBits),
				center(code&(1<<paletteBlueBits-1), paletteBlueBits),
			}
			gy, gx := k/m.grid, k%m.grid
			for y := gy * cell; y < (gy+1)*cell; y++ {
				for x := gx * cell; x < (gx+1)*cell; x++ {
					for c := 0; c < 3; c++ {
						t.Data[c*plane+y*m.size+x] = rgb[c]*2 - 1
					}
				}
			}
		}
		out[i] = t
	}
	return out, nil
}

// level maps v in [0,1] onto 2^bits buckets.
func level(v float64, bits int) int64 {
	n := int64(1) << bits
	l := int64(v * float64(n))
	if l < 0 {
		return 0
	}
	if l >= n {
		return n - 1
	}
	return l
}

// center returns the midpoint of bucket l in [0,1].
func center(l int64, bits int) float32 {
	n := float32(int64(1) << bits)
	return (float32(l) + 0.5) / n
}
