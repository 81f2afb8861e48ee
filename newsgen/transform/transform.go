// Package transform turns raw images into the fixed-shape tensors consumed by the
// image quantizer, and maps decoded tensors back to images.
package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultSize is the square input resolution of the quantizer.
	DefaultSize = 256
	// Channels is fixed: every image is forced to RGB.
	Channels = 3
)

// StandardMean and StandardSTD map [0,1] onto [-1,1].
var (
	StandardMean = [3]float32{0.5, 0.5, 0.5}
	StandardSTD  = [3]float32{0.5, 0.5, 0.5}
)

// Tensor is a channel-first float image of shape Channels x Height x Width.
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(channels, height, width int) Tensor {
	return Tensor{Channels: channels, Height: height, Width: width, Data: make([]float32, channels*height*width)}
}

// Shape returns (C, H, W).
func (t Tensor) Shape() (int, int, int) { return t.Channels, t.Height, t.Width }

// At returns the value at channel c, row y, column x.
func (t Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

// Transform is the deterministic resize + normalize pipeline.
type Transform struct {
	Size            int
	Mean            [3]float32
	STD             [3]float32
	ExifOrientation bool
}

// New returns a Transform producing size x size tensors normalized to [-1,1].
func New(size int, exifOrientation bool) *Transform {
	if size <= 0 {
		size = DefaultSize
	}
	return &Transform{
		Size:            size,
		Mean:            StandardMean,
		STD:             StandardSTD,
		ExifOrientation: exifOrientation,
	}
}

// LoadImage reads and decodes the image at path.
func (t *Transform) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	if t.ExifOrientation {
		img = Orient(img, ReadOrientation(data))
	}
	return img, nil
}

// Load reads the image at path and applies the transform.
func (t *Transform) Load(path string) (Tensor, error) {
	img, err := t.LoadImage(path)
	if err != nil {
		return Tensor{}, err
	}
	return t.Apply(img), nil
}

// Apply converts img to RGB, resizes it to Size x Size and normalizes every channel.
func (t *Transform) Apply(img image.Image) Tensor {
	rgb := toRGB(img)

	dst := image.NewRGBA(image.Rect(0, 0, t.Size, t.Size))
	draw.BiLinear.Scale(dst, dst.Rect, rgb, rgb.Bounds(), draw.Src, nil)

	out := NewTensor(Channels, t.Size, t.Size)
	plane := t.Size * t.Size
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			off := dst.PixOffset(x, y)
			i := y*t.Size + x
			for c := 0; c < Channels; c++ {
				v := float32(dst.Pix[off+c]) / 255.0
				out.Data[c*plane+i] = (v - t.Mean[c]) / t.STD[c]
			}
		}
	}
	return out
}

// ToImage maps a normalized tensor back to an 8-bit RGBA image, clamping out of range values.
func (t *Transform) ToImage(tensor Tensor) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, tensor.Width, tensor.Height))
	for y := 0; y < tensor.Height; y++ {
		for x := 0; x < tensor.Width; x++ {
			var px [3]uint8
			for c := 0; c < Channels && c < tensor.Channels; c++ {
				v := tensor.At(c, y, x)*t.STD[c] + t.Mean[c]
				px[c] = clampByte(v)
			}
			img.SetRGBA(x, y, color.RGBA{px[0], px[1], px[2], 255})
		}
	}
	return img
}

// toRGB drops the alpha channel without compositing, keeping straight colour values.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 255
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

func clampByte(v float32) uint8 {
	v = v*255 + 0.5
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
