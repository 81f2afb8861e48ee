package transform

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestApplyShapeAndRange(t *testing.T) {
	tr := New(DefaultSize, false)

	for _, size := range []image.Point{{640, 480}, {100, 300}, {256, 256}, {7, 3}} {
		out := tr.Apply(gradient(size.X, size.Y))
		c, h, w := out.Shape()
		assert.Equal(t, 3, c)
		assert.Equal(t, 256, h)
		assert.Equal(t, 256, w)
		require.Len(t, out.Data, 3*256*256)
		for _, v := range out.Data {
			require.GreaterOrEqual(t, v, float32(-1))
			require.LessOrEqual(t, v, float32(1))
		}
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	tr := New(DefaultSize, false)
	img := gradient(333, 211)

	a := tr.Apply(img)
	b := tr.Apply(img)
	assert.Equal(t, a.Data, b.Data)
}

func TestApplyNormalizesExtremes(t *testing.T) {
	tr := New(16, false)

	white := image.NewUniform(color.White)
	out := tr.Apply(&boundedUniform{Uniform: white, r: image.Rect(0, 0, 40, 40)})
	for _, v := range out.Data {
		assert.InDelta(t, 1.0, v, 1e-6)
	}

	black := image.NewUniform(color.Black)
	out = tr.Apply(&boundedUniform{Uniform: black, r: image.Rect(0, 0, 40, 40)})
	for _, v := range out.Data {
		assert.InDelta(t, -1.0, v, 1e-6)
	}
}

func TestApplyDropsAlpha(t *testing.T) {
	tr := New(8, false)
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 0, 0, 128
	}
	out := tr.Apply(img)
	assert.InDelta(t, 1.0, out.At(0, 4, 4), 1e-6)
	assert.InDelta(t, -1.0, out.At(1, 4, 4), 1e-6)
	assert.InDelta(t, -1.0, out.At(2, 4, 4), 1e-6)
}

func TestToImageInvertsApply(t *testing.T) {
	tr := New(32, false)
	src := &boundedUniform{Uniform: image.NewUniform(color.RGBA{200, 100, 50, 255}), r: image.Rect(0, 0, 64, 64)}

	img := tr.ToImage(tr.Apply(src))
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	got := img.RGBAAt(10, 10)
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, got)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	writePNG(t, path, gradient(120, 90))

	tr := New(DefaultSize, false)
	a, err := tr.Load(path)
	require.NoError(t, err)
	b, err := tr.Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestLoadCorruptImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a jpeg"), 0o644))

	tr := New(DefaultSize, false)
	_, err := tr.Load(path)
	assert.ErrorContains(t, err, "decode image")

	_, err = tr.Load(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOrient(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	img.Set(1, 0, color.NRGBA{0, 0, 255, 255})

	assert.Same(t, image.Image(img), Orient(img, 1))

	rotated := Orient(img, 6)
	assert.Equal(t, image.Rect(0, 0, 1, 2), rotated.Bounds())
	r, _, _, _ := rotated.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	mirrored := Orient(img, 2)
	_, _, b, _ := mirrored.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), b)
}

func TestReadOrientationWithoutExif(t *testing.T) {
	assert.Equal(t, 1, ReadOrientation([]byte("no exif here")))
}

// boundedUniform gives image.Uniform finite bounds.
type boundedUniform struct {
	*image.Uniform
	r image.Rectangle
}

func (b *boundedUniform) Bounds() image.Rectangle { return b.r }
