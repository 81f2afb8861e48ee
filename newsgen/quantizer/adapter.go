package quantizer

import (
	"context"
	"fmt"

	"github.com/newsgen/newsgen-data/newsgen/transform"
)

// DefaultCodeLength is the number of codes per 256x256 image (a 16x16 grid).
const DefaultCodeLength = 256

// Adapter runs the frozen model and applies the reserved code filter on every
// decode path. Inputs are host slices; the model owns transfer to its device.
type Adapter struct {
	model      Model
	filter     *Filter
	codeLength int
}

// NewAdapter wraps model. A nil filter excludes DefaultReserved.
func NewAdapter(model Model, filter *Filter, codeLength int) *Adapter {
	if filter == nil {
		filter = NewFilter(DefaultReserved)
	}
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	return &Adapter{model: model, filter: filter, codeLength: codeLength}
}

// CodeLength returns the number of codes per image.
func (a *Adapter) CodeLength() int { return a.codeLength }

// Filter returns the reserved code filter.
func (a *Adapter) Filter() *Filter { return a.filter }

// Device reports where the model runs.
func (a *Adapter) Device() string { return a.model.Device() }

// Close releases the model.
func (a *Adapter) Close() error { return a.model.Close() }

// EncodeImageBatch returns one code sequence per image, in input order.
func (a *Adapter) EncodeImageBatch(ctx context.Context, images []transform.Tensor) ([][]int64, error) {
	if len(images) == 0 {
		return nil, ErrEmptyBatch
	}
	c, h, w := images[0].Shape()
	for i, img := range images {
		ic, ih, iw := img.Shape()
		if ic != c || ih != h || iw != w || len(img.Data) != c*h*w {
			return nil, fmt.Errorf("%w: image %d is %dx%dx%d, batch is %dx%dx%d", ErrShapeMismatch, i, ic, ih, iw, c, h, w)
		}
	}

	codes, err := a.model.Encode(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	if len(codes) != len(images) {
		return nil, fmt.Errorf("%w: model returned %d code rows for %d images", ErrShapeMismatch, len(codes), len(images))
	}
	for i, row := range codes {
		if len(row) != a.codeLength {
			return nil, fmt.Errorf("%w: image %d has %d codes, want %d", ErrShapeMismatch, i, len(row), a.codeLength)
		}
	}
	return codes, nil
}

// EncodeImage encodes a single image.
func (a *Adapter) EncodeImage(ctx context.Context, image transform.Tensor) ([]int64, error) {
	codes, err := a.EncodeImageBatch(ctx, []transform.Tensor{image})
	if err != nil {
		return nil, err
	}
	return codes[0], nil
}

// GetIndices selects the most probable non-reserved code at every position and
// drops the final position, which holds the end marker.
func (a *Adapter) GetIndices(logits Logits) ([][]int64, error) {
	if len(logits) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([][]int64, len(logits))
	for b, seq := range logits {
		if len(seq) == 0 {
			return nil, fmt.Errorf("%w: sample %d has no positions", ErrShapeMismatch, b)
		}
		row := make([]int64, len(seq)-1)
		for p := 0; p < len(seq)-1; p++ {
			idx, ok := a.filter.Argmax(Softmax(seq[p]))
			if !ok {
				return nil, fmt.Errorf("%w: sample %d position %d", ErrNoValidCode, b, p)
			}
			row[p] = idx
		}
		out[b] = row
	}
	return out, nil
}

// DecodeImages selects codes like GetIndices and decodes them to images.
func (a *Adapter) DecodeImages(ctx context.Context, logits Logits) ([]transform.Tensor, error) {
	indices, err := a.GetIndices(logits)
	if err != nil {
		return nil, err
	}
	return a.decode(ctx, indices)
}

// DecodeImagesCode decodes raw code sequences. A sequence one longer than
// CodeLength starts with the decoder start code, which is stripped first.
// Any reserved code left after stripping is rejected.
func (a *Adapter) DecodeImagesCode(ctx context.Context, indices [][]int64) ([]transform.Tensor, error) {
	if len(indices) == 0 {
		return nil, ErrEmptyBatch
	}
	rows := make([][]int64, len(indices))
	for i, row := range indices {
		rows[i] = StripStart(row, a.codeLength)
		for p, code := range rows[i] {
			if a.filter.IsForbidden(code) {
				return nil, fmt.Errorf("%w: row %d position %d holds %d", ErrReservedCode, i, p, code)
			}
		}
	}
	return a.decode(ctx, rows)
}

func (a *Adapter) decode(ctx context.Context, codes [][]int64) ([]transform.Tensor, error) {
	images, err := a.model.DecodeCode(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("decode codes: %w", err)
	}
	if len(images) != len(codes) {
		return nil, fmt.Errorf("%w: model returned %d images for %d code rows", ErrShapeMismatch, len(images), len(codes))
	}
	return images, nil
}
