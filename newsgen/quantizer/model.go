package quantizer

import (
	"context"
	"errors"

	"github.com/newsgen/newsgen-data/newsgen/transform"
)

var (
	// ErrShapeMismatch reports inputs or model outputs of an unexpected shape
	ErrShapeMismatch = errors.New("quantizer: shape mismatch")
	// ErrEmptyBatch is returned when an operation receives no inputs
	ErrEmptyBatch = errors.New("quantizer: empty batch")
	// ErrNoValidCode is returned when every code of a position is reserved
	ErrNoValidCode = errors.New("quantizer: no selectable code")
	// ErrReservedCode is returned when a reserved control code reaches pixel decoding
	ErrReservedCode = errors.New("quantizer: reserved code cannot be decoded")
	// ErrDecoderUnavailable is returned by models loaded without a decode path
	ErrDecoderUnavailable = errors.New("quantizer: decoder not loaded")
)

// Model is a frozen image quantization model.
//
// Encode maps a batch of normalized images to flattened grids of code indices.
// DecodeCode maps code grids back to normalized images. Implementations never
// update weights and are safe to reuse across batches.
type Model interface {
	Encode(ctx context.Context, images []transform.Tensor) ([][]int64, error)
	DecodeCode(ctx context.Context, codes [][]int64) ([]transform.Tensor, error)
	Device() string
	Close() error
}

// Logits holds per-position scores over the full codebook: [batch][position][code].
type Logits [][][]float64
