//go:build !onnx
// +build !onnx

package quantizer

import (
	"context"
	"errors"

	"github.com/newsgen/newsgen-data/newsgen/transform"
)

// ErrONNXUnavailable is returned when the binary was built without the onnx tag.
var ErrONNXUnavailable = errors.New("onnx quantizer not available: build with -tags onnx and provide an exported VQGAN")

// ONNXModel is a stub used when built without the "onnx" build tag.
type ONNXModel struct{}

// NewONNXModel always fails without the onnx build tag.
func NewONNXModel(opts ONNXOptions) (*ONNXModel, error) {
	return nil, ErrONNXUnavailable
}

func (m *ONNXModel) Device() string { return "none" }

func (m *ONNXModel) Close() error { return nil }

func (m *ONNXModel) Encode(ctx context.Context, images []transform.Tensor) ([][]int64, error) {
	return nil, ErrONNXUnavailable
}

func (m *ONNXModel) DecodeCode(ctx context.Context, codes [][]int64) ([]transform.Tensor, error) {
	return nil, ErrONNXUnavailable
}
