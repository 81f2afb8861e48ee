package quantizer

import (
	"fmt"
	"strings"
)

// NewModel selects a quantization model by backend name ("onnx" or "palette").
// size is the square image resolution the model consumes.
func NewModel(backend string, opts ONNXOptions, size int) (Model, error) {
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "onnx", "vqgan", "":
		m, err := NewONNXModel(opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "palette", "dev":
		return NewPaletteModel(opts.CodeLength, size)
	default:
		return nil, fmt.Errorf("unknown quantizer backend %q", backend)
	}
}
