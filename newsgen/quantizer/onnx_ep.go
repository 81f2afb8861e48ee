package quantizer

import (
	"path/filepath"
	"strings"
)

// ONNXOptions configures the ONNX Runtime backed VQGAN.
//
// EncoderPath is the exported encode graph (float32 [B,3,H,W] -> int64 codes).
// DecoderPath is the exported decode_code graph (int64 [B,L] -> float32 [B,3,H,W]);
// when empty, decoder.onnx next to the encoder is used if present.
// Device selects the execution provider: "auto", "cpu", "cuda", "tensorrt",
// "coreml" or "dml". "auto" tries CUDA and falls back to CPU; any other explicit
// provider that cannot be appended fails construction.
type ONNXOptions struct {
	EncoderPath   string
	DecoderPath   string
	Device        string
	DeviceID      int
	SharedLibrary string
	CodeLength    int
}

func (o ONNXOptions) device() string {
	d := strings.ToLower(strings.TrimSpace(o.Device))
	if d == "" {
		return "auto"
	}
	return d
}

func (o ONNXOptions) decoderPath() string {
	if o.DecoderPath != "" {
		return o.DecoderPath
	}
	if o.EncoderPath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(o.EncoderPath), "decoder.onnx")
}
