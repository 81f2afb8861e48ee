//go:build onnx
// +build onnx

package quantizer

import (
	"context"
	"os"
	"testing"

	"github.com/newsgen/newsgen-data/newsgen/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestONNXModelRoundTrip runs the exported VQGAN named by NEWSGEN_TEST_VQGAN
// (encoder graph; decoder.onnx alongside).
func TestONNXModelRoundTrip(t *testing.T) {
	path := os.Getenv("NEWSGEN_TEST_VQGAN")
	if path == "" {
		t.Skip("NEWSGEN_TEST_VQGAN not set; skipping onnx round trip")
	}

	model, err := NewONNXModel(ONNXOptions{
		EncoderPath:   path,
		Device:        "cpu",
		SharedLibrary: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"),
	})
	require.NoError(t, err)
	defer model.Close()
	assert.Equal(t, "cpu", model.Device())

	a := NewAdapter(model, nil, DefaultCodeLength)
	images := []transform.Tensor{transform.NewTensor(3, 256, 256), transform.NewTensor(3, 256, 256)}
	for i := range images[1].Data {
		images[1].Data[i] = 0.5
	}

	codes, err := a.EncodeImageBatch(context.Background(), images)
	require.NoError(t, err)
	require.Len(t, codes, 2)

	out, err := a.DecodeImagesCode(context.Background(), codes)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, img := range out {
		c, h, w := img.Shape()
		assert.Equal(t, []int{3, 256, 256}, []int{c, h, w})
	}
}

func TestONNXModelMissingEncoder(t *testing.T) {
	_, err := NewONNXModel(ONNXOptions{})
	assert.Error(t, err)
}
