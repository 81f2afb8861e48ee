package quantizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vocab = ContentCodes + 4

func TestMaskAddsNegativeInfinity(t *testing.T) {
	f := NewFilter(DefaultReserved)
	dist := make([]float64, vocab)
	for i := range dist {
		dist[i] = 0.5
	}

	masked := f.Mask(dist)
	for _, idx := range DefaultReserved {
		assert.True(t, math.IsInf(masked[idx], -1), "index %d", idx)
	}
	assert.Equal(t, 0.5, masked[0])
	assert.Equal(t, 0.5, masked[ContentCodes-1])
	// input is left untouched
	assert.Equal(t, 0.5, dist[DecoderStartCode])
}

func TestMaskIsIdempotent(t *testing.T) {
	f := NewFilter(DefaultReserved)
	dist := Softmax([]float64{1, 2, 3})
	assert.Equal(t, f.Mask(dist), f.Mask(f.Mask(dist)))
}

func TestArgmaxNeverSelectsReserved(t *testing.T) {
	f := NewFilter(DefaultReserved)
	for _, reserved := range DefaultReserved {
		logits := make([]float64, vocab)
		logits[reserved] = 30
		logits[42] = 1
		idx, ok := f.Argmax(Softmax(logits))
		require.True(t, ok)
		assert.Equal(t, int64(42), idx, "reserved %d dominated the distribution", reserved)
	}

	// all reserved codes dominating at once
	logits := make([]float64, vocab)
	for _, reserved := range DefaultReserved {
		logits[reserved] = 50
	}
	logits[7] = 0.1
	idx, ok := f.Argmax(logits)
	require.True(t, ok)
	assert.Equal(t, int64(7), idx)
}

func TestArgmaxAllForbidden(t *testing.T) {
	f := NewFilter([]int64{0, 1})
	_, ok := f.Argmax([]float64{3, 4})
	assert.False(t, ok)

	_, ok = f.Argmax(nil)
	assert.False(t, ok)
}

func TestFilterIsInjectable(t *testing.T) {
	f := NewFilter([]int64{3, 1, 3})
	assert.Equal(t, []int64{1, 3}, f.Forbidden())
	assert.True(t, f.IsForbidden(1))
	assert.False(t, f.IsForbidden(2))

	idx, ok := f.Argmax([]float64{0.1, 0.9, 0.2, 0.8})
	require.True(t, ok)
	assert.Equal(t, int64(2), idx)
}

func TestMaskIgnoresOutOfRangeIndices(t *testing.T) {
	f := NewFilter(DefaultReserved)
	assert.Equal(t, []float64{1, 2}, f.Mask([]float64{1, 2}))
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1, 2, 3})
	var s float64
	for _, v := range p {
		s += v
	}
	assert.InDelta(t, 1.0, s, 1e-12)
	assert.Greater(t, p[2], p[1])
	assert.Greater(t, p[1], p[0])

	// large logits do not overflow
	p = Softmax([]float64{1000, 1000})
	assert.InDelta(t, 0.5, p[0], 1e-12)
}

func TestStripStart(t *testing.T) {
	row := make([]int64, 257)
	row[0] = DecoderStartCode
	for i := 1; i < len(row); i++ {
		row[i] = int64(i)
	}
	stripped := StripStart(row, 256)
	require.Len(t, stripped, 256)
	assert.Equal(t, int64(1), stripped[0])
	assert.Equal(t, int64(256), stripped[255])

	plain := make([]int64, 256)
	assert.Len(t, StripStart(plain, 256), 256)

	odd := make([]int64, 258)
	assert.Len(t, StripStart(odd, 256), 258)
}
