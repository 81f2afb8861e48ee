package quantizer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Reserved control codes of the VQGAN codebook. They share the index space with the
// 16384 content codes and must never be decoded as image content.
const (
	DecoderStartCode int64 = 16384
	BOSCode          int64 = 16385
	EOSCode          int64 = 16386
	PadCode          int64 = 16387

	// ContentCodes is the number of codebook entries that map to pixels.
	ContentCodes = 16384
)

// DefaultReserved lists every reserved control code.
var DefaultReserved = []int64{DecoderStartCode, BOSCode, EOSCode, PadCode}

// Filter excludes a fixed set of code indices from arg-max selection.
type Filter struct {
	forbidden []int64
}

// NewFilter returns a filter over forbidden; duplicates are collapsed.
func NewFilter(forbidden []int64) *Filter {
	seen := make(map[int64]struct{}, len(forbidden))
	out := make([]int64, 0, len(forbidden))
	for _, idx := range forbidden {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return &Filter{forbidden: out}
}

// Forbidden returns the sorted forbidden indices.
func (f *Filter) Forbidden() []int64 {
	return append([]int64(nil), f.forbidden...)
}

// IsForbidden reports whether idx is excluded.
func (f *Filter) IsForbidden(idx int64) bool {
	i := sort.Search(len(f.forbidden), func(i int) bool { return f.forbidden[i] >= idx })
	return i < len(f.forbidden) && f.forbidden[i] == idx
}

// Mask returns a copy of dist with -Inf added at every forbidden index within range.
func (f *Filter) Mask(dist []float64) []float64 {
	out := make([]float64, len(dist))
	copy(out, dist)
	negInf := math.Inf(-1)
	for _, idx := range f.forbidden {
		if idx >= 0 && idx < int64(len(out)) {
			out[idx] += negInf
		}
	}
	return out
}

// Argmax masks dist and returns the index of its largest remaining value.
// ok is false when every entry is forbidden or dist is empty.
func (f *Filter) Argmax(dist []float64) (int64, bool) {
	if len(dist) == 0 {
		return 0, false
	}
	masked := f.Mask(dist)
	idx := floats.MaxIdx(masked)
	if math.IsInf(masked[idx], -1) || math.IsNaN(masked[idx]) {
		return 0, false
	}
	return int64(idx), true
}

// Softmax returns exp(x - logsumexp(x)) for one position.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	lse := floats.LogSumExp(logits)
	for i, v := range logits {
		out[i] = math.Exp(v - lse)
	}
	return out
}

// StripStart removes the leading start code from a sequence one longer than length.
// Any other length is returned unchanged.
func StripStart(row []int64, length int) []int64 {
	if len(row) == length+1 {
		return row[1:]
	}
	return row
}
