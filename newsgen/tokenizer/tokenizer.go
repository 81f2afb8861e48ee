package tokenizer

import (
	"errors"
	"fmt"
)

// DefaultMaxLength is the fixed sequence length of every encoded text.
const DefaultMaxLength = 1024

var (
	// ErrEmptyBatch is returned when a batch encode is called without inputs
	ErrEmptyBatch = errors.New("tokenizer: empty batch")
	// ErrUnsupported indicates the tokenizer could not be initialized
	ErrUnsupported = errors.New("unsupported tokenizer configuration")
)

// Backend converts raw text to token ids, special tokens included, without padding
// or truncation.
type Backend interface {
	Encode(text string) ([]int, error)
}

// Encoding holds fixed-length ids and attention masks, one row per input.
type Encoding struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
}

// Config holds basic tokenizer settings
type Config struct {
	MaxLength int
	PadID     int64
}

// Adapter pads or truncates backend output to a fixed length.
type Adapter struct {
	backend   Backend
	maxLength int
	padID     int64
}

// NewAdapter wraps backend. A non-positive MaxLength selects DefaultMaxLength.
func NewAdapter(backend Backend, cfg Config) *Adapter {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	return &Adapter{backend: backend, maxLength: cfg.MaxLength, padID: cfg.PadID}
}

// MaxLength returns the fixed output length.
func (a *Adapter) MaxLength() int { return a.maxLength }

// EncodeText encodes a single string.
func (a *Adapter) EncodeText(text string) (Encoding, error) {
	return a.EncodeTextBatch([]string{text})
}

// EncodeTextBatch encodes texts in order; row i of the result belongs to texts[i].
func (a *Adapter) EncodeTextBatch(texts []string) (Encoding, error) {
	if len(texts) == 0 {
		return Encoding{}, ErrEmptyBatch
	}
	enc := Encoding{
		InputIDs:      make([][]int64, len(texts)),
		AttentionMask: make([][]int64, len(texts)),
	}
	for i, txt := range texts {
		ids, err := a.backend.Encode(txt)
		if err != nil {
			return Encoding{}, fmt.Errorf("encode text %d: %w", i, err)
		}
		enc.InputIDs[i], enc.AttentionMask[i] = a.fixLength(ids)
	}
	return enc, nil
}

// fixLength enforces maxLength. Truncation keeps the final token so the
// end-of-sequence marker survives.
func (a *Adapter) fixLength(ids []int) ([]int64, []int64) {
	rowIDs := make([]int64, a.maxLength)
	rowMask := make([]int64, a.maxLength)

	n := len(ids)
	if n > a.maxLength {
		n = a.maxLength
		for j := 0; j < n-1; j++ {
			rowIDs[j] = int64(ids[j])
		}
		rowIDs[n-1] = int64(ids[len(ids)-1])
	} else {
		for j := 0; j < n; j++ {
			rowIDs[j] = int64(ids[j])
		}
	}
	for j := 0; j < n; j++ {
		rowMask[j] = 1
	}
	for j := n; j < a.maxLength; j++ {
		rowIDs[j] = a.padID
	}
	return rowIDs, rowMask
}
