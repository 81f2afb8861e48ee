package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// SugarBPE wraps a sugarme/tokenizer pipeline loaded from a HuggingFace tokenizer.json
// (facebook/bart-large ships a byte-level BPE with a RoBERTa post-processor).
type SugarBPE struct {
	t *tk.Tokenizer
}

// NewSugarBPE loads tokenizer.json at path.
func NewSugarBPE(path string) (*SugarBPE, error) {
	if path == "" {
		return nil, fmt.Errorf("tokenizer path is required")
	}
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &SugarBPE{t: t}, nil
}

// Encode returns ids with <s> ... </s> added by the post-processor.
func (s *SugarBPE) Encode(text string) ([]int, error) {
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), true)
	if err != nil {
		return nil, err
	}
	return enc.GetIds(), nil
}

// Load selects a backend for path: tokenizer.json files go through sugarme, plain
// vocab files through the Vocab fallback. A directory is searched for either.
func Load(path string, cfg Config) (*Adapter, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		for _, name := range []string{"tokenizer.json", "vocab.txt"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	var backend Backend
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err := NewSugarBPE(path)
		if err != nil {
			return nil, err
		}
		backend = b
	} else {
		v, err := LoadVocab(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		backend = v
		if pad, ok := v.ID(PadToken); ok {
			cfg.PadID = pad
		}
	}
	return NewAdapter(backend, cfg), nil
}
