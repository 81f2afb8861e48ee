package tokenizer

import (
	"bufio"
	"os"
	"strings"
)

// Special tokens of the fallback vocabulary (BART naming).
const (
	BOSToken = "<s>"
	EOSToken = "</s>"
	UNKToken = "<unk>"
	PadToken = "<pad>"

	continuationPrefix = "##"
)

// Vocab is a vocab-file tokenizer used when no tokenizer.json is available.
// Words are split on whitespace and segmented greedily by longest vocabulary prefix;
// a word with no segmentation maps to <unk>.
type Vocab struct {
	vocab map[string]int64
	bosID int64
	eosID int64
	unkID int64
}

// LoadVocab reads one token per line; the line number is the token id.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int64, 50000)
	var idx int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		vocab[tok] = idx
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewVocab(vocab), nil
}

// NewVocab builds a Vocab from a token -> id map. Missing special tokens get
// BART's ids (<s>=0, <pad>=1, </s>=2, <unk>=3).
func NewVocab(vocab map[string]int64) *Vocab {
	v := &Vocab{vocab: vocab, bosID: 0, eosID: 2, unkID: 3}
	if id, ok := vocab[BOSToken]; ok {
		v.bosID = id
	}
	if id, ok := vocab[EOSToken]; ok {
		v.eosID = id
	}
	if id, ok := vocab[UNKToken]; ok {
		v.unkID = id
	}
	return v
}

// ID looks up a token.
func (v *Vocab) ID(token string) (int64, bool) {
	id, ok := v.vocab[token]
	return id, ok
}

// Encode implements Backend.
func (v *Vocab) Encode(text string) ([]int, error) {
	words := strings.Fields(text)
	ids := make([]int, 0, len(words)+2)
	ids = append(ids, int(v.bosID))
	for _, w := range words {
		ids = append(ids, v.segment(w)...)
	}
	ids = append(ids, int(v.eosID))
	return ids, nil
}

func (v *Vocab) segment(word string) []int {
	if id, ok := v.vocab[word]; ok {
		return []int{int(id)}
	}
	var out []int
	rest := word
	first := true
	for len(rest) > 0 {
		matched := false
		for end := len(rest); end > 0; end-- {
			piece := rest[:end]
			if !first {
				piece = continuationPrefix + piece
			}
			if id, ok := v.vocab[piece]; ok {
				out = append(out, int(id))
				rest = rest[end:]
				first = false
				matched = true
				break
			}
		}
		if !matched {
			return []int{int(v.unkID)}
		}
	}
	return out
}
