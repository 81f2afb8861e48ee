package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocab() *Vocab {
	return NewVocab(map[string]int64{
		"<s>": 0, "<pad>": 1, "</s>": 2, "<unk>": 3,
		"the": 4, "quick": 5, "brown": 6, "fox": 7,
		"news": 8, "##paper": 9, "head": 10, "##line": 11,
	})
}

func sum(row []int64) int64 {
	var s int64
	for _, v := range row {
		s += v
	}
	return s
}

func TestEncodeTextBatchFixedLength(t *testing.T) {
	a := NewAdapter(testVocab(), Config{PadID: 1})
	texts := []string{"the quick brown fox", "", "newspaper headline", strings.Repeat("fox ", 3000)}

	enc, err := a.EncodeTextBatch(texts)
	require.NoError(t, err)
	require.Len(t, enc.InputIDs, len(texts))
	require.Len(t, enc.AttentionMask, len(texts))

	for i := range texts {
		assert.Len(t, enc.InputIDs[i], DefaultMaxLength, "ids row %d", i)
		assert.Len(t, enc.AttentionMask[i], DefaultMaxLength, "mask row %d", i)
	}

	// <s> + 4 words + </s>
	assert.Equal(t, int64(6), sum(enc.AttentionMask[0]))
	assert.Equal(t, []int64{0, 4, 5, 6, 7, 2, 1}, enc.InputIDs[0][:7])
	// empty text still carries <s></s>
	assert.Equal(t, int64(2), sum(enc.AttentionMask[1]))
	// subword segmentation
	assert.Equal(t, []int64{0, 8, 9, 10, 11, 2}, enc.InputIDs[2][:6])
	// truncated: every position is real and the final token is </s>
	assert.Equal(t, int64(DefaultMaxLength), sum(enc.AttentionMask[3]))
	assert.Equal(t, int64(2), enc.InputIDs[3][DefaultMaxLength-1])
}

func TestEncodeTextBatchMaskIsRightPadded(t *testing.T) {
	a := NewAdapter(testVocab(), Config{MaxLength: 16, PadID: 1})
	enc, err := a.EncodeTextBatch([]string{"the fox", "brown"})
	require.NoError(t, err)

	for i, mask := range enc.AttentionMask {
		seenZero := false
		for j, m := range mask {
			if m == 0 {
				seenZero = true
				assert.Equal(t, int64(1), enc.InputIDs[i][j], "padding id at row %d pos %d", i, j)
				continue
			}
			assert.False(t, seenZero, "real token after padding in row %d", i)
		}
	}
}

func TestEncodeTextBatchPreservesOrder(t *testing.T) {
	a := NewAdapter(testVocab(), Config{MaxLength: 8, PadID: 1})
	enc, err := a.EncodeTextBatch([]string{"fox", "brown", "quick"})
	require.NoError(t, err)

	assert.Equal(t, int64(7), enc.InputIDs[0][1])
	assert.Equal(t, int64(6), enc.InputIDs[1][1])
	assert.Equal(t, int64(5), enc.InputIDs[2][1])
}

func TestEncodeTextMatchesBatchOfOne(t *testing.T) {
	a := NewAdapter(testVocab(), Config{MaxLength: 32, PadID: 1})
	single, err := a.EncodeText("the quick fox")
	require.NoError(t, err)
	batch, err := a.EncodeTextBatch([]string{"the quick fox", "brown"})
	require.NoError(t, err)

	require.Len(t, single.InputIDs, 1)
	assert.Equal(t, batch.InputIDs[0], single.InputIDs[0])
	assert.Equal(t, batch.AttentionMask[0], single.AttentionMask[0])
}

func TestUnknownWordsAreNotErrors(t *testing.T) {
	a := NewAdapter(testVocab(), Config{MaxLength: 8, PadID: 1})
	enc, err := a.EncodeText("zebra ünïcödé")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 3, 2}, enc.InputIDs[0][:4])
}

func TestEncodeTextBatchEmpty(t *testing.T) {
	a := NewAdapter(testVocab(), Config{})
	_, err := a.EncodeTextBatch(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

type failingBackend struct{}

func (failingBackend) Encode(string) ([]int, error) { return nil, errors.New("boom") }

func TestEncodeTextBatchBackendError(t *testing.T) {
	a := NewAdapter(failingBackend{}, Config{})
	_, err := a.EncodeTextBatch([]string{"x"})
	assert.ErrorContains(t, err, "encode text 0")
}

func TestLoadVocabFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("<s>\n<unk>\n</s>\n<pad>\nhello\nworld\n"), 0o644))

	a, err := Load(dir, Config{MaxLength: 6})
	require.NoError(t, err)
	enc, err := a.EncodeText("hello world")
	require.NoError(t, err)
	// pad id comes from the vocabulary
	assert.Equal(t, []int64{0, 4, 5, 2, 3, 3}, enc.InputIDs[0])
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0}, enc.AttentionMask[0])
}

func TestLoadMissingTokenizer(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "tokenizer.json"), Config{})
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "vocab.txt"), Config{})
	assert.ErrorIs(t, err, ErrUnsupported)
}
