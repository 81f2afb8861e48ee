package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	internal "github.com/newsgen/newsgen-data/newsgen"
)

// JSON keys of a story record.
const (
	keyImagePath         = "image_path"
	keyArticlePath       = "article_path"
	keyTopic             = "topic"
	keySource            = "source"
	keyHeadline          = "headline"
	keyCaption           = "caption"
	keyCaptionTokens     = "caption_tokens"
	keyCaptionAttention  = "caption_attention"
	keyHeadlineTokens    = "headline_tokens"
	keyHeadlineAttention = "headline_attention"
	keyImageTokens       = "image_tokens"
)

// Record is one story: an image, its caption and optionally a headline.
// Fields this package does not know about are kept in Extra and written back.
type Record struct {
	ImagePath   string
	ArticlePath json.RawMessage
	Topic       json.RawMessage
	Source      json.RawMessage
	Headline    *string
	Caption     string

	CaptionTokens     []int64
	CaptionAttention  []int64
	HeadlineTokens    []int64
	HeadlineAttention []int64
	ImageTokens       []int64

	Extra map[string]json.RawMessage
}

// HasHeadline reports whether the record carries a headline.
func (r *Record) HasHeadline() bool { return r.Headline != nil }

// DropUnused removes the fields generation does not need.
func (r *Record) DropUnused() {
	r.ArticlePath = nil
	r.Topic = nil
	r.Source = nil
}

// ImageFile resolves the record's image against the dataset directory.
// Paths are stored relative, usually with a leading "./".
func (r *Record) ImageFile(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(r.ImagePath))
}

// ArticleFile resolves the record's article path, or "" when it has none.
func (r *Record) ArticleFile(dir string) string {
	var p string
	if len(r.ArticlePath) == 0 || json.Unmarshal(r.ArticlePath, &p) != nil || p == "" {
		return ""
	}
	return filepath.Join(dir, filepath.FromSlash(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = Record{}

	str := func(key string, dst *string) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		if string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		return nil
	}
	ints := func(key string, dst *[]int64) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		return nil
	}
	raw := func(key string) json.RawMessage {
		v, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		return v
	}

	if err := str(keyImagePath, &r.ImagePath); err != nil {
		return err
	}
	if err := str(keyCaption, &r.Caption); err != nil {
		return err
	}
	if h, ok := fields[keyHeadline]; ok && string(h) != "null" {
		var headline string
		if err := str(keyHeadline, &headline); err != nil {
			return err
		}
		r.Headline = &headline
	}
	delete(fields, keyHeadline)

	r.ArticlePath = raw(keyArticlePath)
	r.Topic = raw(keyTopic)
	r.Source = raw(keySource)

	for key, dst := range map[string]*[]int64{
		keyCaptionTokens:     &r.CaptionTokens,
		keyCaptionAttention:  &r.CaptionAttention,
		keyHeadlineTokens:    &r.HeadlineTokens,
		keyHeadlineAttention: &r.HeadlineAttention,
		keyImageTokens:       &r.ImageTokens,
	} {
		if err := ints(key, dst); err != nil {
			return err
		}
	}

	if len(fields) > 0 {
		r.Extra = fields
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+11)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[keyImagePath] = r.ImagePath
	out[keyCaption] = r.Caption
	if r.Headline != nil {
		out[keyHeadline] = *r.Headline
	}
	for key, v := range map[string]json.RawMessage{
		keyArticlePath: r.ArticlePath,
		keyTopic:       r.Topic,
		keySource:      r.Source,
	} {
		if len(v) > 0 {
			out[key] = v
		}
	}
	for key, v := range map[string][]int64{
		keyCaptionTokens:     r.CaptionTokens,
		keyCaptionAttention:  r.CaptionAttention,
		keyHeadlineTokens:    r.HeadlineTokens,
		keyHeadlineAttention: r.HeadlineAttention,
		keyImageTokens:       r.ImageTokens,
	} {
		if v != nil {
			out[key] = v
		}
	}
	return json.Marshal(out)
}

// Dataset maps a split name to its ordered records.
type Dataset map[string][]*Record

// Splits returns train, val and test (when present) followed by any other split
// names in lexical order.
func (d Dataset) Splits() []string {
	out := make([]string, 0, len(d))
	known := make(map[string]bool, len(internal.DefaultCanonicalSplits))
	for _, s := range internal.DefaultCanonicalSplits {
		known[s] = true
		if _, ok := d[s]; ok {
			out = append(out, s)
		}
	}
	var rest []string
	for s := range d {
		if !known[s] {
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Len returns the number of records across all splits.
func (d Dataset) Len() int {
	n := 0
	for _, recs := range d {
		n += len(recs)
	}
	return n
}

// LoadFile reads a dataset JSON file.
func LoadFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ds Dataset
	if err := json.NewDecoder(f).Decode(&ds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ds, nil
}

// WriteFile writes ds to path through a temporary file in the same directory.
func WriteFile(path string, ds Dataset) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(ds); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
