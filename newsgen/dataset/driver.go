package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	internal "github.com/newsgen/newsgen-data/newsgen"
	"github.com/newsgen/newsgen-data/newsgen/ports"
	"github.com/newsgen/newsgen-data/newsgen/tokenizer"
	"github.com/newsgen/newsgen-data/newsgen/transform"

	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of records encoded together.
const DefaultBatchSize = 4

var (
	ErrNoDataFiles   = errors.New("no data files found")
	ErrTokenCount    = errors.New("encoder returned wrong number of rows")
	ErrInvalidOption = errors.New("invalid driver option")
)

// TextEncoder turns a batch of strings into fixed-length token rows.
type TextEncoder interface {
	EncodeTextBatch(texts []string) (tokenizer.Encoding, error)
}

// ImageEncoder turns a batch of normalized images into code rows.
type ImageEncoder interface {
	EncodeImageBatch(ctx context.Context, images []transform.Tensor) ([][]int64, error)
}

// ImageLoader reads an image file into a normalized tensor.
type ImageLoader interface {
	Load(path string) (transform.Tensor, error)
}

// Options controls batching and output fields.
type Options struct {
	BatchSize      int
	AttentionMasks bool
}

// Driver encodes dataset files: every record gains caption tokens, image
// tokens and (when it has a headline) headline tokens.
type Driver struct {
	text     TextEncoder
	images   ImageEncoder
	loader   ImageLoader
	opts     Options
	reporter ports.Reporter
	log      zerolog.Logger
}

// NewDriver wires the encoders into a driver. A nil reporter discards progress.
func NewDriver(text TextEncoder, images ImageEncoder, loader ImageLoader, opts Options, reporter ports.Reporter, log zerolog.Logger) (*Driver, error) {
	if text == nil || images == nil || loader == nil {
		return nil, fmt.Errorf("%w: text, image and loader are required", ErrInvalidOption)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidOption, opts.BatchSize)
	}
	if reporter == nil {
		reporter = ports.Discard{}
	}
	return &Driver{
		text:     text,
		images:   images,
		loader:   loader,
		opts:     opts,
		reporter: reporter,
		log:      log,
	}, nil
}

// OutputName returns the file name an encoded copy of name is written to.
func OutputName(name string) string {
	return internal.DefaultEncodedPrefix + name
}

// EncodeDir encodes each named file in dir. Missing files are reported and
// skipped; it is an error if none exist. It returns the written paths.
func (d *Driver) EncodeDir(ctx context.Context, dir string, files []string) ([]string, error) {
	var written []string
	for _, name := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			d.reporter.Warning(fmt.Sprintf("data file %s not found, skipping", path))
			continue
		}
		out, err := d.EncodeFile(ctx, dir, name)
		if err != nil {
			return written, err
		}
		written = append(written, out)
	}
	if len(written) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDataFiles, dir)
	}
	return written, nil
}

// EncodeFile loads dir/name, encodes every split and writes the result beside
// it. Nothing is written if any batch fails.
func (d *Driver) EncodeFile(ctx context.Context, dir, name string) (string, error) {
	start := time.Now()
	ds, err := LoadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	d.log.Info().Str("file", name).Int("records", ds.Len()).Msg("encoding data file")

	if err := d.Encode(ctx, dir, name, ds); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}

	out := filepath.Join(dir, OutputName(name))
	if err := WriteFile(out, ds); err != nil {
		return "", err
	}
	d.log.Info().
		Str("file", name).
		Str("output", out).
		Dur("elapsed", time.Since(start)).
		Msg("wrote encoded data file")
	return out, nil
}

// Encode annotates ds in place. Image paths resolve against dir; label names
// the source in progress reports.
func (d *Driver) Encode(ctx context.Context, dir, label string, ds Dataset) error {
	for _, split := range ds.Splits() {
		records := ds[split]
		for start := 0; start < len(records); start += d.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+d.opts.BatchSize, len(records))
			if err := d.encodeBatch(ctx, dir, records[start:end]); err != nil {
				return fmt.Errorf("split %s records %d-%d: %w", split, start, end-1, err)
			}
			d.reporter.Progress(label, split, end, len(records))
		}
	}
	return nil
}

func (d *Driver) encodeBatch(ctx context.Context, dir string, batch []*Record) error {
	captions := make([]string, len(batch))
	images := make([]transform.Tensor, len(batch))
	var headlines []string
	var owners []int

	for i, rec := range batch {
		rec.DropUnused()
		captions[i] = rec.Caption
		if rec.HasHeadline() {
			headlines = append(headlines, *rec.Headline)
			owners = append(owners, i)
		}
		img, err := d.loader.Load(rec.ImageFile(dir))
		if err != nil {
			return fmt.Errorf("load image %s: %w", rec.ImagePath, err)
		}
		images[i] = img
	}

	var headlineEnc tokenizer.Encoding
	if len(headlines) > 0 {
		enc, err := d.text.EncodeTextBatch(headlines)
		if err != nil {
			return fmt.Errorf("tokenize headlines: %w", err)
		}
		if len(enc.InputIDs) != len(headlines) {
			return fmt.Errorf("%w: %d headlines, %d rows", ErrTokenCount, len(headlines), len(enc.InputIDs))
		}
		headlineEnc = enc
	}

	captionEnc, err := d.text.EncodeTextBatch(captions)
	if err != nil {
		return fmt.Errorf("tokenize captions: %w", err)
	}
	if len(captionEnc.InputIDs) != len(batch) {
		return fmt.Errorf("%w: %d captions, %d rows", ErrTokenCount, len(batch), len(captionEnc.InputIDs))
	}

	codes, err := d.images.EncodeImageBatch(ctx, images)
	if err != nil {
		return fmt.Errorf("quantize images: %w", err)
	}
	if len(codes) != len(batch) {
		return fmt.Errorf("%w: %d images, %d rows", ErrTokenCount, len(batch), len(codes))
	}

	// Headline rows belong to the records that had one, in batch order.
	for j, i := range owners {
		batch[i].HeadlineTokens = headlineEnc.InputIDs[j]
		if d.opts.AttentionMasks && headlineEnc.AttentionMask != nil {
			batch[i].HeadlineAttention = headlineEnc.AttentionMask[j]
		}
	}
	for i, rec := range batch {
		rec.CaptionTokens = captionEnc.InputIDs[i]
		if d.opts.AttentionMasks && captionEnc.AttentionMask != nil {
			rec.CaptionAttention = captionEnc.AttentionMask[i]
		}
		rec.ImageTokens = codes[i]
	}
	return nil
}
