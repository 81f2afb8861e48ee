package subset

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/newsgen/newsgen-data/newsgen"
	"github.com/newsgen/newsgen-data/newsgen/dataset"

	"github.com/RoaringBitmap/roaring"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sourcegraph/conc/pool"
)

// ErrInvalidOptions is returned for a subset request that cannot be served.
var ErrInvalidOptions = errors.New("invalid subset options")

// Options describes a subset to build.
type Options struct {
	Source  string   // dataset directory holding the data files and media
	Files   []string // data files to sample
	Root    string   // directory receiving <Name>.tar.gz
	Name    string
	Size    int // records per split
	Seed    uint64
	Workers int
	Exclude []string // gitignore-style patterns matched against image paths
}

// Result summarises a finished subset.
type Result struct {
	Archive string
	Records int
	Files   int
}

// Sampler draws record subsets with a fixed seed. The same seed and inputs
// always give the same selection.
type Sampler struct {
	rng     *rand.Rand
	exclude *ignore.GitIgnore
}

// NewSampler creates a sampler. exclude may be empty.
func NewSampler(seed uint64, exclude []string) *Sampler {
	s := &Sampler{rng: rand.New(rand.NewPCG(seed, seed))}
	if len(exclude) > 0 {
		s.exclude = ignore.CompileIgnoreLines(exclude...)
	}
	return s
}

func (s *Sampler) excluded(rec *dataset.Record) bool {
	if s.exclude == nil {
		return false
	}
	return s.exclude.MatchesPath(strings.TrimPrefix(rec.ImagePath, "./"))
}

// Select picks up to size records of each split without replacement. The
// chosen records keep their original order.
func (s *Sampler) Select(ds dataset.Dataset, size int) dataset.Dataset {
	out := make(dataset.Dataset, len(ds))
	for _, split := range ds.Splits() {
		records := ds[split]
		candidates := make([]uint32, 0, len(records))
		for i, rec := range records {
			if !s.excluded(rec) {
				candidates = append(candidates, uint32(i))
			}
		}

		chosen := roaring.New()
		if size >= len(candidates) {
			chosen.AddMany(candidates)
		} else {
			for _, j := range s.rng.Perm(len(candidates))[:size] {
				chosen.Add(candidates[j])
			}
		}

		picked := make([]*dataset.Record, 0, chosen.GetCardinality())
		it := chosen.Iterator()
		for it.HasNext() {
			picked = append(picked, records[it.Next()])
		}
		out[split] = picked
	}
	return out
}

// Create samples every data file of opts.Source, copies the referenced media
// into a staging directory, and packs it as <Root>/<Name>.tar.gz. The staging
// directory is removed afterwards.
func Create(ctx context.Context, opts Options, log zerolog.Logger) (Result, error) {
	if opts.Size <= 0 {
		return Result{}, fmt.Errorf("%w: size %d", ErrInvalidOptions, opts.Size)
	}
	if opts.Name == "" {
		opts.Name = internal.DefaultSubsetName
	}
	if len(opts.Files) == 0 {
		opts.Files = internal.DefaultDataFiles
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	start := time.Now()
	staging := filepath.Join(opts.Root, opts.Name)
	if _, err := os.Stat(staging); err == nil {
		return Result{}, fmt.Errorf("%w: staging directory %s already exists", ErrInvalidOptions, staging)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(staging)

	sampler := NewSampler(opts.Seed, opts.Exclude)
	media := make(map[string]struct{})
	var res Result
	sampled := 0
	for _, name := range opts.Files {
		ds, err := dataset.LoadFile(filepath.Join(opts.Source, name))
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("file", name).Msg("data file not found, skipping")
			continue
		}
		if err != nil {
			return Result{}, err
		}
		sampled++
		sub := sampler.Select(ds, opts.Size)
		for _, split := range sub.Splits() {
			if n := len(sub[split]); n < opts.Size {
				log.Warn().
					Str("file", name).
					Str("split", split).
					Int("records", len(ds[split])).
					Int("available", n).
					Msg("fewer eligible records than subset size, keeping all of them")
			}
			for _, rec := range sub[split] {
				paths := []string{rel(rec.ImagePath)}
				if p := rec.ArticleFile(""); p != "" {
					paths = append(paths, p)
				}
				for _, p := range paths {
					if !filepath.IsLocal(p) {
						return Result{}, fmt.Errorf("%w: media path %q escapes the dataset", ErrInvalidOptions, p)
					}
					media[p] = struct{}{}
				}
			}
		}
		if err := dataset.WriteFile(filepath.Join(staging, name), sub); err != nil {
			return Result{}, err
		}
		res.Records += sub.Len()
		log.Info().Str("file", name).Int("records", sub.Len()).Msg("sampled data file")
	}

	if sampled == 0 {
		return Result{}, fmt.Errorf("%w: no data files in %s", ErrInvalidOptions, opts.Source)
	}

	if err := copyMedia(ctx, opts.Source, staging, media, opts.Workers); err != nil {
		return Result{}, err
	}
	res.Files = len(media)

	res.Archive = staging + ".tar.gz"
	if err := archive(staging, opts.Name, res.Archive); err != nil {
		return Result{}, err
	}
	log.Info().
		Str("archive", res.Archive).
		Int("records", res.Records).
		Int("files", res.Files).
		Dur("elapsed", time.Since(start)).
		Msg("subset created")
	return res, nil
}

func rel(p string) string {
	return filepath.FromSlash(strings.TrimPrefix(p, "./"))
}

func copyMedia(ctx context.Context, src, dst string, files map[string]struct{}, workers int) error {
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for name := range files {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return copyFile(filepath.Join(src, name), filepath.Join(dst, name))
		})
	}
	return p.Wait()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// archive writes dir as a gzipped tarball whose entries live under prefix.
func archive(dir, prefix, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		r, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, r))
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if walkErr != nil {
		return fmt.Errorf("archive %s: %w", dir, walkErr)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
