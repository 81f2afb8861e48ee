package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	internal "github.com/newsgen/newsgen-data/newsgen"
	"github.com/newsgen/newsgen-data/newsgen/common"
	"github.com/newsgen/newsgen-data/newsgen/config"
	"github.com/newsgen/newsgen-data/newsgen/dataset"
	"github.com/newsgen/newsgen-data/newsgen/ports"
	"github.com/newsgen/newsgen-data/newsgen/quantizer"
	"github.com/newsgen/newsgen-data/newsgen/subset"
	"github.com/newsgen/newsgen-data/newsgen/tokenizer"
	"github.com/newsgen/newsgen-data/newsgen/transform"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"dataset":         "driver.dataset",
	"batch-size":      "driver.batchSize",
	"attention-masks": "driver.attentionMasks",
	"checkpoint":      "quantizer.checkpoint",
	"backend":         "quantizer.backend",
	"device":          "quantizer.device",
	"tokenizer":       "tokenizer.path",
	"source":          "subset.source",
	"root":            "subset.root",
	"name":            "subset.name",
	"size":            "subset.size",
	"seed":            "subset.seed",
	"workers":         "subset.workers",
	"exclude":         "subset.exclude",
}

// loadConfig reads the config named by --config and overlays any flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	v := config.New(path)
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := internal.GetLogger(cfg.Log.Level).With().
		Str("run_id", uuid.NewString()).
		Str("command", cmd.Name()).
		Logger()
	return cfg, log, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// buildQuantizer opens the configured model behind a code filter.
func buildQuantizer(cfg *config.Config) (*quantizer.Adapter, error) {
	model, err := quantizer.NewModel(cfg.Quantizer.Backend, quantizer.ONNXOptions{
		EncoderPath:   cfg.Quantizer.Checkpoint,
		DecoderPath:   cfg.Quantizer.DecoderPath,
		Device:        cfg.Quantizer.Device,
		DeviceID:      cfg.Quantizer.DeviceID,
		SharedLibrary: cfg.Quantizer.SharedLibrary,
		CodeLength:    cfg.Quantizer.CodeLength,
	}, cfg.Transform.Size)
	if err != nil {
		return nil, common.WrapError(err, "load quantizer %s", cfg.Quantizer.Backend)
	}
	return quantizer.NewAdapter(model, quantizer.NewFilter(cfg.Quantizer.Reserved), cfg.Quantizer.CodeLength), nil
}

func usesCheckpoint(backend string) bool {
	switch backend {
	case "palette", "dev":
		return false
	}
	return true
}

func EncodeHandler(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	vu := common.NewValidationUtils()
	if err := vu.ValidateRequiredString(cfg.Tokenizer.Path, "tokenizer.path"); err != nil {
		return err
	}
	if err := vu.ValidateDirectoryExists(cfg.Driver.Dataset, common.ErrDatasetNotFound); err != nil {
		return err
	}
	if usesCheckpoint(cfg.Quantizer.Backend) {
		if err := vu.ValidateFileExists(cfg.Quantizer.Checkpoint, common.ErrCheckpointNotFound); err != nil {
			return err
		}
	}

	tok, err := tokenizer.Load(cfg.Tokenizer.Path, tokenizer.Config{
		MaxLength: cfg.Tokenizer.MaxLength,
		PadID:     cfg.Tokenizer.PadID,
	})
	if err != nil {
		return common.WrapError(err, "load tokenizer %s", cfg.Tokenizer.Path)
	}

	q, err := buildQuantizer(cfg)
	if err != nil {
		return err
	}
	defer q.Close()
	log.Info().
		Str("device", q.Device()).
		Str("backend", cfg.Quantizer.Backend).
		Int("code_length", q.CodeLength()).
		Ints64("reserved", q.Filter().Forbidden()).
		Int("max_length", tok.MaxLength()).
		Msg("models ready")

	driver, err := dataset.NewDriver(tok, q, transform.New(cfg.Transform.Size, cfg.Transform.ExifOrientation), dataset.Options{
		BatchSize:      cfg.Driver.BatchSize,
		AttentionMasks: cfg.Driver.AttentionMasks,
	}, ports.NewLogReporter(log), log)
	if err != nil {
		return err
	}

	written, err := driver.EncodeDir(cmd.Context(), cfg.Driver.Dataset, cfg.Driver.Files)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func SubsetHandler(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := common.NewValidationUtils().ValidateDirectoryExists(cfg.Subset.Source, common.ErrDatasetNotFound); err != nil {
		return err
	}

	res, err := subset.Create(cmd.Context(), subset.Options{
		Source:  cfg.Subset.Source,
		Files:   cfg.Driver.Files,
		Root:    cfg.Subset.Root,
		Name:    cfg.Subset.Name,
		Size:    cfg.Subset.Size,
		Seed:    cfg.Subset.Seed,
		Workers: cfg.Subset.Workers,
		Exclude: cfg.Subset.Exclude,
	}, log)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Archive)
	return nil
}

func ReconstructHandler(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	limit, _ := cmd.Flags().GetInt("limit")

	ds, err := dataset.LoadFile(args[0])
	if err != nil {
		return err
	}
	q, err := buildQuantizer(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	n, err := reconstruct(cmd.Context(), q, transform.New(cfg.Transform.Size, false), ds, out, limit)
	log.Info().Int("images", n).Str("out", out).Msg("reconstructed images")
	return err
}

// reconstruct decodes up to limit records' image tokens (all when limit <= 0)
// into <out>/<split>_<index>.png.
func reconstruct(ctx context.Context, q *quantizer.Adapter, tr *transform.Transform, ds dataset.Dataset, out string, limit int) (int, error) {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return 0, err
	}
	written := 0
	for _, split := range ds.Splits() {
		for i, rec := range ds[split] {
			if limit > 0 && written >= limit {
				return written, nil
			}
			if rec.ImageTokens == nil {
				continue
			}
			imgs, err := q.DecodeImagesCode(ctx, [][]int64{rec.ImageTokens})
			if err != nil {
				return written, fmt.Errorf("split %s record %d: %w", split, i, err)
			}
			if err := writePNG(filepath.Join(out, fmt.Sprintf("%s_%d.png", split, i)), tr, imgs[0]); err != nil {
				return written, err
			}
			written++
		}
	}
	if written == 0 {
		return 0, errors.New("no records with image_tokens")
	}
	return written, nil
}

func writePNG(path string, tr *transform.Transform, t transform.Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, tr.ToImage(t)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   internal.DefaultAppName,
		Short: "Prepare tokenized news datasets for multimodal generation",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./config.yaml or "+internal.DefaultGlobalConfigFile+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	cobra.EnableCommandSorting = false

	quantizerFlags := func(cmd *cobra.Command) {
		cmd.Flags().String("checkpoint", "", "Path to the VQGAN encoder graph")
		cmd.Flags().String("backend", "", "Quantizer backend (onnx, palette)")
		cmd.Flags().String("device", "", "Execution provider (auto, cpu, cuda, tensorrt, coreml, dml)")
	}

	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Add caption, headline and image tokens to every record",
		Args:  cobra.NoArgs,
		RunE:  EncodeHandler,
	}
	encodeCmd.Flags().String("dataset", "", "Dataset directory (default "+internal.DefaultDatasetDir+")")
	encodeCmd.Flags().String("tokenizer", "", "tokenizer.json, vocab file or directory holding one")
	encodeCmd.Flags().Int("batch-size", 0, "Records per batch")
	encodeCmd.Flags().Bool("attention-masks", false, "Also write caption_attention and headline_attention")
	quantizerFlags(encodeCmd)

	subsetCmd := &cobra.Command{
		Use:   "subset",
		Short: "Sample a reproducible subset of a dataset into a tar.gz",
		Args:  cobra.NoArgs,
		RunE:  SubsetHandler,
	}
	subsetCmd.Flags().String("source", "", "Full dataset directory")
	subsetCmd.Flags().String("root", "", "Directory to write the archive to")
	subsetCmd.Flags().String("name", "", "Subset name")
	subsetCmd.Flags().Int("size", 0, "Records per split")
	subsetCmd.Flags().Uint64("seed", 0, "Random seed")
	subsetCmd.Flags().Int("workers", 0, "Concurrent file copies")
	subsetCmd.Flags().StringSlice("exclude", nil, "gitignore-style patterns of image paths to skip")

	reconstructCmd := &cobra.Command{
		Use:   "reconstruct ENCODED_FILE",
		Short: "Decode image tokens of an encoded file back to PNG images",
		Args:  cobra.ExactArgs(1),
		RunE:  ReconstructHandler,
	}
	reconstructCmd.Flags().StringP("out", "o", "reconstructed", "Output directory")
	reconstructCmd.Flags().Int("limit", 16, "Maximum number of images (0 for all)")
	quantizerFlags(reconstructCmd)

	rootCmd.AddCommand(encodeCmd, subsetCmd, reconstructCmd)
	return rootCmd
}
