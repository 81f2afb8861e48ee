package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/newsgen/newsgen-data/newsgen"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Quantizer QuantizerConfig `mapstructure:"quantizer"`
	Transform TransformConfig `mapstructure:"transform"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Subset    SubsetConfig    `mapstructure:"subset"`
	Log       LogConfig       `mapstructure:"log"`
}

// TokenizerConfig selects the pretrained text tokenizer.
type TokenizerConfig struct {
	// Path to a HuggingFace tokenizer.json, or to a vocab .txt for the fallback tokenizer.
	Path      string `mapstructure:"path"`
	MaxLength int    `mapstructure:"maxLength"`
	PadID     int64  `mapstructure:"padId"`
}

// QuantizerConfig selects the frozen image quantization model and its placement.
type QuantizerConfig struct {
	Backend       string  `mapstructure:"backend"`
	Checkpoint    string  `mapstructure:"checkpoint"`
	DecoderPath   string  `mapstructure:"decoderPath"`
	Device        string  `mapstructure:"device"`
	DeviceID      int     `mapstructure:"deviceId"`
	SharedLibrary string  `mapstructure:"sharedLibrary"`
	CodeLength    int     `mapstructure:"codeLength"`
	Reserved      []int64 `mapstructure:"reserved"`
}

// TransformConfig controls image preprocessing.
type TransformConfig struct {
	Size            int  `mapstructure:"size"`
	ExifOrientation bool `mapstructure:"exifOrientation"`
}

// DriverConfig controls the dataset encoding pass.
type DriverConfig struct {
	Dataset        string   `mapstructure:"dataset"`
	BatchSize      int      `mapstructure:"batchSize"`
	AttentionMasks bool     `mapstructure:"attentionMasks"`
	Files          []string `mapstructure:"files"`
}

// SubsetConfig controls the dataset subsetting utility.
type SubsetConfig struct {
	Source  string   `mapstructure:"source"`
	Root    string   `mapstructure:"root"`
	Name    string   `mapstructure:"name"`
	Size    int      `mapstructure:"size"`
	Seed    uint64   `mapstructure:"seed"`
	Workers int      `mapstructure:"workers"`
	Exclude []string `mapstructure:"exclude"`
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers the default value of every known key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("tokenizer.path", internal.DefaultTokenizerPath)
	v.SetDefault("tokenizer.maxLength", 1024)
	// BART <pad>
	v.SetDefault("tokenizer.padId", 1)

	v.SetDefault("quantizer.backend", "onnx")
	v.SetDefault("quantizer.checkpoint", internal.DefaultCheckpointPath)
	v.SetDefault("quantizer.decoderPath", "")
	v.SetDefault("quantizer.device", "auto")
	v.SetDefault("quantizer.deviceId", 0)
	v.SetDefault("quantizer.sharedLibrary", "")
	v.SetDefault("quantizer.codeLength", 256)
	v.SetDefault("quantizer.reserved", []int64{16384, 16385, 16386, 16387})

	v.SetDefault("transform.size", 256)
	v.SetDefault("transform.exifOrientation", false)

	v.SetDefault("driver.dataset", internal.DefaultDatasetDir)
	v.SetDefault("driver.batchSize", 4)
	v.SetDefault("driver.attentionMasks", false)
	v.SetDefault("driver.files", internal.DefaultDataFiles)

	v.SetDefault("subset.source", filepath.Join("data", "visual_news"))
	v.SetDefault("subset.root", "data")
	v.SetDefault("subset.name", internal.DefaultSubsetName)
	v.SetDefault("subset.size", internal.DefaultSubsetSize)
	v.SetDefault("subset.seed", internal.DefaultSubsetSeed)
	v.SetDefault("subset.workers", 8)
	v.SetDefault("subset.exclude", []string{})

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults, env binding and config search paths set.
// configPath, when non-empty, names the config file explicitly.
func New(configPath string) *viper.Viper {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	SetDefaults(v)

	// NEWSGEN_QUANTIZER_DEVICE overrides quantizer.device
	v.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (if any) into v and decodes it.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(configPath))
}
