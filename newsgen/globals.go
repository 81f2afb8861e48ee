package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for the config directory and env prefix
	DefaultAppName          = "newsgen"
	DefaultConfigPath       = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultGlobalConfigFile = filepath.Join(DefaultConfigPath, "config.yaml")

	// Dataset layout
	DefaultDatasetDir      = filepath.Join("data", "visual_news_mini")
	DefaultDataFiles       = []string{"headlines.json", "captions.json"}
	DefaultEncodedPrefix   = "encoded_"
	DefaultCheckpointPath  = filepath.Join("pretrained", "vqgan_encoder.onnx")
	DefaultTokenizerPath   = filepath.Join("pretrained", "bart-large", "tokenizer.json")
	DefaultSubsetName      = "visual_news_mini"
	DefaultSubsetSize      = 5000
	DefaultSubsetSeed      = 123
	DefaultCanonicalSplits = []string{"train", "val", "test"}
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance.
// Output is human readable on a terminal and JSON otherwise.
func GetLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
