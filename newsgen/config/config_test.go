package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/newsgen/newsgen-data/newsgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), 1024, cfg.Tokenizer.MaxLength)
	assert.Equal(suite.T(), int64(1), cfg.Tokenizer.PadID)
	assert.Equal(suite.T(), internal.DefaultTokenizerPath, cfg.Tokenizer.Path)
	assert.Equal(suite.T(), "onnx", cfg.Quantizer.Backend)
	assert.Equal(suite.T(), "auto", cfg.Quantizer.Device)
	assert.Equal(suite.T(), 256, cfg.Quantizer.CodeLength)
	assert.Equal(suite.T(), []int64{16384, 16385, 16386, 16387}, cfg.Quantizer.Reserved)
	assert.Equal(suite.T(), 256, cfg.Transform.Size)
	assert.False(suite.T(), cfg.Transform.ExifOrientation)
	assert.Equal(suite.T(), 4, cfg.Driver.BatchSize)
	assert.False(suite.T(), cfg.Driver.AttentionMasks)
	assert.Equal(suite.T(), []string{"headlines.json", "captions.json"}, cfg.Driver.Files)
	assert.Equal(suite.T(), uint64(123), cfg.Subset.Seed)
	assert.Equal(suite.T(), "info", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
tokenizer:
  path: "./tok/tokenizer.json"
  maxLength: 64
quantizer:
  backend: palette
  device: cpu
  reserved: [10, 11]
driver:
  batchSize: 8
  attentionMasks: true
log:
  level: debug
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "./tok/tokenizer.json", cfg.Tokenizer.Path)
	assert.Equal(suite.T(), 64, cfg.Tokenizer.MaxLength)
	assert.Equal(suite.T(), "palette", cfg.Quantizer.Backend)
	assert.Equal(suite.T(), "cpu", cfg.Quantizer.Device)
	assert.Equal(suite.T(), []int64{10, 11}, cfg.Quantizer.Reserved)
	assert.Equal(suite.T(), 8, cfg.Driver.BatchSize)
	assert.True(suite.T(), cfg.Driver.AttentionMasks)
	assert.Equal(suite.T(), "debug", cfg.Log.Level)

	// untouched keys keep their defaults
	assert.Equal(suite.T(), 256, cfg.Quantizer.CodeLength)
}

func (suite *ConfigTestSuite) TestLoadConfigDiscoversWorkingDirectory() {
	configContent := `
driver:
  batchSize: 2
`
	require.NoError(suite.T(), os.WriteFile(filepath.Join(suite.tempDir, "config.yaml"), []byte(configContent), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, cfg.Driver.BatchSize)
}

func (suite *ConfigTestSuite) TestEnvironmentOverride() {
	suite.T().Setenv("NEWSGEN_QUANTIZER_DEVICE", "cuda")
	suite.T().Setenv("NEWSGEN_DRIVER_BATCHSIZE", "16")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "cuda", cfg.Quantizer.Device)
	assert.Equal(suite.T(), 16, cfg.Driver.BatchSize)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidYAML() {
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte("driver: [unclosed"), 0o644))

	_, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestLoadConfigMissingExplicitFile() {
	_, err := LoadConfig(filepath.Join(suite.tempDir, "missing.yaml"))
	assert.Error(suite.T(), err)
}
