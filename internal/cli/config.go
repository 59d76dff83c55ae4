package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/carechain/pkg/provenance"
	"github.com/mesh-intelligence/carechain/pkg/types"
	"github.com/mesh-intelligence/carechain/pkg/units"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyLogLevel    = "log_level"
	cfgKeyConcurrency = "report.concurrency"

	defaultLogLevel = "warn"
)

// settings is the decoded config.yaml.
type settings struct {
	Backend  string                `mapstructure:"backend"`
	DataDir  string                `mapstructure:"data_dir"`
	LogLevel string                `mapstructure:"log_level"`
	Report   reportSettings        `mapstructure:"report"`
	Units    map[string]units.Rule `mapstructure:"units"`
}

type reportSettings struct {
	Concurrency int `mapstructure:"concurrency"`
}

// configFile is the shape written on first run.
type configFile struct {
	Backend  string       `yaml:"backend"`
	DataDir  string       `yaml:"data_dir,omitempty"`
	LogLevel string       `yaml:"log_level"`
	Report   reportConfig `yaml:"report"`
}

type reportConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// loadSettings reads config.yaml from configDir, creating the directory and
// a default file on first run.
func loadSettings(configDir string) (settings, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return settings{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := writeDefaultConfig(filepath.Join(configDir, configFileExt)); err != nil {
		return settings{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyConcurrency, provenance.DefaultConcurrency)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// writeDefaultConfig creates path with default values unless it exists.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&configFile{
		Backend:  types.BackendSQLite,
		LogLevel: defaultLogLevel,
		Report:   reportConfig{Concurrency: provenance.DefaultConcurrency},
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# carechain configuration\n# units: per event type {fields: [labels], unit} overriding the built-in table\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// newLogger builds a production zap logger writing to stderr. verbose
// forces debug level.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	lvl := zapcore.DebugLevel
	if !verbose {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", cfgKeyLogLevel, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
