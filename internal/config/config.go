// Package config loads soilscan settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "soilscan.yaml"

const defaultLoadTimeout = 30 * time.Second

// Config holds all soilscan configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Picker  PickerConfig  `yaml:"picker"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig locates the bundled model.
type ModelConfig struct {
	Dir            string `yaml:"dir"`
	File           string `yaml:"file,omitempty"`
	Metadata       string `yaml:"metadata,omitempty"`
	RuntimeLibrary string `yaml:"runtime_library,omitempty"`
	LoadTimeout    string `yaml:"load_timeout"`
}

// GetLoadTimeout returns how long to wait for the model bundle to load.
func (m ModelConfig) GetLoadTimeout() time.Duration {
	d, err := time.ParseDuration(m.LoadTimeout)
	if err != nil || d <= 0 {
		return defaultLoadTimeout
	}
	return d
}

// PickerConfig configures image selection.
type PickerConfig struct {
	StartDir   string   `yaml:"start_dir"`
	Extensions []string `yaml:"extensions"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file,omitempty"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Dir:         "models",
			LoadTimeout: "30s",
		},
		Picker: PickerConfig{
			StartDir:   ".",
			Extensions: []string{".jpg", ".jpeg", ".png", ".gif"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SOILSCAN_MODEL_DIR"); v != "" {
		c.Model.Dir = v
	}
	if v := os.Getenv("SOILSCAN_ORT_LIBRARY"); v != "" {
		c.Model.RuntimeLibrary = v
	} else if v := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); v != "" && c.Model.RuntimeLibrary == "" {
		c.Model.RuntimeLibrary = v
	}
	if v := os.Getenv("SOILSCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SOILSCAN_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("SOILSCAN_PICKER_DIR"); v != "" {
		c.Picker.StartDir = v
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if c.Model.Dir == "" && (c.Model.File == "" || c.Model.Metadata == "") {
		return errors.New("model.dir is required unless model.file and model.metadata are both set")
	}
	if c.Model.LoadTimeout != "" {
		if _, err := time.ParseDuration(c.Model.LoadTimeout); err != nil {
			return fmt.Errorf("model.load_timeout: %w", err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	for _, ext := range c.Picker.Extensions {
		if strings.TrimSpace(ext) == "" {
			return errors.New("picker.extensions contains an empty entry")
		}
	}
	return nil
}
