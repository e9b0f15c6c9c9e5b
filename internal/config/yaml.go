// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	applog "genre/internal/log"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel   string           `yaml:"log_level"`  // Logging level (e.g., "debug", "info", "warn", "error").
	Pipeline   Pipeline         `yaml:"pipeline"`   // Feature extraction parameters.
	Classifier ClassifierConfig `yaml:"classifier"` // Model and label artifacts.
	History    HistoryConfig    `yaml:"history"`    // Prediction history log.
	Cache      CacheConfig      `yaml:"cache"`      // Feature vector cache.
	Batch      BatchConfig      `yaml:"batch"`      // Batch classification settings.
	Server     ServerConfig     `yaml:"server"`     // HTTP service settings.
	Capture    CaptureConfig    `yaml:"capture"`    // Live input capture settings.
}

// ClassifierConfig locates the trained model and its label encoder.
type ClassifierConfig struct {
	ModelPath  string `yaml:"model_path"`  // Path to the serialized model.
	LabelsPath string `yaml:"labels_path"` // Path to the label list (YAML, JSON or text).
	Format     string `yaml:"format"`      // Model format: "auto", "xgboost" or "forest".
}

// HistoryConfig holds settings for the append-only prediction log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"` // Append every single-file prediction.
	Path    string `yaml:"path"`    // CSV file location.
}

// CacheConfig holds settings for the content-addressed feature cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"` // Reuse vectors for identical file contents.
	Dir     string `yaml:"dir"`     // Badger data directory.
}

// BatchConfig holds settings for parallel classification.
type BatchConfig struct {
	Workers int `yaml:"workers"` // Concurrent extractions (0 = one per CPU).
}

// ServerConfig holds settings for the HTTP classification service.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`            // Listen address (e.g., ":8080").
	RequestTimeout time.Duration `yaml:"request_timeout"` // Upper bound for one extract+classify call.
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`  // Largest accepted upload.
}

// CaptureConfig holds settings for classifying live input.
type CaptureConfig struct {
	Device   int           `yaml:"device"`   // PortAudio device index (-1 for default).
	Duration time.Duration `yaml:"duration"` // Length of the captured clip.
	Channels int           `yaml:"channels"` // Channels to capture before downmixing.
}

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pipeline: NewPipeline(),
		Classifier: ClassifierConfig{
			ModelPath:  "models/xgb_model.json",
			LabelsPath: "models/xgb_labels.yaml",
			Format:     "auto",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "history.csv",
		},
		Cache: CacheConfig{
			Enabled: false,
			Dir:     ".genre-cache",
		},
		Batch: BatchConfig{
			Workers: 0,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
			MaxBodyBytes:   64 << 20,
		},
		Capture: CaptureConfig{
			Device:   -1, // -1 for default device.
			Duration: 10 * time.Second,
			Channels: 1,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("genre.yaml", "config.yaml"). If no file is found, it
// uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"genre.yaml",
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the pipeline and the service sections.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not a known level", c.LogLevel)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	switch c.Classifier.Format {
	case "", "auto", "xgboost", "forest":
	default:
		return fmt.Errorf("classifier.format %q must be one of auto, xgboost, forest", c.Classifier.Format)
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must not be negative, got %d", c.Batch.Workers)
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Capture.Channels <= 0 {
		return fmt.Errorf("capture.channels must be positive, got %d", c.Capture.Channels)
	}
	if c.Capture.Duration <= 0 {
		return fmt.Errorf("capture.duration must be positive")
	}
	return nil
}

// applyEnvOverrides overlays GENRE_* environment variables on the loaded values.
// Malformed numeric values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// GENRE_LOG_LEVEL
	if val, ok := os.LookupEnv("GENRE_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("configuration: Overriding log_level from env: %s", val)
	}

	// GENRE_{MODEL,LABELS}_PATH
	// These are specific to the classifier artifacts.
	if val, ok := os.LookupEnv("GENRE_MODEL_PATH"); ok {
		c.Classifier.ModelPath = val
		applog.Debugf("configuration: Overriding classifier.model_path from env: %s", val)
	}
	if val, ok := os.LookupEnv("GENRE_LABELS_PATH"); ok {
		c.Classifier.LabelsPath = val
		applog.Debugf("configuration: Overriding classifier.labels_path from env: %s", val)
	}

	// GENRE_SAMPLE_RATE
	if val, ok := os.LookupEnv("GENRE_SAMPLE_RATE"); ok {
		if sr, err := strconv.Atoi(val); err == nil {
			c.Pipeline.SampleRate = sr
			applog.Debugf("configuration: Overriding pipeline.sample_rate from env: %d", sr)
		} else {
			applog.Warnf("configuration: Ignoring GENRE_SAMPLE_RATE=%q: %v", val, err)
		}
	}

	// GENRE_HISTORY_PATH
	if val, ok := os.LookupEnv("GENRE_HISTORY_PATH"); ok {
		c.History.Path = val
		applog.Debugf("configuration: Overriding history.path from env: %s", val)
	}

	// GENRE_CACHE_DIR
	if val, ok := os.LookupEnv("GENRE_CACHE_DIR"); ok {
		c.Cache.Dir = val
		c.Cache.Enabled = val != ""
		applog.Debugf("configuration: Overriding cache.dir from env: %s", val)
	}

	// GENRE_WORKERS
	if val, ok := os.LookupEnv("GENRE_WORKERS"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Batch.Workers = n
			applog.Debugf("configuration: Overriding batch.workers from env: %d", n)
		} else {
			applog.Warnf("configuration: Ignoring GENRE_WORKERS=%q: %v", val, err)
		}
	}

	// GENRE_SERVER_ADDR
	if val, ok := os.LookupEnv("GENRE_SERVER_ADDR"); ok {
		c.Server.Addr = val
		applog.Debugf("configuration: Overriding server.addr from env: %s", val)
	}
}
