// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Pipeline != NewPipeline() {
		t.Errorf("expected default pipeline, got %+v", cfg.Pipeline)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error for missing file, got %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
pipeline:
  hop_length: 256
classifier:
  model_path: /models/forest.json
  format: forest
server:
  request_timeout: 5s
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Pipeline.HopLength != 256 {
		t.Errorf("HopLength = %d, want 256", cfg.Pipeline.HopLength)
	}
	if cfg.Pipeline.NFFT != DefaultNFFT || cfg.Pipeline.SampleRate != DefaultSampleRate {
		t.Errorf("unset pipeline fields lost their defaults: %+v", cfg.Pipeline)
	}
	if cfg.Classifier.Format != "forest" || cfg.Classifier.ModelPath != "/models/forest.json" {
		t.Errorf("classifier = %+v", cfg.Classifier)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"Sample Rate Too Low", "pipeline:\n  sample_rate: 100\n", "pipeline.sample_rate"},
		{"Hop Larger Than Window", "pipeline:\n  n_fft: 512\n  hop_length: 1024\n", "pipeline.hop_length"},
		{"Rolloff Out Of Range", "pipeline:\n  rolloff_percent: 1.5\n", "pipeline.rolloff_percent"},
		{"Too Few Mel Bands", "pipeline:\n  n_mels: 8\n", "pipeline.n_mels"},
		{"Unknown Format", "classifier:\n  format: svm\n", "classifier.format"},
		{"Unknown Log Level", "log_level: chatty\n", "log_level"},
		{"Negative Workers", "batch:\n  workers: -2\n", "batch.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.content)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "classifier:\n  model_path: from-file.json\n")
	t.Setenv("GENRE_MODEL_PATH", "from-env.json")
	t.Setenv("GENRE_WORKERS", "3")
	t.Setenv("GENRE_SAMPLE_RATE", "not-a-number")
	t.Setenv("GENRE_CACHE_DIR", "/tmp/genre-cache")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Classifier.ModelPath != "from-env.json" {
		t.Errorf("ModelPath = %q, want env override", cfg.Classifier.ModelPath)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Batch.Workers)
	}
	if cfg.Pipeline.SampleRate != DefaultSampleRate {
		t.Errorf("malformed GENRE_SAMPLE_RATE should be ignored, got %d", cfg.Pipeline.SampleRate)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Dir != "/tmp/genre-cache" {
		t.Errorf("cache = %+v, want enabled at env dir", cfg.Cache)
	}
}

func TestPipelineFingerprint(t *testing.T) {
	t.Parallel()
	a := NewPipeline()
	b := NewPipeline()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal pipelines produced different fingerprints")
	}
	b.HopLength = 256
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different hop lengths produced equal fingerprints")
	}
	c := NewPipeline()
	c.Window = "HANN"
	if a.Fingerprint() != c.Fingerprint() {
		t.Error("window name case should not change the fingerprint")
	}
}
