// SPDX-License-Identifier: MIT
package features

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"genre/internal/analysis"
	"genre/internal/audio"
	"genre/internal/config"
	applog "genre/internal/log"
)

var logger = applog.For("Extractor")

// Cache stores vectors by content key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (Vector, bool, error)
	Put(key string, v Vector) error
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache makes file and byte extraction consult c before running the
// pipeline.
func WithCache(c Cache) Option {
	return func(e *Extractor) { e.cache = c }
}

// Extractor runs the full pipeline from waveform to Vector. It holds no
// per-request state and may be shared across goroutines.
type Extractor struct {
	cfg   config.Pipeline
	proc  *analysis.Processor
	cache Cache
}

// NewExtractor validates cfg and prepares the analysis stages.
func NewExtractor(cfg config.Pipeline, opts ...Option) (*Extractor, error) {
	proc, err := analysis.NewProcessor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}
	e := &Extractor{cfg: cfg, proc: proc}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the pipeline configuration.
func (e *Extractor) Config() config.Pipeline { return e.cfg }

// Extract computes the feature vector of w. A waveform at another rate is
// resampled to the pipeline rate first. w is not modified.
func (e *Extractor) Extract(w audio.Waveform) (Vector, error) {
	var zero Vector
	if len(w.Samples) == 0 {
		return zero, &DegenerateInputError{SampleRate: w.SampleRate, Want: e.cfg.SampleRate, Err: ErrEmptyWaveform}
	}
	if w.SampleRate <= 0 {
		return zero, &DegenerateInputError{
			Samples:    len(w.Samples),
			SampleRate: w.SampleRate,
			Want:       e.cfg.SampleRate,
			Err:        ErrSampleRate,
		}
	}
	if w.SampleRate != e.cfg.SampleRate {
		samples, err := audio.Resample(w.Samples, w.SampleRate, e.cfg.SampleRate)
		if err != nil {
			return zero, fmt.Errorf("resampling failed: %w", err)
		}
		logger.Debugf("Resampled %d samples from %d Hz to %d Hz", len(w.Samples), w.SampleRate, e.cfg.SampleRate)
		w = audio.Waveform{Samples: samples, SampleRate: e.cfg.SampleRate}
	}

	start := time.Now()
	series, err := e.proc.Process(w.Float64())
	if err != nil {
		return zero, fmt.Errorf("analysis failed: %w", err)
	}
	v := Aggregate(series)
	logger.Debugf("Extracted %d features from %.2fs of audio in %v",
		Count, w.Duration().Seconds(), time.Since(start))
	return v, nil
}

// ExtractFile decodes the file at path and extracts its features.
func (e *Extractor) ExtractFile(path string) (Vector, error) {
	data, err := audio.ReadFile(path)
	if err != nil {
		return Vector{}, err
	}
	v, err := e.ExtractBytes(data, audio.FormatFromPath(path))
	var de *audio.DecodeError
	if errors.As(err, &de) && de.Path == "" {
		de.Path = path
	}
	return v, err
}

// ExtractBytes decodes an in-memory file and extracts its features. An empty
// format is detected from the content.
func (e *Extractor) ExtractBytes(data []byte, format audio.Format) (Vector, error) {
	var key string
	if e.cache != nil {
		key = CacheKey(data, e.cfg)
		v, ok, err := e.cache.Get(key)
		if err != nil {
			logger.Warnf("Cache lookup failed: %v", err)
		} else if ok {
			logger.Debugf("Cache hit %s", key[:12])
			return v, nil
		}
	}

	w, err := audio.DecodeBytes(data, format, e.cfg.SampleRate)
	if err != nil {
		return Vector{}, err
	}
	v, err := e.Extract(w)
	if err != nil {
		return Vector{}, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, v); err != nil {
			logger.Warnf("Cache store failed: %v", err)
		}
	}
	return v, nil
}

// ExtractWithLength is ExtractFile that also reports the decoded length in
// samples, the second column of the training layout.
func (e *Extractor) ExtractWithLength(path string) (Vector, int, error) {
	data, err := audio.ReadFile(path)
	if err != nil {
		return Vector{}, 0, err
	}
	w, err := audio.DecodeBytes(data, audio.FormatFromPath(path), e.cfg.SampleRate)
	if err != nil {
		var de *audio.DecodeError
		if errors.As(err, &de) && de.Path == "" {
			de.Path = path
		}
		return Vector{}, 0, err
	}
	v, err := e.Extract(w)
	return v, len(w.Samples), err
}

// CacheKey identifies the features of data under cfg: the SHA-256 of the
// content joined with the pipeline fingerprint.
func CacheKey(data []byte, cfg config.Pipeline) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(cfg.Fingerprint()))
	return hex.EncodeToString(h.Sum(nil))
}
