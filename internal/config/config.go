// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"strings"
)

// Analysis defaults. The trained classifiers were fitted on features computed
// with exactly these values, so changing them invalidates existing models.
const (
	DefaultSampleRate     = 22050  // Hz, rate of the training corpus
	DefaultNFFT           = 2048   // STFT window length in samples
	DefaultHopLength      = 512    // STFT hop in samples
	DefaultWindow         = "hann" // Analysis window
	DefaultCenter         = true   // Centre frames on their sample index
	DefaultRolloffPercent = 0.85   // Energy fraction for spectral rolloff
	DefaultNMels          = 128    // Mel bands for MFCC and onset strength
	DefaultHPSSKernel     = 31     // Median filter length for HPSS
	DefaultHPSSMargin     = 1.0    // Soft mask margin for HPSS
	DefaultTempoStartBPM  = 120.0  // Centre of the tempo prior
	DefaultTempoStdBPM    = 1.0    // Prior width in octaves
	DefaultTempoACSize    = 8.0    // Autocorrelation window in seconds
	DefaultTempoMaxBPM    = 320.0  // Upper tempo bound

	// Hardware and processing limits
	MinSampleRate = 8000    // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000  // Maximum supported sample rate (Hz)
	MaxNFFT       = 1 << 16 // Largest STFT window accepted
	MinNMels      = 20      // At least one band per cepstral coefficient
)

// Pipeline holds every parameter of the feature extraction pipeline. It is
// passed explicitly to the extractor so several configurations may coexist in
// one process.
type Pipeline struct {
	SampleRate     int     `yaml:"sample_rate"`     // Analysis rate; input is resampled to it.
	NFFT           int     `yaml:"n_fft"`           // STFT window length.
	HopLength      int     `yaml:"hop_length"`      // STFT hop.
	Window         string  `yaml:"window"`          // Window function name (see dsp.ParseWindowFunc).
	Center         bool    `yaml:"center"`          // Pad the signal so frame t is centred at t*hop.
	RolloffPercent float64 `yaml:"rolloff_percent"` // Fraction of energy below the rolloff frequency.
	NMels          int     `yaml:"n_mels"`          // Mel filter bank size.
	HPSSKernel     int     `yaml:"hpss_kernel"`     // Median filter length in frames/bins.
	HPSSMargin     float64 `yaml:"hpss_margin"`     // Soft mask margin.
	TempoStartBPM  float64 `yaml:"tempo_start_bpm"` // Tempo prior centre.
	TempoStdBPM    float64 `yaml:"tempo_std_bpm"`   // Tempo prior width in octaves.
	TempoACSize    float64 `yaml:"tempo_ac_size"`   // Tempogram window in seconds.
	TempoMaxBPM    float64 `yaml:"tempo_max_bpm"`   // Tempo upper bound.
}

// NewPipeline returns the default pipeline configuration.
func NewPipeline() Pipeline {
	return Pipeline{
		SampleRate:     DefaultSampleRate,
		NFFT:           DefaultNFFT,
		HopLength:      DefaultHopLength,
		Window:         DefaultWindow,
		Center:         DefaultCenter,
		RolloffPercent: DefaultRolloffPercent,
		NMels:          DefaultNMels,
		HPSSKernel:     DefaultHPSSKernel,
		HPSSMargin:     DefaultHPSSMargin,
		TempoStartBPM:  DefaultTempoStartBPM,
		TempoStdBPM:    DefaultTempoStdBPM,
		TempoACSize:    DefaultTempoACSize,
		TempoMaxBPM:    DefaultTempoMaxBPM,
	}
}

// Validate reports the first parameter outside its usable range.
func (p Pipeline) Validate() error {
	if p.SampleRate < MinSampleRate || p.SampleRate > MaxSampleRate {
		return fmt.Errorf("pipeline.sample_rate must be within [%d, %d], got %d", MinSampleRate, MaxSampleRate, p.SampleRate)
	}
	if p.NFFT < 2 || p.NFFT > MaxNFFT {
		return fmt.Errorf("pipeline.n_fft must be within [2, %d], got %d", MaxNFFT, p.NFFT)
	}
	if p.HopLength <= 0 || p.HopLength > p.NFFT {
		return fmt.Errorf("pipeline.hop_length must be within [1, n_fft], got %d", p.HopLength)
	}
	if strings.TrimSpace(p.Window) == "" {
		return fmt.Errorf("pipeline.window must be set")
	}
	if p.RolloffPercent <= 0 || p.RolloffPercent >= 1 {
		return fmt.Errorf("pipeline.rolloff_percent must be within (0, 1), got %g", p.RolloffPercent)
	}
	if p.NMels < MinNMels {
		return fmt.Errorf("pipeline.n_mels must be at least %d, got %d", MinNMels, p.NMels)
	}
	if p.HPSSKernel <= 0 {
		return fmt.Errorf("pipeline.hpss_kernel must be positive, got %d", p.HPSSKernel)
	}
	if p.HPSSMargin < 1 {
		return fmt.Errorf("pipeline.hpss_margin must be >= 1, got %g", p.HPSSMargin)
	}
	if p.TempoStartBPM <= 0 || p.TempoStdBPM <= 0 || p.TempoACSize <= 0 || p.TempoMaxBPM <= 0 {
		return fmt.Errorf("pipeline tempo parameters must be positive")
	}
	return nil
}

// Fingerprint is a stable textual digest of the parameters, used to key cached
// feature vectors. Two configurations with equal fingerprints produce equal
// features for the same input.
func (p Pipeline) Fingerprint() string {
	return fmt.Sprintf("sr=%d;nfft=%d;hop=%d;win=%s;center=%t;roll=%g;mels=%d;hpss=%d/%g;tempo=%g/%g/%g/%g",
		p.SampleRate, p.NFFT, p.HopLength, strings.ToLower(p.Window), p.Center, p.RolloffPercent,
		p.NMels, p.HPSSKernel, p.HPSSMargin,
		p.TempoStartBPM, p.TempoStdBPM, p.TempoACSize, p.TempoMaxBPM)
}
