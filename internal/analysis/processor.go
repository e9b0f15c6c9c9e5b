// SPDX-License-Identifier: MIT
//
// Package analysis turns a mono waveform into per-frame feature series. A
// Processor computes one STFT per waveform and hands it, together with the
// raw samples, to a fixed set of stages.
package analysis

import (
	"fmt"

	"genre/internal/config"
	"genre/internal/dsp"
	applog "genre/internal/log"
)

var logger = applog.For("Analysis")

// SignalStage derives series directly from time-domain samples.
type SignalStage interface {
	ProcessSignal(x []float64, out *Series) error
}

// SpectrumStage derives series from the shared spectrogram.
type SpectrumStage interface {
	ProcessSpectrum(spec *Spectrogram, out *Series) error
}

// Series holds every per-frame feature series for one waveform. Matrix series
// are indexed [frame][coefficient].
type Series struct {
	Chroma     [][]float64 // 12 pitch classes per frame.
	RMS        []float64
	Centroid   []float64
	Bandwidth  []float64
	Rolloff    []float64
	ZCR        []float64
	Harmonic   []float64 // Sample-level harmonic component.
	Percussive []float64 // Sample-level percussive component.
	Tempo      float64   // Global tempo estimate in BPM.
	MFCC       [][]float64
}

// Spectrogram is the STFT of one waveform plus the derived quantities that
// several stages share. It is request-scoped and not safe for concurrent use.
type Spectrogram struct {
	SampleRate int
	Length     int // Samples in the analysed signal.
	STFT       *dsp.STFT
	Complex    [][]complex128 // [frame][bin]
	Magnitude  [][]float64
	Power      [][]float64
	Freqs      []float64

	nMels int
	melDB [][]float64
}

// NewSpectrogram transforms x with s.
func NewSpectrogram(x []float64, sampleRate, nMels int, s *dsp.STFT) *Spectrogram {
	spec := s.Forward(x)
	return &Spectrogram{
		SampleRate: sampleRate,
		Length:     len(x),
		STFT:       s,
		Complex:    spec,
		Magnitude:  dsp.Magnitude(spec),
		Power:      dsp.Power(spec),
		Freqs:      dsp.FFTFrequencies(sampleRate, s.NFFT()),
		nMels:      nMels,
	}
}

// Frames returns the number of STFT frames.
func (s *Spectrogram) Frames() int { return len(s.Complex) }

// MelDB returns the dB-scaled mel power spectrogram, [frame][band], computed
// on first use.
func (s *Spectrogram) MelDB() [][]float64 {
	if s.melDB == nil {
		bank := dsp.MelFilterBank(s.SampleRate, s.STFT.NFFT(), s.nMels, 0, float64(s.SampleRate)/2)
		s.melDB = PowerToDB(dsp.ApplyBank(bank, s.Power), 1.0, 1e-10, 80)
	}
	return s.melDB
}

// Processor runs every analysis stage over a waveform.
type Processor struct {
	cfg      config.Pipeline
	window   dsp.WindowFunc
	signal   []SignalStage
	spectrum []SpectrumStage
}

// Compile-time checks for interface implementations.
var _ SignalStage = (*TimeDomainAnalyzer)(nil)
var _ SpectrumStage = (*SpectralAnalyzer)(nil)
var _ SpectrumStage = (*HPSS)(nil)
var _ SpectrumStage = (*TempoEstimator)(nil)
var _ SpectrumStage = (*CepstralAnalyzer)(nil)

// NewProcessor validates cfg and builds the standard stage set.
func NewProcessor(cfg config.Pipeline) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	win, err := dsp.ParseWindowFunc(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("pipeline.window: %w", err)
	}

	td, err := NewTimeDomainAnalyzer(cfg.NFFT, cfg.HopLength, cfg.Center)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Initializing Processor (SampleRate: %d Hz, NFFT: %d, Hop: %d, Window: %v)",
		cfg.SampleRate, cfg.NFFT, cfg.HopLength, win)

	return &Processor{
		cfg:    cfg,
		window: win,
		signal: []SignalStage{td},
		spectrum: []SpectrumStage{
			&SpectralAnalyzer{RolloffPercent: cfg.RolloffPercent, NChroma: NChroma},
			&HPSS{Kernel: cfg.HPSSKernel, Margin: cfg.HPSSMargin},
			&TempoEstimator{
				StartBPM: cfg.TempoStartBPM,
				StdBPM:   cfg.TempoStdBPM,
				ACSize:   cfg.TempoACSize,
				MaxBPM:   cfg.TempoMaxBPM,
			},
			&CepstralAnalyzer{NMFCC: NMFCC},
		},
	}, nil
}

// Process computes all series for x, which must be sampled at the configured
// rate. x is not modified.
func (p *Processor) Process(x []float64) (*Series, error) {
	stft, err := dsp.NewSTFT(p.cfg.NFFT, p.cfg.HopLength, p.window, p.cfg.Center)
	if err != nil {
		return nil, err
	}

	out := &Series{}
	for _, st := range p.signal {
		if err := st.ProcessSignal(x, out); err != nil {
			return nil, err
		}
	}

	spec := NewSpectrogram(x, p.cfg.SampleRate, p.cfg.NMels, stft)
	for _, st := range p.spectrum {
		if err := st.ProcessSpectrum(spec, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
