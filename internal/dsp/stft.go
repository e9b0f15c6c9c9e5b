// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Tiny is the smallest positive normal float64. Divisors below it are treated
// as zero.
const Tiny = 2.2250738585072014e-308

// stftWorkspace holds pre-allocated buffers for one transform direction.
type stftWorkspace struct {
	input  []float64    // Windowed frame or inverse output.
	output []complex128 // FFT coefficients.
}

// STFT is a short-time Fourier transform with a fixed window, hop and
// centering. It reuses its FFT plan and buffers, so a value must not be shared
// between goroutines.
type STFT struct {
	nfft      int
	hop       int
	center    bool
	window    []float64
	framer    Framer
	fft       *fourier.FFT
	workspace stftWorkspace
}

// NewSTFT creates a transform with nfft-point frames every hop samples.
// Centered transforms zero-pad nfft/2 samples on both ends of the signal.
func NewSTFT(nfft, hop int, win WindowFunc, center bool) (*STFT, error) {
	if nfft < 2 {
		return nil, fmt.Errorf("n_fft must be at least 2, got %d", nfft)
	}
	if hop <= 0 || hop > nfft {
		return nil, fmt.Errorf("hop length must be within [1, %d], got %d", nfft, hop)
	}
	framer, err := NewFramer(nfft, hop, center, PadConstant)
	if err != nil {
		return nil, err
	}
	return &STFT{
		nfft:   nfft,
		hop:    hop,
		center: center,
		window: Coefficients(win, nfft),
		framer: framer,
		fft:    fourier.NewFFT(nfft),
		workspace: stftWorkspace{
			input:  make([]float64, nfft),
			output: make([]complex128, nfft/2+1),
		},
	}, nil
}

// NFFT returns the frame length.
func (s *STFT) NFFT() int { return s.nfft }

// Hop returns the hop length.
func (s *STFT) Hop() int { return s.hop }

// Bins returns the number of non-negative frequency bins, nfft/2+1.
func (s *STFT) Bins() int { return s.nfft/2 + 1 }

// Frames returns the number of frames for a signal of n samples.
func (s *STFT) Frames(n int) int { return s.framer.Count(n) }

// Window returns the analysis window. The slice must not be modified.
func (s *STFT) Window() []float64 { return s.window }

// Forward returns the spectrogram of x indexed [frame][bin].
func (s *STFT) Forward(x []float64) [][]complex128 {
	out := make([][]complex128, 0, s.framer.Count(len(x)))
	for frame := range s.framer.Frames(x) {
		for i, v := range frame.Samples {
			s.workspace.input[i] = v * s.window[i]
		}
		s.fft.Coefficients(s.workspace.output, s.workspace.input)
		col := make([]complex128, len(s.workspace.output))
		copy(col, s.workspace.output)
		out = append(out, col)
	}
	return out
}

// Inverse reconstructs a signal of exactly length samples from spec by
// windowed overlap-add. The sum of squared windows is divided out wherever it
// is not negligibly small, which makes Inverse(Forward(x)) reproduce x.
func (s *STFT) Inverse(spec [][]complex128, length int) []float64 {
	if length <= 0 {
		return nil
	}
	frames := len(spec)
	expected := s.nfft + s.hop*(frames-1)
	if frames == 0 {
		expected = 0
	}
	y := make([]float64, expected)
	wss := make([]float64, expected)
	norm := 1 / float64(s.nfft)

	for t, col := range spec {
		s.fft.Sequence(s.workspace.input, col)
		off := t * s.hop
		for i, v := range s.workspace.input {
			w := s.window[i]
			y[off+i] += v * norm * w
			wss[off+i] += w * w
		}
	}
	for i, w := range wss {
		if w > Tiny {
			y[i] /= w
		}
	}

	start := 0
	if s.center {
		start = s.nfft / 2
	}
	out := make([]float64, length)
	if start < len(y) {
		copy(out, y[start:])
	}
	return out
}

// FFTFrequencies returns the centre frequency in Hz of each of the nfft/2+1
// bins.
func FFTFrequencies(sampleRate, nfft int) []float64 {
	bins := nfft/2 + 1
	freqs := make([]float64, bins)
	step := float64(sampleRate) / float64(nfft)
	for k := range freqs {
		freqs[k] = float64(k) * step
	}
	return freqs
}

// Magnitude returns |spec| with the same layout.
func Magnitude(spec [][]complex128) [][]float64 {
	out := make([][]float64, len(spec))
	for t, col := range spec {
		row := make([]float64, len(col))
		for k, c := range col {
			row[k] = math.Hypot(real(c), imag(c))
		}
		out[t] = row
	}
	return out
}

// Power returns |spec|^2 with the same layout.
func Power(spec [][]complex128) [][]float64 {
	out := make([][]float64, len(spec))
	for t, col := range spec {
		row := make([]float64, len(col))
		for k, c := range col {
			row[k] = real(c)*real(c) + imag(c)*imag(c)
		}
		out[t] = row
	}
	return out
}
