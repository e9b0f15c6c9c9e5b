// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"genre/internal/dsp"
	"genre/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// TempoEstimator picks the global tempo from the autocorrelation tempogram of
// the onset strength envelope, weighted by a log-normal prior over BPM.
type TempoEstimator struct {
	StartBPM float64 // Prior centre.
	StdBPM   float64 // Prior width in octaves.
	ACSize   float64 // Autocorrelation window in seconds.
	MaxBPM   float64 // Lags faster than this are never chosen.
}

// ProcessSpectrum fills Tempo.
func (e *TempoEstimator) ProcessSpectrum(spec *Spectrogram, out *Series) error {
	env := OnsetStrength(spec.MelDB(), spec.STFT.NFFT(), spec.STFT.Hop())
	out.Tempo = e.Estimate(env, spec.SampleRate, spec.STFT.Hop())
	logger.Debugf("Tempo estimate %.2f BPM from %d onset frames", out.Tempo, len(env))
	return nil
}

// OnsetStrength returns the spectral flux envelope of a dB mel spectrogram
// ([frame][band]): the median over bands of the positive first difference.
// The envelope is delayed to line up with centered frames and has one value
// per frame.
func OnsetStrength(melDB [][]float64, nfft, hop int) []float64 {
	frames := len(melDB)
	env := make([]float64, frames)
	if frames < 2 {
		return env
	}
	lag := 1
	pad := lag + nfft/(2*hop)

	bands := len(melDB[0])
	diff := make([]float64, bands)
	for t := lag; t < frames; t++ {
		dst := t - lag + pad
		if dst >= frames {
			break
		}
		for b := range bands {
			diff[b] = math.Max(0, melDB[t][b]-melDB[t-lag][b])
		}
		env[dst] = median(diff)
	}
	return env
}

// Estimate returns the tempo in BPM for an onset envelope sampled every hop
// samples. An envelope with no onsets yields 0.
func (e *TempoEstimator) Estimate(env []float64, sampleRate, hop int) float64 {
	hasOnset := false
	for _, v := range env {
		if v != 0 {
			hasOnset = true
			break
		}
	}
	if !hasOnset {
		return 0
	}

	winLength := int(math.Floor(e.ACSize * float64(sampleRate) / float64(hop)))
	if winLength < 2 {
		return 0
	}
	tg := MeanTempogram(env, winLength)

	bpms := TempoFrequencies(winLength, sampleRate, hop)
	maxIdx := 0
	for i, b := range bpms {
		if b < e.MaxBPM {
			maxIdx = i
			break
		}
	}

	best, bestScore := 0, math.Inf(-1)
	for i, b := range bpms {
		if i < maxIdx || math.IsInf(b, 1) {
			continue
		}
		prior := (math.Log2(b) - math.Log2(e.StartBPM)) / e.StdBPM
		score := math.Log1p(1e6*tg[i]) - 0.5*prior*prior
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return bpms[best]
}

// TempoFrequencies returns the BPM of each autocorrelation lag; lag 0 is
// +Inf.
func TempoFrequencies(n, sampleRate, hop int) []float64 {
	out := make([]float64, n)
	out[0] = math.Inf(1)
	for k := 1; k < n; k++ {
		out[k] = 60 * float64(sampleRate) / (float64(hop) * float64(k))
	}
	return out
}

// MeanTempogram computes the local autocorrelation of env in a centered Hann
// window of winLength frames at every frame, normalises each by its lag-0
// value and averages over time. The envelope is extended by linear ramps
// to zero so edge windows do not see a step.
func MeanTempogram(env []float64, winLength int) []float64 {
	n := len(env)
	half := winLength / 2
	padded := make([]float64, n+2*half)
	x0, xl := env[0], env[n-1]
	for i := range half {
		padded[i] = x0 * float64(i) / float64(half)
		padded[n+half+i] = xl * float64(half-1-i) / float64(half)
	}
	copy(padded[half:], env)

	win := dsp.Coefficients(dsp.Hann, winLength)
	size := bitint.CorrelationSize(winLength)
	fft := fourier.NewFFT(size)
	frame := make([]float64, size)
	coeffs := make([]complex128, size/2+1)
	ac := make([]float64, size)
	mean := make([]float64, winLength)

	for t := range n {
		clear(frame)
		for i := range winLength {
			frame[i] = padded[t+i] * win[i]
		}
		fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			coeffs[k] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
		}
		fft.Sequence(ac, coeffs)

		peak := 0.0
		for lag := range winLength {
			peak = math.Max(peak, math.Abs(ac[lag]))
		}
		if peak < dsp.Tiny {
			continue
		}
		for lag := range winLength {
			mean[lag] += ac[lag] / peak
		}
	}
	for lag := range mean {
		mean[lag] /= float64(n)
	}
	return mean
}
