// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"genre/internal/dsp"
)

// NChroma is the number of pitch classes per chroma frame.
const NChroma = 12

// SpectralAnalyzer computes the magnitude-spectrum shape descriptors and the
// chromagram.
type SpectralAnalyzer struct {
	RolloffPercent float64
	NChroma        int
}

// ProcessSpectrum fills Centroid, Bandwidth, Rolloff and Chroma.
func (a *SpectralAnalyzer) ProcessSpectrum(spec *Spectrogram, out *Series) error {
	out.Centroid = SpectralCentroid(spec.Magnitude, spec.Freqs)
	out.Bandwidth = SpectralBandwidth(spec.Magnitude, spec.Freqs, out.Centroid)
	out.Rolloff = SpectralRolloff(spec.Magnitude, spec.Freqs, a.RolloffPercent)

	tuning := EstimateTuning(spec.Power, spec.Freqs, spec.SampleRate, spec.STFT.NFFT())
	bank := dsp.ChromaFilterBank(spec.SampleRate, spec.STFT.NFFT(), a.NChroma, tuning)
	out.Chroma = Chroma(dsp.ApplyBank(bank, spec.Power))
	logger.Debugf("Chroma tuning estimate %.2f bins over %d frames", tuning, spec.Frames())
	return nil
}

func sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

// SpectralCentroid returns the magnitude-weighted mean frequency of every
// frame. Silent frames yield 0.
func SpectralCentroid(mag [][]float64, freqs []float64) []float64 {
	out := make([]float64, len(mag))
	for t, col := range mag {
		total := sum(col)
		if total < dsp.Tiny {
			continue
		}
		var c float64
		for k, v := range col {
			c += freqs[k] * v / total
		}
		out[t] = c
	}
	return out
}

// SpectralBandwidth returns the magnitude-weighted standard deviation of
// frequency around centroid. Silent frames yield 0.
func SpectralBandwidth(mag [][]float64, freqs, centroid []float64) []float64 {
	out := make([]float64, len(mag))
	for t, col := range mag {
		total := sum(col)
		if total < dsp.Tiny {
			continue
		}
		var b float64
		for k, v := range col {
			d := freqs[k] - centroid[t]
			b += v / total * d * d
		}
		out[t] = math.Sqrt(b)
	}
	return out
}

// SpectralRolloff returns, per frame, the lowest bin frequency below which at
// least pct of the magnitude lies. Silent frames yield the lowest frequency.
func SpectralRolloff(mag [][]float64, freqs []float64, pct float64) []float64 {
	out := make([]float64, len(mag))
	for t, col := range mag {
		threshold := pct * sum(col)
		var cum float64
		for k, v := range col {
			cum += v
			if cum >= threshold {
				out[t] = freqs[k]
				break
			}
		}
	}
	return out
}

// Chroma normalises every frame of a raw chromagram by its maximum. Frames
// whose maximum is negligible are left as they are.
func Chroma(raw [][]float64) [][]float64 {
	for _, col := range raw {
		var peak float64
		for _, v := range col {
			peak = math.Max(peak, math.Abs(v))
		}
		if peak < dsp.Tiny {
			continue
		}
		for c := range col {
			col[c] /= peak
		}
	}
	return raw
}
