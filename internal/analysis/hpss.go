// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"genre/internal/dsp"
)

// HPSS splits a signal into harmonic and percussive components by median
// filtering the magnitude spectrogram across time (harmonic) and across
// frequency (percussive), then masking the complex STFT with soft masks.
type HPSS struct {
	Kernel int     // Median filter length in frames and in bins.
	Margin float64 // Soft mask margin; 1 keeps the split exhaustive.
}

// ProcessSpectrum fills Harmonic and Percussive with signals of the input
// length.
func (h *HPSS) ProcessSpectrum(spec *Spectrogram, out *Series) error {
	harm, perc := h.Masks(spec.Magnitude)
	out.Harmonic = spec.STFT.Inverse(applyMask(spec.Complex, harm), spec.Length)
	out.Percussive = spec.STFT.Inverse(applyMask(spec.Complex, perc), spec.Length)
	return nil
}

// Masks returns the harmonic and percussive soft masks for mag ([frame][bin]).
func (h *HPSS) Masks(mag [][]float64) (harm, perc [][]float64) {
	frames := len(mag)
	if frames == 0 {
		return nil, nil
	}
	bins := len(mag[0])
	filt := dsp.NewMedianFilter(h.Kernel)

	// Harmonic: filter each bin along time.
	hf := newMatrix(frames, bins)
	line := make([]float64, frames)
	res := make([]float64, frames)
	for k := range bins {
		for t := range frames {
			line[t] = mag[t][k]
		}
		filt.Apply(res, line)
		for t := range frames {
			hf[t][k] = res[t]
		}
	}

	// Percussive: filter each frame along frequency.
	pf := newMatrix(frames, bins)
	for t := range frames {
		filt.Apply(pf[t], mag[t])
	}

	margin := h.Margin
	if margin <= 0 {
		margin = 1
	}
	// At margin 1 the masks partition every bin, including those where
	// both filtered magnitudes vanish.
	split := margin == 1
	harm = newMatrix(frames, bins)
	perc = newMatrix(frames, bins)
	for t := range frames {
		for k := range bins {
			harm[t][k] = SoftMask(hf[t][k], pf[t][k]*margin, 2, split)
			perc[t][k] = SoftMask(pf[t][k], hf[t][k]*margin, 2, split)
		}
	}
	return harm, perc
}

// SoftMask returns x^p / (x^p + ref^p), computed relative to the larger
// operand. Where both are negligible the mask is 0.5 when splitZeros is set
// and 0 otherwise.
func SoftMask(x, ref, power float64, splitZeros bool) float64 {
	z := math.Max(x, ref)
	if z < dsp.Tiny {
		if splitZeros {
			return 0.5
		}
		return 0
	}
	m := math.Pow(x/z, power)
	r := math.Pow(ref/z, power)
	return m / (m + r)
}

func applyMask(spec [][]complex128, mask [][]float64) [][]complex128 {
	out := make([][]complex128, len(spec))
	for t, col := range spec {
		row := make([]complex128, len(col))
		for k, c := range col {
			row[k] = c * complex(mask[t][k], 0)
		}
		out[t] = row
	}
	return out
}

func newMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}
