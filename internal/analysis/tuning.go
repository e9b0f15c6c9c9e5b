// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"

	"genre/internal/dsp"
)

// Peak picking limits for tuning estimation.
const (
	tuningFMin       = 150.0
	tuningFMax       = 4000.0
	tuningThreshold  = 0.1  // Fraction of the frame maximum a peak must exceed.
	tuningResolution = 0.01 // Histogram bin width in fractions of a semitone.
)

// Pitch is one interpolated spectral peak.
type Pitch struct {
	Frequency float64
	Magnitude float64
}

// PickPitches finds, per frame, the local maxima of the spectrum S between
// 150 Hz and 4 kHz that exceed a tenth of the frame maximum, and refines each
// to a sub-bin frequency and magnitude by parabolic interpolation.
func PickPitches(S [][]float64, freqs []float64, sampleRate, nfft int) []Pitch {
	fmax := math.Min(tuningFMax, float64(sampleRate)/2)
	var pitches []Pitch

	for _, col := range S {
		n := len(col)
		if n < 3 {
			continue
		}
		var peak float64
		for _, v := range col {
			peak = math.Max(peak, v)
		}
		ref := tuningThreshold * peak

		gated := func(k int) float64 {
			if k < 0 {
				k = 0
			} else if k >= n {
				k = n - 1
			}
			if col[k] > ref {
				return col[k]
			}
			return 0
		}

		for k := 1; k < n-1; k++ {
			if freqs[k] < tuningFMin || freqs[k] >= fmax {
				continue
			}
			g := gated(k)
			if !(g > gated(k-1) && g >= gated(k+1)) {
				continue
			}
			a := col[k+1] + col[k-1] - 2*col[k]
			b := (col[k+1] - col[k-1]) / 2
			var shift float64
			if math.Abs(b) < math.Abs(a) {
				shift = -b / a
			}
			pitches = append(pitches, Pitch{
				Frequency: (float64(k) + shift) * float64(sampleRate) / float64(nfft),
				Magnitude: col[k] + 0.5*b*shift,
			})
		}
	}
	return pitches
}

// EstimateTuning returns the deviation of the recording from A440 in
// fractions of a chroma bin, within [-0.5, 0.5). Peaks weaker than the median
// peak are discarded before the residuals are histogrammed. A spectrum without
// usable peaks yields 0.
func EstimateTuning(S [][]float64, freqs []float64, sampleRate, nfft int) float64 {
	pitches := PickPitches(S, freqs, sampleRate, nfft)

	var mags []float64
	for _, p := range pitches {
		if p.Frequency > 0 {
			mags = append(mags, p.Magnitude)
		}
	}
	if len(mags) == 0 {
		return 0
	}
	threshold := median(mags)

	var kept []float64
	for _, p := range pitches {
		if p.Frequency > 0 && p.Magnitude >= threshold {
			kept = append(kept, p.Frequency)
		}
	}
	return PitchTuning(kept, tuningResolution, NChroma)
}

// PitchTuning histograms the fractional-bin residuals of frequencies and
// returns the left edge of the most populated bin.
func PitchTuning(frequencies []float64, resolution float64, binsPerOctave int) float64 {
	nBins := int(math.Ceil(1 / resolution))
	edges := make([]float64, nBins+1)
	step := 1.0 / float64(nBins)
	for i := range edges {
		edges[i] = -0.5 + float64(i)*step
	}
	counts := make([]int, nBins)
	counted := false

	for _, f := range frequencies {
		if f <= 0 {
			continue
		}
		r := math.Mod(float64(binsPerOctave)*dsp.HzToOctaves(f, 0, binsPerOctave), 1)
		if r < 0 {
			r++
		}
		if r >= 0.5 {
			r--
		}
		i := int(math.Floor((r + 0.5) / step))
		i = min(max(i, 0), nBins-1)
		if r < edges[i] && i > 0 {
			i--
		} else if i < nBins-1 && r >= edges[i+1] {
			i++
		}
		counts[i]++
		counted = true
	}
	if !counted {
		return 0
	}

	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return edges[best]
}

// median returns the median of x, averaging the two middle values for even
// lengths. x is reordered.
func median(x []float64) float64 {
	slices.Sort(x)
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}
