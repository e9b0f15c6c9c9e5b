// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz is the inverse of HzToMel.
func MelToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// MelFrequencies returns n frequencies evenly spaced on the mel scale between
// fmin and fmax inclusive.
func MelFrequencies(n int, fmin, fmax float64) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	lo, hi := HzToMel(fmin), HzToMel(fmax)
	if n == 1 {
		out[0] = MelToHz(lo)
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = MelToHz(lo + float64(i)*step)
	}
	return out
}

// MelFilterBank returns the nMels x (nfft/2+1) matrix of triangular filters
// spanning fmin..fmax, each scaled to unit area (Slaney normalisation).
func MelFilterBank(sampleRate, nfft, nMels int, fmin, fmax float64) *mat.Dense {
	fftFreqs := FFTFrequencies(sampleRate, nfft)
	melF := MelFrequencies(nMels+2, fmin, fmax)
	bank := mat.NewDense(nMels, len(fftFreqs), nil)

	for i := range nMels {
		lowerW := melF[i+1] - melF[i]
		upperW := melF[i+2] - melF[i+1]
		enorm := 2.0 / (melF[i+2] - melF[i])
		for k, f := range fftFreqs {
			lower := (f - melF[i]) / lowerW
			upper := (melF[i+2] - f) / upperW
			w := math.Max(0, math.Min(lower, upper))
			if w > 0 {
				bank.Set(i, k, w*enorm)
			}
		}
	}
	return bank
}

// HzToOctaves converts a frequency to octaves above A0 (27.5 Hz at standard
// pitch), with the reference shifted by tuning fractions of a bin.
func HzToOctaves(hz, tuning float64, binsPerOctave int) float64 {
	a440 := 440.0 * math.Pow(2, tuning/float64(binsPerOctave))
	return math.Log2(hz / (a440 / 16))
}

// ChromaFilterBank returns the nChroma x (nfft/2+1) matrix that folds a power
// spectrum onto pitch classes. Each FFT bin contributes a Gaussian bump
// centred on its fractional pitch class, the columns are L2-normalised and
// then weighted by a Gaussian over octaves centred on octave 5 with width 2.
// Row 0 is C.
func ChromaFilterBank(sampleRate, nfft, nChroma int, tuning float64) *mat.Dense {
	const (
		ctrOct   = 5.0
		octWidth = 2.0
	)
	n := float64(nChroma)

	// Fractional chroma bin of every FFT bin; bin 0 is placed 1.5 octaves
	// below bin 1 so its bump is broad and half rotated.
	frq := make([]float64, nfft)
	for k := 1; k < nfft; k++ {
		f := float64(k) * float64(sampleRate) / float64(nfft)
		frq[k] = n * HzToOctaves(f, tuning, nChroma)
	}
	frq[0] = frq[1] - 1.5*n

	width := make([]float64, nfft)
	for k := 0; k < nfft-1; k++ {
		width[k] = math.Max(frq[k+1]-frq[k], 1)
	}
	width[nfft-1] = 1

	half := math.Round(n / 2)
	full := mat.NewDense(nChroma, nfft, nil)
	for k := range nfft {
		var norm float64
		for c := range nChroma {
			d := math.Mod(frq[k]-float64(c)+half+10*n, n) - half
			v := math.Exp(-0.5 * math.Pow(2*d/width[k], 2))
			full.Set(c, k, v)
			norm += v * v
		}
		norm = math.Sqrt(norm)
		oct := math.Exp(-0.5 * math.Pow((frq[k]/n-ctrOct)/octWidth, 2))
		for c := range nChroma {
			v := full.At(c, k)
			if norm >= Tiny {
				v /= norm
			}
			full.Set(c, k, v*oct)
		}
	}

	// Rotate so row 0 is C rather than A, and drop the aliased bins.
	bins := nfft/2 + 1
	shift := 3 * (nChroma / 12)
	bank := mat.NewDense(nChroma, bins, nil)
	for c := range nChroma {
		src := (c + shift) % nChroma
		for k := range bins {
			bank.Set(c, k, full.At(src, k))
		}
	}
	return bank
}

// DCTMatrix returns the nOut x nIn orthonormal type-II DCT basis.
func DCTMatrix(nIn, nOut int) *mat.Dense {
	basis := mat.NewDense(nOut, nIn, nil)
	n := float64(nIn)
	for k := range nOut {
		scale := math.Sqrt(2 / n)
		if k == 0 {
			scale = math.Sqrt(1 / n)
		}
		for i := range nIn {
			basis.Set(k, i, scale*math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*n)))
		}
	}
	return basis
}

// ApplyBank multiplies every frame of spec ([frame][bin]) by bank
// (rows x bins) and returns [frame][row].
func ApplyBank(bank mat.Matrix, spec [][]float64) [][]float64 {
	_, bins := bank.Dims()
	frames := len(spec)
	out := make([][]float64, frames)
	if frames == 0 {
		return out
	}
	flat := make([]float64, 0, frames*bins)
	for _, col := range spec {
		flat = append(flat, col...)
	}
	in := mat.NewDense(frames, bins, flat)
	var res mat.Dense
	res.Mul(in, bank.T())
	for t := range frames {
		out[t] = mat.Row(nil, t, &res)
	}
	return out
}
