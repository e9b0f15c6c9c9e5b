// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"genre/internal/dsp"
)

// NMFCC is the number of cepstral coefficients kept per frame.
const NMFCC = 20

// CepstralAnalyzer computes mel-frequency cepstral coefficients from the dB
// mel spectrogram.
type CepstralAnalyzer struct {
	NMFCC int
}

// ProcessSpectrum fills MFCC.
func (c *CepstralAnalyzer) ProcessSpectrum(spec *Spectrogram, out *Series) error {
	out.MFCC = MFCC(spec.MelDB(), c.NMFCC)
	return nil
}

// MFCC applies an orthonormal DCT-II across the bands of every frame of melDB
// and keeps the first n coefficients.
func MFCC(melDB [][]float64, n int) [][]float64 {
	if len(melDB) == 0 {
		return nil
	}
	bands := len(melDB[0])
	n = min(n, bands)
	return dsp.ApplyBank(dsp.DCTMatrix(bands, n), melDB)
}

// PowerToDB converts a power spectrogram to decibels relative to ref. Values
// are floored at amin before the logarithm, and the result is clipped to no
// more than topDB below its global maximum. S is not modified.
func PowerToDB(S [][]float64, ref, amin, topDB float64) [][]float64 {
	offset := 10 * math.Log10(math.Max(amin, ref))
	out := make([][]float64, len(S))
	peak := math.Inf(-1)
	for t, col := range S {
		row := make([]float64, len(col))
		for k, v := range col {
			db := 10*math.Log10(math.Max(amin, v)) - offset
			row[k] = db
			peak = math.Max(peak, db)
		}
		out[t] = row
	}
	if topDB > 0 {
		floor := peak - topDB
		for _, row := range out {
			for k, v := range row {
				if v < floor {
					row[k] = floor
				}
			}
		}
	}
	return out
}
