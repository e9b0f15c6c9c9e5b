// SPDX-License-Identifier: MIT
package features

import (
	"genre/internal/analysis"

	"gonum.org/v1/gonum/stat"
)

// Aggregate reduces every series to its mean and population variance and
// places them at their fixed slots. Empty series contribute zeros.
func Aggregate(s *analysis.Series) Vector {
	var v Vector
	put := func(idx int, x []float64) {
		v[idx], v[idx+1] = meanVar(x)
	}

	put(IdxChromaMean, flatten(s.Chroma))
	put(IdxRMSMean, s.RMS)
	put(IdxCentroidMean, s.Centroid)
	put(IdxBandwidthMean, s.Bandwidth)
	put(IdxRolloffMean, s.Rolloff)
	put(IdxZCRMean, s.ZCR)
	put(IdxHarmonyMean, s.Harmonic)
	put(IdxPerceptrMean, s.Percussive)
	v[IdxTempo] = s.Tempo

	coeff := make([]float64, len(s.MFCC))
	for i := range analysis.NMFCC {
		for t, frame := range s.MFCC {
			if i < len(frame) {
				coeff[t] = frame[i]
			} else {
				coeff[t] = 0
			}
		}
		put(IdxMFCCMean(i), coeff)
	}
	return v
}

func meanVar(x []float64) (mean, variance float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanVariance(x, nil)
}

func flatten(m [][]float64) []float64 {
	var n int
	for _, row := range m {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}
