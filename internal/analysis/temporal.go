// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"genre/internal/dsp"
)

// zcrThreshold is the magnitude at or below which a sample counts as zero.
const zcrThreshold = 1e-10

// TimeDomainAnalyzer computes frame energy and zero-crossing rate on raw
// samples. Energy frames are zero padded; crossing frames repeat the edge
// samples so padding never introduces a crossing.
type TimeDomainAnalyzer struct {
	energy   dsp.Framer
	crossing dsp.Framer
}

// NewTimeDomainAnalyzer creates an analyzer with the given frame geometry.
func NewTimeDomainAnalyzer(frameLength, hop int, center bool) (*TimeDomainAnalyzer, error) {
	energy, err := dsp.NewFramer(frameLength, hop, center, dsp.PadConstant)
	if err != nil {
		return nil, err
	}
	crossing, err := dsp.NewFramer(frameLength, hop, center, dsp.PadEdge)
	if err != nil {
		return nil, err
	}
	return &TimeDomainAnalyzer{energy: energy, crossing: crossing}, nil
}

// ProcessSignal fills RMS and ZCR.
func (a *TimeDomainAnalyzer) ProcessSignal(x []float64, out *Series) error {
	out.RMS = a.RMS(x)
	out.ZCR = a.ZeroCrossingRate(x)
	return nil
}

// RMS returns the root-mean-square of each frame.
func (a *TimeDomainAnalyzer) RMS(x []float64) []float64 {
	out := make([]float64, 0, a.energy.Count(len(x)))
	for frame := range a.energy.Frames(x) {
		var ss float64
		for _, v := range frame.Samples {
			ss += v * v
		}
		out = append(out, math.Sqrt(ss/float64(len(frame.Samples))))
	}
	return out
}

// ZeroCrossingRate returns, per frame, the fraction of adjacent sample pairs
// whose sign differs. Near-zero samples count as positive.
func (a *TimeDomainAnalyzer) ZeroCrossingRate(x []float64) []float64 {
	out := make([]float64, 0, a.crossing.Count(len(x)))
	for frame := range a.crossing.Frames(x) {
		s := frame.Samples
		var crossings int
		prev := negative(s[0])
		for _, v := range s[1:] {
			cur := negative(v)
			if cur != prev {
				crossings++
			}
			prev = cur
		}
		out = append(out, float64(crossings)/float64(len(s)))
	}
	return out
}

func negative(v float64) bool {
	if math.Abs(v) <= zcrThreshold {
		return false
	}
	return math.Signbit(v)
}
