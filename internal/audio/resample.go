// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another with the high
// quality soxr preset. The output has ceil(len(x)*to/from) samples.
func Resample(x []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resampling rates %d -> %d", from, to)
	}
	if from == to || len(x) == 0 {
		out := make([]float32, len(x))
		copy(out, x)
		return out, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	in := make([]float64, len(x))
	for i, v := range x {
		in[i] = float64(v)
	}
	body, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}

	want := int(math.Ceil(float64(len(x)) * float64(to) / float64(from)))
	out := make([]float32, want)
	n := copy(out, toFloat32(body))
	if n < want {
		copy(out[n:], toFloat32(tail))
	}
	return out, nil
}

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}
