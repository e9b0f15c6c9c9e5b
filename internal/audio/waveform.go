// SPDX-License-Identifier: MIT
//
// Package audio loads audio files into mono waveforms at a requested sample
// rate. Containers are decoded by third-party libraries; this package only
// normalises, downmixes and resamples.
package audio

import (
	"time"
)

// Waveform is a mono signal normalised to [-1, 1).
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of w in time.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Float64 returns a float64 copy of the samples, the precision the analysis
// pipeline runs at.
func (w Waveform) Float64() []float64 {
	out := make([]float64, len(w.Samples))
	for i, v := range w.Samples {
		out[i] = float64(v)
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into mono.
// A trailing partial frame is dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	scale := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum * scale
	}
	return out
}
