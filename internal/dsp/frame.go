// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"iter"
)

// PadMode selects how a centered signal is extended past its ends.
type PadMode int

const (
	// PadConstant extends the signal with zeros.
	PadConstant PadMode = iota
	// PadEdge repeats the first and last sample.
	PadEdge
)

// Frame is one analysis window. Offset is the index of Samples[0] in the
// un-padded signal, so leading frames of a centered Framer have negative
// offsets. Samples aliases the Framer's padded buffer and must not be
// modified or retained past the iteration step.
type Frame struct {
	Offset  int
	Samples []float64
}

// Framer slices a signal into fixed-length, fixed-hop frames.
type Framer struct {
	Length int
	Hop    int
	Center bool
	Pad    PadMode
}

// NewFramer validates the framing parameters.
func NewFramer(length, hop int, center bool, pad PadMode) (Framer, error) {
	if length <= 0 {
		return Framer{}, fmt.Errorf("frame length must be positive, got %d", length)
	}
	if hop <= 0 {
		return Framer{}, fmt.Errorf("hop length must be positive, got %d", hop)
	}
	return Framer{Length: length, Hop: hop, Center: center, Pad: pad}, nil
}

// padding is the number of samples added on each side of a centered signal.
func (f Framer) padding() int {
	if f.Center {
		return f.Length / 2
	}
	return 0
}

// Count returns the number of frames produced for a signal of n samples.
// Uncentered framing drops a trailing partial frame; centered framing pads
// Length/2 on both sides first.
func (f Framer) Count(n int) int {
	if n <= 0 {
		return 0
	}
	padded := n + 2*f.padding()
	if padded < f.Length {
		return 0
	}
	return (padded-f.Length)/f.Hop + 1
}

// Padded returns the signal extended according to Center and Pad. The input
// is never modified; the returned slice is always a fresh copy.
func (f Framer) Padded(x []float64) []float64 {
	p := f.padding()
	out := make([]float64, len(x)+2*p)
	copy(out[p:], x)
	if p == 0 || len(x) == 0 || f.Pad != PadEdge {
		return out
	}
	first, last := x[0], x[len(x)-1]
	for i := range p {
		out[i] = first
		out[len(out)-1-i] = last
	}
	return out
}

// Frames yields every frame of x in order. The sequence may be iterated any
// number of times; each iteration pads x afresh.
func (f Framer) Frames(x []float64) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		n := f.Count(len(x))
		if n == 0 {
			return
		}
		buf := f.Padded(x)
		p := f.padding()
		for t := range n {
			start := t * f.Hop
			if !yield(Frame{Offset: start - p, Samples: buf[start : start+f.Length]}) {
				return
			}
		}
	}
}
