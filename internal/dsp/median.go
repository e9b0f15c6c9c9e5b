// SPDX-License-Identifier: MIT
package dsp

import (
	"slices"
	"sort"
)

// reflectIndex maps i onto [0, n) by half-sample symmetric reflection
// (d c b a | a b c d | d c b a), repeating as often as needed.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// MedianFilter is a 1-D running median of odd or even size with reflected
// boundaries. The window for output i covers input[i-size/2 : i-size/2+size].
// It keeps the window sorted and slides it one sample at a time.
type MedianFilter struct {
	size   int
	sorted []float64
}

// NewMedianFilter creates a filter of the given window size.
func NewMedianFilter(size int) *MedianFilter {
	if size < 1 {
		size = 1
	}
	return &MedianFilter{size: size, sorted: make([]float64, 0, size)}
}

// Apply writes the filtered src into dst. dst and src must have equal length
// and must not overlap.
func (m *MedianFilter) Apply(dst, src []float64) {
	n := len(src)
	if n == 0 {
		return
	}
	if m.size == 1 {
		copy(dst, src)
		return
	}
	origin := m.size / 2

	m.sorted = m.sorted[:0]
	for j := range m.size {
		m.sorted = append(m.sorted, src[reflectIndex(j-origin, n)])
	}
	slices.Sort(m.sorted)

	for i := range n {
		dst[i] = m.sorted[origin]
		if i == n-1 {
			break
		}
		out := src[reflectIndex(i-origin, n)]
		in := src[reflectIndex(i-origin+m.size, n)]
		m.replace(out, in)
	}
}

// replace removes one occurrence of out from the sorted window and inserts in.
func (m *MedianFilter) replace(out, in float64) {
	if out == in {
		return
	}
	s := m.sorted
	pos := sort.SearchFloat64s(s, out)
	ins := sort.SearchFloat64s(s, in)
	if ins > pos {
		// Shift left over the removed slot.
		ins--
		copy(s[pos:ins], s[pos+1:ins+1])
	} else {
		copy(s[ins+1:pos+1], s[ins:pos])
	}
	s[ins] = in
}
