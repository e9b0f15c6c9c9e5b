// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects an analysis window.
type WindowFunc int

// Enum for available window functions.
const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Lanczos
	Nuttall
	Rectangular
)

// String returns the canonical lower-case name of the window.
func (w WindowFunc) String() string {
	switch w {
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case BartlettHann:
		return "bartletthann"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	case Rectangular:
		return "rectangular"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "bartletthann":
		return BartlettHann, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular", "boxcar", "ones":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// Coefficients returns the periodic (DFT-even) form of the window with n
// points: the symmetric window of length n+1 with its last point dropped.
// This is the form spectral analysis expects, so overlapping Hann windows at
// hop n/4 sum to a constant.
func Coefficients(w WindowFunc, n int) []float64 {
	if n <= 0 {
		return nil
	}
	coeffs := make([]float64, n+1)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs[:n]
}
