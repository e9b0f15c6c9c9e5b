// SPDX-License-Identifier: MIT
//
// Package bitint provides the power-of-two helpers used to size FFT buffers.
//
// NextPowerOfTwo subtracts one before taking the bit length so exact powers
// of two map to themselves:
//
//	size 8: bits.Len(7) = 3, 1<<3 = 8
//	size 9: bits.Len(8) = 4, 1<<4 = 16
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of two have a
// single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// CorrelationSize returns the FFT length needed to compute a linear (not
// circular) autocorrelation of n samples: the next power of two >= 2n-1.
func CorrelationSize(n int) int {
	if n <= 0 {
		return 1
	}
	return NextPowerOfTwo(2*n - 1)
}
