// SPDX-License-Identifier: MIT
package features

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyWaveform is returned for a waveform with no samples.
	ErrEmptyWaveform = errors.New("waveform has no samples")
	// ErrSampleRate is returned for a waveform whose rate is not positive.
	ErrSampleRate = errors.New("waveform sample rate cannot be resampled")
)

// DegenerateInputError reports a waveform the pipeline refuses to analyse.
type DegenerateInputError struct {
	Samples    int
	SampleRate int
	Want       int // Pipeline sample rate.
	Err        error
}

func (e *DegenerateInputError) Error() string {
	if errors.Is(e.Err, ErrSampleRate) {
		return fmt.Sprintf("degenerate input: %v (%d Hz, want %d Hz)", e.Err, e.SampleRate, e.Want)
	}
	return fmt.Sprintf("degenerate input: %v", e.Err)
}

func (e *DegenerateInputError) Unwrap() error { return e.Err }
