// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is wrapped by a DecodeError when no decoder matches
// the input.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// IOError reports an audio resource that could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to read audio %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// DecodeError reports a container that is unsupported or corrupt.
type DecodeError struct {
	Path   string // Empty for in-memory input.
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	src := e.Path
	if src == "" {
		src = "input"
	}
	if e.Format == "" {
		return fmt.Sprintf("failed to decode %s: %v", src, e.Err)
	}
	return fmt.Sprintf("failed to decode %s as %s: %v", src, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
