// SPDX-License-Identifier: MIT
package classifier

import (
	"errors"
	"fmt"
)

// ErrFeatureOrder is matched by every ModelInputError.
var ErrFeatureOrder = errors.New("feature names do not match model input")

// ModelInputError reports features whose names, order or count differ from
// what the model was trained on. It is raised before the model is invoked.
type ModelInputError struct {
	Reason string
	Err    error // Underlying mismatch, may be nil.
}

func (e *ModelInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model input mismatch: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("model input mismatch: %s", e.Reason)
}

func (e *ModelInputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFeatureOrder}
	}
	return []error{ErrFeatureOrder, e.Err}
}

func inputError(reason string, err error) error {
	return &ModelInputError{Reason: reason, Err: err}
}
