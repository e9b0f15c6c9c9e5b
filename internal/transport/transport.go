// SPDX-License-Identifier: MIT
//
// Package transport delivers classification results to observers: the log,
// websocket clients and UDP listeners.
package transport

import (
	"errors"
	"time"

	"genre/internal/classifier"
	"genre/internal/features"
)

// Transport defines a generic interface for sending results or events.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// Result is the message published for every classified clip.
type Result struct {
	ID            string                  `json:"id" msgpack:"id"`
	Source        string                  `json:"source" msgpack:"source"`
	Label         string                  `json:"label,omitempty" msgpack:"label,omitempty"`
	Probabilities classifier.Distribution `json:"probabilities,omitempty" msgpack:"probabilities,omitempty"`
	Features      *features.Vector        `json:"features,omitempty" msgpack:"-"`
	Error         string                  `json:"error,omitempty" msgpack:"error,omitempty"`
	Elapsed       time.Duration           `json:"elapsed_ns" msgpack:"elapsed_ns"`
	Time          time.Time               `json:"time" msgpack:"time"`
}

// Multi fans every message out to several transports.
type Multi []Transport

// Send delivers data to every transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Send(any) error { return nil }
func (Discard) Close() error   { return nil }

// Ensure implementations satisfy the interface at compile time.
var _ Transport = Multi(nil)
var _ Transport = Discard{}
