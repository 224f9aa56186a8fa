// Package codec defines the serialization contract durable's core depends
// on (C1, spec §6) and ships the default JSON implementation.
package codec

import "errors"

// ErrDecode wraps any failure during Decode; Codec implementations should
// use errors.Join or fmt.Errorf("%w: ...", ErrDecode) so callers can detect
// codec failures with errors.Is.
var ErrDecode = errors.New("codec: decode failed")

// Codec serializes and deserializes handler-visible values. encode must be
// deterministic and total on every value the codec claims to support;
// nil values encode to an absent payload (empty string), while non-nil zero
// values such as 0 or "" encode like any other value.
type Codec interface {
	// Encode renders value as a string. Returns "" for a nil value.
	Encode(value any) (string, error)
	// Decode parses payload into a new value of the same shape as sample.
	// sample is used only to select the concrete type to decode into (Go
	// has no runtime-generic "decode as T" without it); it is never mutated.
	Decode(payload string, sample any) (any, error)
}
