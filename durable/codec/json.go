package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// JSON is the default Codec: values are rendered as JSON, with time.Time
// fields serialized as RFC3339 (ISO-8601) timestamps via encoding/json's
// native time.Time support, matching spec §6 ("the default codec renders
// values as JSON with ISO-8601 timestamps").
type JSON struct{}

// NewJSON constructs the default JSON codec.
func NewJSON() JSON { return JSON{} }

// Encode implements Codec.
func (JSON) Encode(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "", nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("codec: encode failed: %w", err)
	}
	return string(b), nil
}

// Decode implements Codec. An empty payload decodes to the zero value of
// sample's type without invoking json.Unmarshal, matching Encode's
// "absent payload" convention for nil values.
func (JSON) Decode(payload string, sample any) (any, error) {
	if sample == nil {
		var v any
		if payload == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return v, nil
	}

	t := reflect.TypeOf(sample)
	out := reflect.New(t) // *T
	if payload == "" {
		return out.Elem().Interface(), nil
	}
	if err := json.Unmarshal([]byte(payload), out.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out.Elem().Interface(), nil
}
