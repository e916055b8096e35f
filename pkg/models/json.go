package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when a JSON payload decodes to something other
// than an object.
var ErrNotObject = errors.New("JSON value is not an object")

// Body is the value of a document: an arbitrary JSON object.
//
// Numbers are held as json.Number so that a body decoded with DecodeBody
// encodes back to the same numeric text.
type Body map[string]any

// DecodeBody decodes a single JSON object from r.
func DecodeBody(r io.Reader) (Body, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data after object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Body(obj), nil
}

// UnmarshalBody decodes a JSON object held in memory.
func UnmarshalBody(data []byte) (Body, error) {
	return DecodeBody(bytes.NewReader(data))
}

// Marshal encodes the body without HTML escaping.
func (b Body) Marshal() ([]byte, error) {
	return marshalValue(map[string]any(b))
}

// marshalValue encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalValue encodes an arbitrary JSON value the same way Body.Marshal does.
func MarshalValue(v any) ([]byte, error) {
	return marshalValue(v)
}
