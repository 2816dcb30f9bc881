// Package encoding provides JSON and file helpers shared by the store and the CLI.
package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseJSON unmarshals a single JSON value into the provided type.
// Trailing data after the value is an error.
func ParseJSON[T any](data []byte) (*T, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var result T
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to parse JSON: unexpected data after value")
	}

	return &result, nil
}

// ToJSONIndent marshals a value to indented JSON bytes.
func ToJSONIndent[T any](value T) ([]byte, error) {
	return json.MarshalIndent(value, "", "  ")
}

// WriteJSON writes value as indented JSON followed by a newline.
func WriteJSON[T any](w io.Writer, value T) error {
	data, err := ToJSONIndent(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}

	return nil
}
