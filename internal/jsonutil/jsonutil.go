// Package jsonutil provides JSON encoding/decoding helpers for request and
// response bodies.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// MustMarshalWithLogger marshals the given value to JSON using the provided logger.
// Returns nil if marshaling fails (after logging the error).
func MustMarshalWithLogger(logger *slog.Logger, v any) []byte {
	result, err := json.Marshal(v)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("json marshal failed", slog.String("error", err.Error()), slog.Any("value_type", typeName(v)))
		return nil
	}
	return result
}

// MarshalOrEmpty marshals the given value to JSON, returning an empty JSON object "{}"
// if marshaling fails.
func MarshalOrEmpty(v any) []byte {
	result, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return result
}

// DecodeBody decodes a request body into v. An empty body leaves v untouched.
// Unknown fields are rejected so that misspelled payload keys surface as
// errors instead of silently falling back to defaults.
func DecodeBody(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", typeName(v))
	}
	return nil
}

// typeName returns a string representation of the value's type for logging.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
