// Package jsonutil decodes remote service payloads into explicit response
// schemas. Unknown fields are tolerated; trailing garbage and type
// mismatches are not.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// previewLen bounds how much of a bad payload ends up in error messages.
const previewLen = 200

// Decode unmarshals raw into T, rejecting empty bodies and anything after
// the first JSON value.
func Decode[T any](raw []byte) (T, error) {
	var zero T
	if len(bytes.TrimSpace(raw)) == 0 {
		return zero, fmt.Errorf("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var result T
	if err := dec.Decode(&result); err != nil {
		return zero, fmt.Errorf("invalid JSON: %w (body: %s)", err, Preview(string(raw)))
	}
	if _, err := dec.Token(); err != io.EOF {
		return zero, fmt.Errorf("unexpected data after JSON value (body: %s)", Preview(string(raw)))
	}
	return result, nil
}

// ErrorMessage extracts the "error" field of a {"error": "..."} body. It
// falls back to the trimmed body text when the payload is not of that shape.
func ErrorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return Preview(strings.TrimSpace(string(raw)))
}

// Preview returns the first previewLen characters of s, appending "..." if
// truncated.
func Preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
