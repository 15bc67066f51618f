// Package codec holds the URL-safe base64 and base64-wrapped JSON transforms
// used throughout the NGL license formats.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrEncoding is returned for malformed base64 or non UTF-8 text.
	ErrEncoding = errors.New("invalid encoding")
	// ErrFormat is returned when decoded bytes are not valid JSON.
	ErrFormat = errors.New("invalid format")
)

// urlSafe rejects padding, the standard alphabet and non-zero trailing bits,
// so a successful decode always re-encodes to the same string.
var urlSafe = base64.RawURLEncoding.Strict()

// Decode decodes unpadded URL-safe base64.
func Decode(s string) ([]byte, error) {
	b, err := urlSafe.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

// DecodeString decodes s and requires the result to be UTF-8 text.
func DecodeString(s string) (string, error) {
	b, err := Decode(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: decoded value is not UTF-8", ErrEncoding)
	}
	return string(b), nil
}

// Encode returns the unpadded URL-safe encoding of b.
func Encode(b []byte) string {
	return urlSafe.EncodeToString(b)
}

// EncodeString is Encode for text.
func EncodeString(s string) string {
	return Encode([]byte(s))
}

// DecodeJSON decodes s and unmarshals the JSON result into v.
func DecodeJSON(s string, v any) error {
	b, err := Decode(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}

// DecodeJSONMap decodes a base64-wrapped JSON object.
func DecodeJSONMap(s string) (map[string]any, error) {
	var m map[string]any
	if err := DecodeJSON(s, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrFormat)
	}
	return m, nil
}

// EncodeJSON marshals v and wraps it in URL-safe base64.
func EncodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return Encode(b), nil
}
