package license

import (
	"errors"
	"fmt"

	"github.com/technosupport/frl-toolbox/internal/codec"
)

// ErrIO is returned when a license file or directory cannot be read.
var ErrIO = errors.New("i/o error")

// ErrNotFound is returned when a path holds no license artifacts.
// It matches ErrIO with errors.Is.
var ErrNotFound = fmt.Errorf("%w: not found", ErrIO)

// ErrEncoding is returned for malformed base64 data.
var ErrEncoding = codec.ErrEncoding

// ErrFormat is returned for malformed JSON, XML or archive data.
var ErrFormat = codec.ErrFormat

// ErrMissingField is returned when a required key is absent or has the wrong type.
var ErrMissingField = errors.New("missing field")

// ErrInvalidFilename is returned when a license filename does not follow
// the <app>-<npdId>-<precedence> pattern.
var ErrInvalidFilename = errors.New("invalid filename")

// MissingFieldError wraps ErrMissingField with the name of the field.
func MissingFieldError(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// InvalidFilenameError wraps ErrInvalidFilename with the offending name.
func InvalidFilenameError(name, reason string) error {
	return fmt.Errorf("%w '%s': %s", ErrInvalidFilename, name, reason)
}

// FormatError wraps ErrFormat with a reason.
func FormatError(reason string) error {
	return fmt.Errorf("%w: %s", ErrFormat, reason)
}

// PathError attaches the offending path to err.
func PathError(path string, err error) error {
	return fmt.Errorf("%s: %w", path, err)
}

func isCodecError(err error) bool {
	return errors.Is(err, ErrEncoding) || errors.Is(err, ErrFormat)
}
