// Package device derives the NGL device identifier of this machine.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"
)

// FallbackID is the id NGL uses when the machine has no readable hardware id.
const FallbackID = "fdaa587852001bad7bf1e81ed275b822d2bc812f4eeeab092da60b7066ab2bfa"

const (
	rawIDBufferSize    = 512
	nativeIDBufferSize = 128
)

var (
	ErrTooLarge  = errors.New("device id larger than buffer")
	ErrInvalidID = errors.New("device id is not 64 hex characters")
	ErrMismatch  = errors.New("device id providers disagree")
)

// Provider returns the 64 character lowercase hex device id.
type Provider interface {
	DeviceID(ctx context.Context) (string, error)
}

// RawIDSource copies a raw hardware id into buf and returns its length,
// 0 when the machine has none, or -1 when it does not fit.
type RawIDSource func(buf []byte) int

// HashedProvider computes the device id as the SHA-256 of the raw hardware id.
type HashedProvider struct {
	Source RawIDSource
}

// NewHashedProvider reads the raw id of the running system.
func NewHashedProvider() *HashedProvider {
	return &HashedProvider{Source: SystemRawID}
}

func (p *HashedProvider) DeviceID(ctx context.Context) (string, error) {
	buf := make([]byte, rawIDBufferSize)
	n := p.Source(buf)
	switch {
	case n == 0:
		return FallbackID, nil
	case n < 0 || n > len(buf):
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, rawIDBufferSize)
	}
	sum := sha256.Sum256(buf[:n])
	return hex.EncodeToString(sum[:]), nil
}

// NativeProvider wraps a library call that returns the finished device id.
type NativeProvider struct {
	Get func(buf []byte) int
}

func (p *NativeProvider) DeviceID(ctx context.Context) (string, error) {
	buf := make([]byte, nativeIDBufferSize)
	n := p.Get(buf)
	if n < 0 || n > len(buf) {
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, nativeIDBufferSize)
	}
	if !utf8.Valid(buf[:n]) {
		return "", fmt.Errorf("%w: not UTF-8", ErrInvalidID)
	}
	id := string(buf[:n])
	if !IsValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

// IsValidID reports whether id is 64 lowercase hex characters.
func IsValidID(id string) bool {
	if len(id) != 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CrossCheck asks both providers for the id and fails unless they agree.
func CrossCheck(ctx context.Context, a, b Provider) (string, error) {
	idA, err := a.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("first provider: %w", err)
	}
	idB, err := b.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("second provider: %w", err)
	}
	if idA != idB {
		return "", fmt.Errorf("%w: %s != %s", ErrMismatch, idA, idB)
	}
	return idA, nil
}

// copyRawID adapts a raw id reader to the RawIDSource contract.
func copyRawID(buf []byte, read func() (string, error)) int {
	id, err := read()
	if err != nil || id == "" {
		return 0
	}
	if len(id) > len(buf) {
		return -1
	}
	return copy(buf, id)
}
