//go:build !linux && !darwin && !windows

package device

// SystemRawID reports no raw id, which selects the fallback device id.
func SystemRawID(buf []byte) int {
	return 0
}
