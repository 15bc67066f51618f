package device

import (
	"os"
	"strings"
)

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// SystemRawID reads the systemd machine id.
func SystemRawID(buf []byte) int {
	return copyRawID(buf, func() (string, error) {
		var lastErr error
		for _, p := range machineIDPaths {
			b, err := os.ReadFile(p)
			if err != nil {
				lastErr = err
				continue
			}
			if id := strings.TrimSpace(string(b)); id != "" {
				return id, nil
			}
		}
		return "", lastErr
	})
}
