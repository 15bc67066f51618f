package device

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"time"
)

var platformUUID = regexp.MustCompile(`"IOPlatformUUID" = "([^"]+)"`)

// SystemRawID reads the IOPlatformUUID of the machine.
func SystemRawID(buf []byte) int {
	return copyRawID(buf, func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
		if err != nil {
			return "", err
		}
		m := platformUUID.FindSubmatch(out)
		if m == nil {
			return "", errors.New("IOPlatformUUID not found")
		}
		return string(m[1]), nil
	})
}
