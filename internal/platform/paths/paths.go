package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	DefaultWindowsDataRoot = `C:\ProgramData\TechnoSupport\FRLProxy`
	DefaultUnixDataRoot    = "/var/lib/frl-proxy"

	macOperatingConfigDir = "/Library/Application Support/Adobe/OperatingConfigs"
)

// DefaultOperatingConfigDir returns the directory NGL installs licenses into.
// FRL_CONFIG_DIR overrides the platform default. ok is false on platforms
// without a standard location.
func DefaultOperatingConfigDir() (dir string, ok bool) {
	if dir := os.Getenv("FRL_CONFIG_DIR"); dir != "" {
		return dir, true
	}
	return operatingConfigDir(runtime.GOOS)
}

func operatingConfigDir(goos string) (string, bool) {
	switch goos {
	case "darwin":
		return macOperatingConfigDir, true
	case "windows":
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "Adobe", "OperatingConfigs"), true
	}
	return "", false
}

// ResolveDataRoot returns the absolute path to the proxy data directory.
func ResolveDataRoot() string {
	root := os.Getenv("FRL_PROXY_DATA_ROOT")
	if root == "" {
		root = DefaultUnixDataRoot
		if runtime.GOOS == "windows" {
			root = DefaultWindowsDataRoot
		}
	}
	return root
}

// ResolveConfigPath returns the proxy configuration file: customPath if set,
// then FRL_PROXY_CONFIG, then config/frl-proxy.yaml under the data root.
func ResolveConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	if p := os.Getenv("FRL_PROXY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ResolveDataRoot(), "config", "frl-proxy.yaml")
}

// SpoolDir is where transactions are buffered while the database is down.
func SpoolDir() string {
	return filepath.Join(ResolveDataRoot(), "spool")
}

// EnsureDirs creates the standard proxy data subdirectories if they don't exist.
func EnsureDirs() error {
	dataRoot := ResolveDataRoot()
	subdirs := []string{
		"config",
		"logs",
		"spool",
	}

	for _, sub := range subdirs {
		path := filepath.Join(dataRoot, sub)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// SafeJoin joins path elements and ensures the result is within the base directory (no traversal).
func SafeJoin(base string, elements ...string) (string, error) {
	for _, el := range elements {
		if filepath.IsAbs(el) || strings.HasPrefix(el, `\\`) || strings.HasPrefix(el, "/") {
			return "", fmt.Errorf("path traversal attempt detected: absolute path or UNC not allowed in elements: %s", el)
		}
	}
	joined := filepath.Join(append([]string{base}, elements...)...)

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}

	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}

	if absJoined != absBase && !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s is outside %s", absJoined, absBase)
	}

	return absJoined, nil
}
