//go:build !windows

package windows

import "errors"

var errNotWindows = errors.New("windows services are not supported on this platform")

func openSink(string) (sink, error) { return nil, nil }

func RunAsService(name string, stop func()) error {
	return errNotWindows
}

func IsWindowsService() bool {
	return false
}
