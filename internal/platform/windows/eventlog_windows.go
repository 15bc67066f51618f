//go:build windows

package windows

import "golang.org/x/sys/windows/svc/eventlog"

func openSink(source string) (sink, error) {
	l, err := eventlog.Open(source)
	if err != nil {
		return nil, err
	}
	return l, nil
}
