package cops

import (
	"fmt"
	"runtime"
	"time"
)

// Version is stamped into the user agent. Overridden at link time with
// -ldflags "-X github.com/technosupport/frl-toolbox/internal/cops.Version=...".
var Version = "1.0.0"

// TimestampLayout is millisecond precision with a numeric zone offset,
// e.g. 2021-03-04T09:15:02.123-0800.
const TimestampLayout = "2006-01-02T15:04:05.000-0700"

// now is replaced in tests.
var now = time.Now

// UserAgent identifies the proxy to the upstream server and to clients.
func UserAgent() string {
	return fmt.Sprintf("FRL-Online-Proxy/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// CurrentTimestamp is the local wall clock in TimestampLayout.
func CurrentTimestamp() string {
	return now().Format(TimestampLayout)
}
