package describe

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Format selects the rendering of a report.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

var _ pflag.Value = (*Format)(nil)

func (f *Format) String() string {
	if f == nil || *f == "" {
		return string(FormatText)
	}
	return string(*f)
}

func (f *Format) Set(s string) error {
	switch Format(strings.ToLower(s)) {
	case FormatText, FormatJSON, FormatTable:
		*f = Format(strings.ToLower(s))
		return nil
	}
	return fmt.Errorf("unsupported output format %q, must be one of text, json, table", s)
}

func (f *Format) Type() string {
	return "format"
}
