package verbose

import (
	"fmt"
	"strings"
)

// Hex formats bytes the way they appear in trace logs: "FE-FE-94-E0-03-FD".
func Hex(b []byte) string {
	if len(b) == 0 {
		return "(none)"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, "-")
}

// Template formats a byte template, printing placeholder positions as "xx".
func Template(b []byte, placeholder []bool) string {
	if len(b) == 0 {
		return "(none)"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		if i < len(placeholder) && placeholder[i] {
			parts[i] = "xx"
			continue
		}
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, "-")
}

// Bytes returns a labelled dump, appending the comment when there is one.
func Bytes(label string, b []byte, comment string) string {
	s := fmt.Sprintf("%s: %s", label, Hex(b))
	if comment != "" {
		s += fmt.Sprintf(" (%s)", comment)
	}
	return s
}
