package catset

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dougsko/catd/pkg/verbose"
)

// Template is a byte pattern in which some positions are placeholders for a parameter.
type Template struct {
	bytes       []byte
	placeholder []bool
}

// ParseTemplate parses a hex string such as "FE FE 94 E0 05 xx xx xx xx xx FD".
// Bytes may be separated by spaces, '-', ':' or ',' or written back to back;
// "xx" or "??" marks a placeholder position.
func ParseTemplate(s string) (Template, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-', ':', ',':
			return -1
		}
		return r
	}, s)

	if len(compact)%2 != 0 {
		return Template{}, fmt.Errorf("odd number of hex digits in %q", s)
	}

	t := Template{
		bytes:       make([]byte, 0, len(compact)/2),
		placeholder: make([]bool, 0, len(compact)/2),
	}
	for i := 0; i < len(compact); i += 2 {
		pair := compact[i : i+2]
		if strings.EqualFold(pair, "xx") || pair == "??" {
			t.bytes = append(t.bytes, 0)
			t.placeholder = append(t.placeholder, true)
			continue
		}
		b, err := hex.DecodeString(pair)
		if err != nil {
			return Template{}, fmt.Errorf("invalid hex byte %q in %q", pair, s)
		}
		t.bytes = append(t.bytes, b[0])
		t.placeholder = append(t.placeholder, false)
	}
	return t, nil
}

// ParseHex parses a hex string that must not contain placeholders.
func ParseHex(s string) ([]byte, error) {
	t, err := ParseTemplate(s)
	if err != nil {
		return nil, err
	}
	if t.PlaceholderCount() > 0 {
		return nil, fmt.Errorf("placeholders are not allowed in %q", s)
	}
	return t.bytes, nil
}

// Len returns the number of bytes in the template
func (t Template) Len() int {
	return len(t.bytes)
}

// PlaceholderCount returns the number of placeholder positions
func (t Template) PlaceholderCount() int {
	n := 0
	for _, p := range t.placeholder {
		if p {
			n++
		}
	}
	return n
}

// PlaceholderStart returns the first placeholder position, or -1
func (t Template) PlaceholderStart() int {
	for i, p := range t.placeholder {
		if p {
			return i
		}
	}
	return -1
}

// Contiguous reports whether all placeholders form a single run
func (t Template) Contiguous() bool {
	start := t.PlaceholderStart()
	if start < 0 {
		return true
	}
	return t.AllPlaceholders(start, t.PlaceholderCount())
}

// AllPlaceholders reports whether positions [start, start+length) are all placeholders
func (t Template) AllPlaceholders(start, length int) bool {
	if start < 0 || length < 0 || start+length > len(t.placeholder) {
		return false
	}
	for i := start; i < start+length; i++ {
		if !t.placeholder[i] {
			return false
		}
	}
	return true
}

// Render returns the template bytes with param copied in at start.
// Placeholder positions not covered by param are zero.
func (t Template) Render(param []byte, start int) []byte {
	out := make([]byte, len(t.bytes))
	copy(out, t.bytes)
	if len(param) > 0 && start >= 0 {
		copy(out[start:], param)
	}
	return out
}

// Matches reports whether b has the template's length and equals it at every fixed position
func (t Template) Matches(b []byte) bool {
	if len(b) != len(t.bytes) {
		return false
	}
	for i, v := range b {
		if !t.placeholder[i] && v != t.bytes[i] {
			return false
		}
	}
	return true
}

// String formats the template with "xx" placeholders
func (t Template) String() string {
	return verbose.Template(t.bytes, t.placeholder)
}
