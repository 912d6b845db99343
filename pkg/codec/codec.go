// Package codec converts parameter values between their text form, as
// exchanged with rig-control clients, and the fixed-width byte fields of a
// CAT message.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dougsko/catd/pkg/verbose"
)

var (
	// ErrInvalidParam is the root of every codec failure
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrOverflow is returned when a number needs more digits than the field holds
	ErrOverflow = fmt.Errorf("%w: digit overflow", ErrInvalidParam)

	// ErrUnknownValue is returned when a symbolic name or byte pattern is not in the value table
	ErrUnknownValue = fmt.Errorf("%w: unknown enumeration value", ErrInvalidParam)
)

// Format is the encoding of a parameter field
type Format int

const (
	FormatText Format = iota
	FormatEnum
	FormatBCDLE
	FormatBCDBE
)

var formatNames = map[Format]string{
	FormatText:  "Text",
	FormatEnum:  "Enum",
	FormatBCDLE: "BCD_LE",
	FormatBCDBE: "BCD_BE",
}

// String returns the document name of the format
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses a format name as written in command set documents
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown param format %q", name)
}

// Value is one entry of an enumeration table
type Value struct {
	Name  string
	Bytes []byte
}

// Spec describes how a parameter is encoded
type Spec struct {
	Format Format

	// Step scales the raw field: decoded = raw * Step, encoded = value / Step. Zero means 1.
	Step float64

	// Values is the enumeration table, in document order
	Values []Value
}

// Encode converts a text value into exactly width bytes
func Encode(spec Spec, value string, width int) ([]byte, error) {
	switch spec.Format {
	case FormatBCDLE:
		b, err := encodeBCD(spec, value, width)
		if err != nil {
			return nil, err
		}
		return reversed(b), nil
	case FormatBCDBE:
		return encodeBCD(spec, value, width)
	case FormatText:
		digits, err := formatNumber(spec, value, width)
		if err != nil {
			return nil, err
		}
		return []byte(digits), nil
	case FormatEnum:
		return encodeEnum(spec, value)
	default:
		return nil, fmt.Errorf("%w: unsupported format %v", ErrInvalidParam, spec.Format)
	}
}

// Decode converts a byte field into its text value
func Decode(spec Spec, field []byte) (string, error) {
	switch spec.Format {
	case FormatBCDLE:
		return decodeBCD(spec, reversed(field)), nil
	case FormatBCDBE:
		return decodeBCD(spec, field), nil
	case FormatText:
		return decodeText(spec, field)
	case FormatEnum:
		return decodeEnum(spec, field)
	default:
		return "", fmt.Errorf("%w: unsupported format %v", ErrInvalidParam, spec.Format)
	}
}

// ApplyMask ANDs field with mask in place, position by position
func ApplyMask(field, mask []byte) {
	for i := 0; i < len(field) && i < len(mask); i++ {
		field[i] &= mask[i]
	}
}

// Lookup returns the bytes of an enumeration entry.
// Underscores in the requested name also match hyphens, since clients
// cannot always send mode names that contain a hyphen.
func (s Spec) Lookup(name string) ([]byte, bool) {
	for _, v := range s.Values {
		if v.Name == name {
			return v.Bytes, true
		}
	}
	normalized := strings.ReplaceAll(name, "_", "-")
	for _, v := range s.Values {
		if v.Name == normalized {
			return v.Bytes, true
		}
	}
	return nil, false
}

func encodeEnum(spec Spec, name string) ([]byte, error) {
	b, ok := spec.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownValue, name)
	}
	return append([]byte(nil), b...), nil
}

func decodeEnum(spec Spec, field []byte) (string, error) {
	for _, v := range spec.Values {
		if bytes.Equal(v.Bytes, field) {
			return v.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownValue, verbose.Hex(field))
}

func encodeBCD(spec Spec, value string, width int) ([]byte, error) {
	digits, err := formatNumber(spec, value, width*2)
	if err != nil {
		return nil, err
	}

	bcd := make([]byte, width)
	for i := range bcd {
		hi := digits[i*2] - '0'
		lo := digits[i*2+1] - '0'
		bcd[i] = hi<<4 | lo
	}
	return bcd, nil
}

func decodeBCD(spec Spec, bcd []byte) string {
	var raw int64
	for _, b := range bcd {
		raw = raw*100 + int64(b>>4)*10 + int64(b&0x0F)
	}
	return strconv.FormatInt(scaleUp(spec, raw), 10)
}

func decodeText(spec Spec, field []byte) (string, error) {
	text := strings.TrimSpace(string(field))
	raw, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: not a number: %q", ErrInvalidParam, text)
	}
	return strconv.FormatInt(scaleUp(spec, raw), 10), nil
}

// formatNumber parses value, divides it by the step and renders it as
// exactly digitCount zero-padded decimal digits.
func formatNumber(spec Spec, value string, digitCount int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: number cannot be empty", ErrInvalidParam)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid number format %q", ErrInvalidParam, value)
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative number %d", ErrInvalidParam, n)
	}

	n = scaleDown(spec, n)

	digits := fmt.Sprintf("%0*d", digitCount, n)
	if len(digits) > digitCount {
		return "", fmt.Errorf("%w: %s has more than %d digits", ErrOverflow, digits, digitCount)
	}
	return digits, nil
}

func scaleUp(spec Spec, raw int64) int64 {
	if spec.Step == 0 {
		return raw
	}
	return truncate(float64(raw) * spec.Step)
}

func scaleDown(spec Spec, value int64) int64 {
	if spec.Step == 0 {
		return value
	}
	return truncate(float64(value) / spec.Step)
}

// truncate drops the fraction, absorbing floating point noise such as
// 1424999.9999999998 for a value that is an exact multiple of the step.
func truncate(x float64) int64 {
	if r := math.Round(x); math.Abs(x-r) < 1e-6 {
		return int64(r)
	}
	return int64(x)
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
