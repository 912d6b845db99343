package codec

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"Text", "enum", "BCD_LE", "bcd_be"} {
		_, err := ParseFormat(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseFormat("BCD")
	assert.Error(t, err)
}

func TestEncodeBCD(t *testing.T) {
	t.Run("Big Endian", func(t *testing.T) {
		b, err := Encode(Spec{Format: FormatBCDBE, Step: 10}, "14250000", 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x42, 0x50, 0x00}, b)
	})

	t.Run("Little Endian", func(t *testing.T) {
		b, err := Encode(Spec{Format: FormatBCDLE}, "145800000", 5)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x45, 0x01}, b)
	})

	t.Run("Overflow", func(t *testing.T) {
		_, err := Encode(Spec{Format: FormatBCDBE}, "123456", 2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOverflow))
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})

	t.Run("Not A Number", func(t *testing.T) {
		_, err := Encode(Spec{Format: FormatBCDLE}, "14.2", 5)
		assert.True(t, errors.Is(err, ErrInvalidParam))

		_, err = Encode(Spec{Format: FormatBCDLE}, "", 5)
		assert.True(t, errors.Is(err, ErrInvalidParam))

		_, err = Encode(Spec{Format: FormatBCDLE}, "-100", 5)
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})
}

func TestDecodeBCD(t *testing.T) {
	v, err := Decode(Spec{Format: FormatBCDLE}, []byte{0x00, 0x00, 0x80, 0x45, 0x01})
	require.NoError(t, err)
	assert.Equal(t, "145800000", v)

	v, err = Decode(Spec{Format: FormatBCDBE, Step: 10}, []byte{0x01, 0x42, 0x50, 0x00})
	require.NoError(t, err)
	assert.Equal(t, "14250000", v)
}

func TestNumericRoundTrip(t *testing.T) {
	formats := []Format{FormatBCDLE, FormatBCDBE, FormatText}
	steps := []float64{0, 1, 10, 100, 0.1, 2.5}
	values := []int64{0, 1, 7, 250, 14250000, 99999990}

	for _, format := range formats {
		for _, step := range steps {
			spec := Spec{Format: format, Step: step}
			for _, v := range values {
				s := step
				if s == 0 {
					s = 1
				}
				// only exact multiples of the step survive the division
				if s >= 1 && v%int64(s) != 0 || s == 2.5 && v*2%5 != 0 {
					continue
				}

				width := 5
				if format == FormatText {
					width = 10
				}
				encoded, err := Encode(spec, strconv.FormatInt(v, 10), width)
				if errors.Is(err, ErrOverflow) {
					continue
				}
				require.NoError(t, err, "%v step %v value %d", format, step, v)
				require.Len(t, encoded, width)

				decoded, err := Decode(spec, encoded)
				require.NoError(t, err)
				assert.Equal(t, strconv.FormatInt(v, 10), decoded, "%v step %v", format, step)
			}
		}
	}
}

func TestText(t *testing.T) {
	t.Run("Encode Zero Padded", func(t *testing.T) {
		b, err := Encode(Spec{Format: FormatText}, "7074000", 11)
		require.NoError(t, err)
		assert.Equal(t, "00007074000", string(b))
	})

	t.Run("Overflow", func(t *testing.T) {
		_, err := Encode(Spec{Format: FormatText}, "123", 2)
		assert.True(t, errors.Is(err, ErrOverflow))
	})

	t.Run("Decode With Step", func(t *testing.T) {
		v, err := Decode(Spec{Format: FormatText, Step: 10}, []byte("001425000"))
		require.NoError(t, err)
		assert.Equal(t, "14250000", v)
	})

	t.Run("Decode Garbage", func(t *testing.T) {
		_, err := Decode(Spec{Format: FormatText}, []byte("12A4"))
		assert.True(t, errors.Is(err, ErrInvalidParam))
	})
}

func TestEnum(t *testing.T) {
	spec := Spec{
		Format: FormatEnum,
		Values: []Value{
			{Name: "LSB", Bytes: []byte{0x00}},
			{Name: "USB", Bytes: []byte{0x01}},
			{Name: "PKT-USB", Bytes: []byte{0x0C}},
			{Name: "DIG", Bytes: []byte{0x0C}},
		},
	}

	t.Run("Round Trip", func(t *testing.T) {
		for _, v := range spec.Values[:3] {
			b, err := Encode(spec, v.Name, 1)
			require.NoError(t, err)
			name, err := Decode(spec, b)
			require.NoError(t, err)
			assert.Equal(t, v.Name, name)
		}
	})

	t.Run("Underscore Normalized", func(t *testing.T) {
		b, err := Encode(spec, "PKT_USB", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x0C}, b)
	})

	t.Run("First Entry Wins On Decode", func(t *testing.T) {
		name, err := Decode(spec, []byte{0x0C})
		require.NoError(t, err)
		assert.Equal(t, "PKT-USB", name)
	})

	t.Run("Unknown Name", func(t *testing.T) {
		_, err := Encode(spec, "AM", 1)
		assert.True(t, errors.Is(err, ErrUnknownValue))
	})

	t.Run("Unknown Pattern", func(t *testing.T) {
		_, err := Decode(spec, []byte{0x7F})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownValue))
		assert.Contains(t, err.Error(), "7F")
	})

	t.Run("Encoded Bytes Are A Copy", func(t *testing.T) {
		b, err := Encode(spec, "USB", 1)
		require.NoError(t, err)
		b[0] = 0xFF
		assert.Equal(t, []byte{0x01}, spec.Values[1].Bytes)
	})
}

func TestApplyMask(t *testing.T) {
	field := []byte{0xFF, 0x81}
	ApplyMask(field, []byte{0x0F, 0x80})
	assert.Equal(t, []byte{0x0F, 0x80}, field)
}
