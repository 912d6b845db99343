package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/codec"
	"github.com/dougsko/catd/pkg/engine/enginetest"
	"github.com/dougsko/catd/pkg/hardware"
)

func testTiming() Timing {
	return Timing{
		ReadTimeout:   20 * time.Millisecond,
		ResyncWindow:  5 * time.Millisecond,
		PendingWindow: time.Millisecond,
	}
}

// newTestSender returns a sender in Simplex mode talking to a simulated radio
func newTestSender(t *testing.T) (*Sender, *enginetest.Radio, *hardware.MockPort) {
	t.Helper()

	radio := enginetest.NewRadio()
	port := radio.Port()
	link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock", BaudRate: 19200}, port.Opener())
	require.NoError(t, link.Open())

	session := NewSession(enginetest.Model, enginetest.CommandSet())
	sender := NewSender(link, session, testTiming())
	require.NoError(t, sender.Setup(catset.Simplex))
	port.ClearWrites()
	return sender, radio, port
}

func TestSenderSetup(t *testing.T) {
	t.Run("Runs Setup Command", func(t *testing.T) {
		radio := enginetest.NewRadio()
		port := radio.Port()
		link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock"}, port.Opener())
		require.NoError(t, link.Open())

		sender := NewSender(link, NewSession(enginetest.Model, enginetest.CommandSet()), testTiming())
		require.NoError(t, sender.Setup(catset.Simplex))

		writes := port.Writes()
		require.Len(t, writes, 1)
		assert.Equal(t, []byte{0xFE, 0xFE, 0x94, 0xE0, 0x0F, 0x00, 0xFD}, writes[0])

		mode, ok := sender.Session().Mode()
		assert.True(t, ok)
		assert.Equal(t, catset.Simplex, mode)
	})

	t.Run("Ignored Setup Error", func(t *testing.T) {
		radio := enginetest.NewRadio()
		radio.SetGarble(0x0F, true)
		port := radio.Port()
		link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock"}, port.Opener())
		require.NoError(t, link.Open())

		sender := NewSender(link, NewSession(enginetest.Model, enginetest.CommandSet()), testTiming())
		assert.NoError(t, sender.Setup(catset.Simplex))
		assert.Equal(t, 0, port.Pending())
	})

	t.Run("Ignored Setup Rejection", func(t *testing.T) {
		radio := enginetest.NewRadio()
		radio.SetReject(0x0F, true)
		port := radio.Port()
		link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock"}, port.Opener())
		require.NoError(t, link.Open())

		sender := NewSender(link, NewSession(enginetest.Model, enginetest.CommandSet()), testTiming())
		require.NoError(t, sender.Setup(catset.Simplex))
		assert.Equal(t, 0, port.Pending())

		mode, ok := sender.Session().Mode()
		assert.True(t, ok)
		assert.Equal(t, catset.Simplex, mode)

		value, err := sender.SendCommand(catset.ReadRxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "14074000", value)
	})

	t.Run("Group Without Setup Command", func(t *testing.T) {
		radio := enginetest.NewRadio()
		port := radio.Port()
		link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock"}, port.Opener())
		require.NoError(t, link.Open())

		sender := NewSender(link, NewSession(enginetest.Model, enginetest.CommandSet()), testTiming())
		require.NoError(t, sender.Setup(catset.Split))
		assert.Empty(t, port.Writes())
	})

	t.Run("Unsupported Mode", func(t *testing.T) {
		sender := NewSender(nil, NewSession(enginetest.Model, enginetest.CommandSet()), testTiming())
		err := sender.Setup(catset.Duplex)
		assert.ErrorIs(t, err, ErrUnsupportedMode)
	})
}

func TestSendCommand(t *testing.T) {
	t.Run("Read Frequency", func(t *testing.T) {
		sender, radio, _ := newTestSender(t)
		radio.SetFrequency("145800000")

		value, err := sender.SendCommand(catset.ReadRxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "145800000", value)
	})

	t.Run("Write Then Read Frequency", func(t *testing.T) {
		sender, radio, port := newTestSender(t)

		value, err := sender.SendCommand(catset.WriteRxFrequency, "14250000")
		require.NoError(t, err)
		assert.Empty(t, value)
		assert.Equal(t, "14250000", radio.CurrentFrequency())
		assert.Equal(t, []byte{0xFE, 0xFE, 0x94, 0xE0, 0x05, 0x00, 0x00, 0x25, 0x14, 0x00, 0xFD}, port.Writes()[0])

		value, err = sender.SendCommand(catset.ReadRxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "14250000", value)
	})

	t.Run("Masked Enum Reply", func(t *testing.T) {
		sender, _, _ := newTestSender(t)

		_, err := sender.SendCommand(catset.WriteRxMode, "PKT_USB")
		require.NoError(t, err)

		value, err := sender.SendCommand(catset.ReadRxMode, "")
		require.NoError(t, err)
		assert.Equal(t, "PKT-USB", value)
	})

	t.Run("First Value Wins", func(t *testing.T) {
		sender, _, port := newTestSender(t)

		value, err := sender.SendCommand(catset.ReadTxMode, "")
		require.NoError(t, err)
		assert.Equal(t, "USB", value)
		assert.Len(t, port.Writes(), 2)
	})

	t.Run("Rejected With Alternate Messages", func(t *testing.T) {
		sender, radio, port := newTestSender(t)
		radio.SetReject(0x25, true)
		radio.SetFrequency("7074000")

		value, err := sender.SendCommand(catset.ReadTxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "7074000", value)

		writes := port.Writes()
		require.Len(t, writes, 2)
		assert.Equal(t, byte(0x25), writes[0][4])
		assert.Equal(t, byte(0x03), writes[1][4])
	})

	t.Run("Alternate Messages Unused Without Rejection", func(t *testing.T) {
		sender, _, port := newTestSender(t)

		_, err := sender.SendCommand(catset.ReadTxFrequency, "")
		require.NoError(t, err)
		assert.Len(t, port.Writes(), 1)
	})

	t.Run("Rejected Without Alternate Messages", func(t *testing.T) {
		sender, radio, _ := newTestSender(t)
		radio.SetReject(0x05, true)

		_, err := sender.SendCommand(catset.WriteRxFrequency, "14250000")
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, "14074000", radio.CurrentFrequency())
	})

	t.Run("Timeout", func(t *testing.T) {
		sender, radio, _ := newTestSender(t)
		radio.SetSilent(0x03, true)

		_, err := sender.SendCommand(catset.ReadRxFrequency, "")
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("Mismatch Resynchronizes", func(t *testing.T) {
		sender, radio, port := newTestSender(t)
		radio.SetGarble(0x03, true)

		_, err := sender.SendCommand(catset.ReadRxFrequency, "")
		assert.ErrorIs(t, err, ErrMismatch)
		assert.Equal(t, 0, port.Pending())

		radio.SetGarble(0x03, false)
		value, err := sender.SendCommand(catset.ReadRxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "14074000", value)
	})

	t.Run("Invalid Parameter", func(t *testing.T) {
		sender, _, port := newTestSender(t)

		_, err := sender.SendCommand(catset.WriteRxFrequency, "fourteen")
		assert.ErrorIs(t, err, codec.ErrInvalidParam)

		_, err = sender.SendCommand(catset.WriteRxMode, "SSTV")
		assert.ErrorIs(t, err, codec.ErrInvalidParam)
		assert.Empty(t, port.Writes())
	})

	t.Run("Not Defined", func(t *testing.T) {
		sender := NewSender(nil, NewSession(enginetest.Model, enginetest.CommandSet()), testTiming())
		_, err := sender.SendCommand(catset.ReadRxFrequency, "")
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("Closed Link", func(t *testing.T) {
		radio := enginetest.NewRadio()
		port := radio.Port()
		link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock"}, port.Opener())
		session := NewSession(enginetest.Model, enginetest.CommandSet())
		require.NoError(t, session.Select(catset.Simplex))

		_, err := NewSender(link, session, testTiming()).SendCommand(catset.ReadRxFrequency, "")
		assert.ErrorIs(t, err, hardware.ErrNotOpen)
	})
}

func TestEchoHandling(t *testing.T) {
	t.Run("Corrupt Echo Is Forgiven", func(t *testing.T) {
		sender, radio, port := newTestSender(t)
		inner := radio.Responder()
		port.SetResponder(func(w []byte) []byte {
			out := inner(w)
			out[2] ^= 0xFF
			return out
		})

		value, err := sender.SendCommand(catset.ReadRxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "14074000", value)
	})

	t.Run("Stale Bytes Are Drained", func(t *testing.T) {
		sender, _, port := newTestSender(t)
		port.Inject([]byte{0xFE, 0xFE, 0x00, 0x94, 0x00, 0xFD})

		value, err := sender.SendCommand(catset.ReadRxFrequency, "")
		require.NoError(t, err)
		assert.Equal(t, "14074000", value)
	})
}

func TestPTTState(t *testing.T) {
	sender, radio, _ := newTestSender(t)
	session := sender.Session()

	value, err := sender.SendCommand(catset.ReadPTT, "")
	require.NoError(t, err)
	assert.Equal(t, "0", value)
	assert.False(t, session.Transmitting())

	_, err = sender.SendCommand(catset.WritePTTOn, "ON")
	require.NoError(t, err)
	assert.True(t, session.Transmitting())
	assert.True(t, radio.Transmitting())

	value, err = sender.SendCommand(catset.ReadPTT, "")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	_, err = sender.SendCommand(catset.WritePTTOff, "OFF")
	require.NoError(t, err)
	assert.False(t, session.Transmitting())

	// the radio changed state behind our back
	radio.PTT = true
	value, err = sender.SendCommand(catset.ReadPTT, "")
	require.NoError(t, err)
	assert.Equal(t, "1", value)
	assert.True(t, session.Transmitting())
}

func TestSessionAvailability(t *testing.T) {
	session := NewSession(enginetest.Model, enginetest.CommandSet())
	assert.False(t, session.IsAvailable(catset.ReadRxFrequency))

	require.NoError(t, session.Select(catset.Simplex))
	assert.True(t, session.IsAvailable(catset.ReadRxFrequency))
	assert.False(t, session.IsAvailable(catset.ReadTxFrequency))
	assert.True(t, session.IsAvailable(catset.ReadPTT))
	assert.False(t, session.IsAvailable(catset.Setup))

	session.SetTransmitting(true)
	assert.False(t, session.IsAvailable(catset.ReadRxFrequency))
	assert.False(t, session.IsAvailable(catset.WriteRxMode))
	assert.True(t, session.IsAvailable(catset.ReadTxFrequency))
	assert.True(t, session.IsAvailable(catset.WritePTTOff))

	status := session.Status()
	assert.Equal(t, enginetest.Model, status.Model)
	assert.Equal(t, "Simplex", status.Mode)
	assert.True(t, status.Transmitting)
}
