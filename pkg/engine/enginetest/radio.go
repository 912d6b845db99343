// Package enginetest provides a command set and a simulated radio for tests
// of packages that drive the exchange engine.
package enginetest

import (
	"bytes"
	"sync"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/codec"
	"github.com/dougsko/catd/pkg/hardware"
)

// Model is the name under which CommandSet is registered
const Model = "TestRig"

// Document is a CI-V style command set for a radio at address 94
const Document = `
id: 9999
echo: true
bad_reply: FE FE E0 94 FA FD
cross_band_split: true

Simplex:
  setup:
    restriction: when_setting_up
    messages:
      - comment: split off
        command: FE FE 94 E0 0F 00 FD
        reply: FE FE E0 94 FB FD
        ignore_error: true
  read_rx_frequency:
    restriction: when_receiving
    messages:
      - command: FE FE 94 E0 03 FD
        reply: FE FE E0 94 03 xx xx xx xx xx FD
        reply_param: {format: BCD_LE}
  write_rx_frequency:
    restriction: when_receiving
    messages:
      - command: FE FE 94 E0 05 xx xx xx xx xx FD
        command_param: {format: BCD_LE}
        reply: FE FE E0 94 FB FD
  read_rx_mode:
    messages:
      - command: FE FE 94 E0 04 FD
        reply: FE FE E0 94 04 xx xx FD
        reply_param:
          format: Enum
          mask: FF 00
          values: {LSB: "00 00", USB: "01 00", FM: "05 00", PKT-USB: "0C 00"}
  read_tx_mode:
    messages:
      - command: FE FE 94 E0 04 FD
        reply: FE FE E0 94 04 xx xx FD
        reply_param:
          format: Enum
          mask: FF 00
          values: {LSB: "00 00", USB: "01 00", FM: "05 00", PKT-USB: "0C 00"}
      - comment: ptt as a second value
        command: FE FE 94 E0 1C 00 FD
        reply: FE FE E0 94 1C 00 xx FD
        reply_param:
          format: Enum
          values: {RX: "00", TX: "01"}
  write_rx_mode:
    restriction: when_receiving
    messages:
      - command: FE FE 94 E0 06 xx 01 FD
        command_param:
          format: Enum
          values: {LSB: "00", USB: "01", FM: "05", PKT-USB: "0C"}
        reply: FE FE E0 94 FB FD
  read_tx_frequency:
    restriction: when_transmitting
    messages:
      - comment: selected vfo
        command: FE FE 94 E0 25 00 FD
        reply: FE FE E0 94 25 00 xx xx xx xx xx FD
        reply_param: {format: BCD_LE}
    alt_messages:
      - command: FE FE 94 E0 03 FD
        reply: FE FE E0 94 03 xx xx xx xx xx FD
        reply_param: {format: BCD_LE}
  read_ptt:
    messages:
      - command: FE FE 94 E0 1C 00 FD
        reply: FE FE E0 94 1C 00 xx FD
        reply_param:
          format: Enum
          values: {"OFF": "00", "ON": "01"}
  write_ptt_on:
    messages:
      - command: FE FE 94 E0 1C 00 01 FD
        reply: FE FE E0 94 FB FD
  write_ptt_off:
    messages:
      - command: FE FE 94 E0 1C 00 00 FD
        reply: FE FE E0 94 FB FD

Split:
  read_rx_frequency:
    messages:
      - command: FE FE 94 E0 03 FD
        reply: FE FE E0 94 03 xx xx xx xx xx FD
        reply_param: {format: BCD_LE}
`

// CommandSet parses Document
func CommandSet() *catset.CommandSet {
	cs, err := catset.Parse([]byte(Document))
	if err != nil {
		panic(err)
	}
	return cs
}

var frequencySpec = codec.Spec{Format: codec.FormatBCDLE}

var (
	replyOK  = []byte{0xFE, 0xFE, 0xE0, 0x94, 0xFB, 0xFD}
	replyBad = []byte{0xFE, 0xFE, 0xE0, 0x94, 0xFA, 0xFD}
)

// Radio simulates a CI-V transceiver that echoes every frame
type Radio struct {
	mutex sync.Mutex

	Frequency string
	Mode      byte
	PTT       bool

	// Reject lists command bytes answered with the bad reply
	Reject map[byte]bool
	// Silent lists command bytes that get no reply
	Silent map[byte]bool
	// Garble lists command bytes answered with a reply that matches nothing
	Garble map[byte]bool
}

// NewRadio creates a radio on 14.074 MHz USB receiving
func NewRadio() *Radio {
	return &Radio{
		Frequency: "14074000",
		Mode:      0x01,
		Reject:    map[byte]bool{},
		Silent:    map[byte]bool{},
		Garble:    map[byte]bool{},
	}
}

// Responder returns the radio as a serial responder including the echo
func (r *Radio) Responder() hardware.Responder {
	return hardware.Echo(r.reply)
}

// Port returns a mock port wired to the radio
func (r *Radio) Port() *hardware.MockPort {
	return hardware.NewMockPort(r.Responder())
}

func (r *Radio) reply(w []byte) []byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(w) < 6 || !bytes.HasPrefix(w, []byte{0xFE, 0xFE, 0x94, 0xE0}) {
		return nil
	}
	cmd := w[4]
	switch {
	case r.Silent[cmd]:
		return nil
	case r.Reject[cmd]:
		return replyBad
	case r.Garble[cmd]:
		return []byte{0xFE, 0xFE, 0xE0, 0x94, 0x77, 0x77, 0x77, 0x77, 0x77, 0x77, 0x77, 0x77, 0x77, 0xFD}
	}

	switch cmd {
	case 0x03:
		return r.frequencyReply([]byte{0xFE, 0xFE, 0xE0, 0x94, 0x03})
	case 0x25:
		return r.frequencyReply([]byte{0xFE, 0xFE, 0xE0, 0x94, 0x25, 0x00})
	case 0x05:
		value, err := codec.Decode(frequencySpec, w[5:10])
		if err != nil {
			return replyBad
		}
		r.Frequency = value
		return replyOK
	case 0x04:
		return []byte{0xFE, 0xFE, 0xE0, 0x94, 0x04, r.Mode, 0x01, 0xFD}
	case 0x06:
		r.Mode = w[5]
		return replyOK
	case 0x1C:
		if len(w) == 7 {
			ptt := byte(0)
			if r.PTT {
				ptt = 1
			}
			return []byte{0xFE, 0xFE, 0xE0, 0x94, 0x1C, 0x00, ptt, 0xFD}
		}
		r.PTT = w[6] == 0x01
		return replyOK
	case 0x0F:
		return replyOK
	}
	return replyBad
}

func (r *Radio) frequencyReply(prefix []byte) []byte {
	field, err := codec.Encode(frequencySpec, r.Frequency, 5)
	if err != nil {
		return nil
	}
	out := append(append([]byte(nil), prefix...), field...)
	return append(out, 0xFD)
}

// SetFrequency changes the dial frequency
func (r *Radio) SetFrequency(hz string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Frequency = hz
}

// CurrentFrequency returns the dial frequency
func (r *Radio) CurrentFrequency() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Frequency
}

// Transmitting returns the PTT state
func (r *Radio) Transmitting() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.PTT
}

// SetReject makes the radio reject a command byte
func (r *Radio) SetReject(cmd byte, reject bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Reject[cmd] = reject
}

// SetSilent makes the radio ignore a command byte
func (r *Radio) SetSilent(cmd byte, silent bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Silent[cmd] = silent
}

// SetGarble makes the radio answer a command byte with noise
func (r *Radio) SetGarble(cmd byte, garble bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Garble[cmd] = garble
}
