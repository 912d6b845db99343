package catset

import (
	"fmt"
	"strings"

	"github.com/dougsko/catd/pkg/codec"
)

// OperatingMode selects which command group of a command set is active
type OperatingMode int

const (
	Duplex OperatingMode = iota
	Split
	Simplex
	Transmitter
	Receiver
)

// OperatingModes lists every operating mode in document order
var OperatingModes = []OperatingMode{Duplex, Split, Simplex, Transmitter, Receiver}

var operatingModeNames = [...]string{"Duplex", "Split", "Simplex", "Transmitter", "Receiver"}

func (m OperatingMode) String() string {
	if m >= 0 && int(m) < len(operatingModeNames) {
		return operatingModeNames[m]
	}
	return fmt.Sprintf("OperatingMode(%d)", int(m))
}

// ParseOperatingMode parses a mode name, ignoring case
func ParseOperatingMode(name string) (OperatingMode, bool) {
	for _, m := range OperatingModes {
		if strings.EqualFold(m.String(), name) {
			return m, true
		}
	}
	return 0, false
}

// Command identifies a logical CAT operation
type Command int

const (
	Setup Command = iota
	ReadRxFrequency
	ReadTxFrequency
	ReadRxMode
	ReadTxMode
	ReadPTT
	WriteRxFrequency
	WriteTxFrequency
	WriteRxMode
	WriteTxMode
	WritePTTOff
	WritePTTOn
)

// Commands lists every command in canonical order
var Commands = []Command{
	Setup,
	ReadRxFrequency, ReadTxFrequency, ReadRxMode, ReadTxMode, ReadPTT,
	WriteRxFrequency, WriteTxFrequency, WriteRxMode, WriteTxMode, WritePTTOff, WritePTTOn,
}

var commandNames = [...]string{
	"setup",
	"read_rx_frequency", "read_tx_frequency", "read_rx_mode", "read_tx_mode", "read_ptt",
	"write_rx_frequency", "write_tx_frequency", "write_rx_mode", "write_tx_mode", "write_ptt_off", "write_ptt_on",
}

func (c Command) String() string {
	if c >= 0 && int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// ParseCommand parses a command name as written in documents
func ParseCommand(name string) (Command, bool) {
	for _, c := range Commands {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// Restriction limits when a command may be invoked
type Restriction int

const (
	RestrictionNone Restriction = iota
	WhenReceiving
	WhenTransmitting
	WhenSettingUp
)

var restrictionNames = [...]string{"none", "when_receiving", "when_transmitting", "when_setting_up"}

func (r Restriction) String() string {
	if r >= 0 && int(r) < len(restrictionNames) {
		return restrictionNames[r]
	}
	return fmt.Sprintf("Restriction(%d)", int(r))
}

// ParseRestriction parses a restriction name
func ParseRestriction(name string) (Restriction, bool) {
	for i, n := range restrictionNames {
		if n == name {
			return Restriction(i), true
		}
	}
	return 0, false
}

// AllowedWhileReceiving reports whether the restriction permits use on receive
func (r Restriction) AllowedWhileReceiving() bool {
	return r == RestrictionNone || r == WhenReceiving
}

// AllowedWhileTransmitting reports whether the restriction permits use on transmit
func (r Restriction) AllowedWhileTransmitting() bool {
	return r == RestrictionNone || r == WhenTransmitting
}

// CommandSet describes the CAT protocol of one radio model
type CommandSet struct {
	ID              int
	Echo            bool
	DefaultBaudRate int
	CrossBandSplit  bool

	// BadReply is the pattern a radio sends instead of a reply when it rejects a command
	BadReply []byte

	groups [len(operatingModeNames)]CommandGroup
}

// Group returns the command group of an operating mode, or nil
func (cs *CommandSet) Group(mode OperatingMode) CommandGroup {
	if mode < 0 || int(mode) >= len(cs.groups) {
		return nil
	}
	return cs.groups[mode]
}

// SetGroup installs the command group of an operating mode
func (cs *CommandSet) SetGroup(mode OperatingMode, group CommandGroup) {
	cs.groups[mode] = group
}

// CommandGroup maps commands to the messages that implement them
type CommandGroup map[Command]*CommandInfo

// CommandInfo is one logical command
type CommandInfo struct {
	Messages    []Message
	AltMessages []Message
	Restriction Restriction
}

// Message is one exchange with the radio
type Message struct {
	Comment      string
	Command      Template
	Reply        *Template
	CommandParam *ParamSpec
	ReplyParam   *ParamSpec
	IgnoreError  bool
}

// ParamSpec describes a parameter field inside a command or reply
type ParamSpec struct {
	codec.Spec

	// Start and Length override the placeholder run when set
	Start  *int
	Length *int

	// Mask is ANDed into reply bytes before decoding
	Mask []byte
}

// Field returns the position and size of the parameter within t
func (p *ParamSpec) Field(t Template) (start, length int) {
	start = t.PlaceholderStart()
	if p.Start != nil {
		start = *p.Start
	}
	length = t.PlaceholderCount()
	if p.Length != nil {
		length = *p.Length
	}
	return start, length
}
