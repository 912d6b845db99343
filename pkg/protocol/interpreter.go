package protocol

import (
	"math"
	"strconv"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/engine"
	"github.com/dougsko/catd/pkg/logging"
)

// Interpreter executes rigctld-style request lines against the radio.
// Callers must not run Execute concurrently.
type Interpreter struct {
	sender *engine.Sender
}

// NewInterpreter creates an interpreter driving sender
func NewInterpreter(sender *engine.Sender) *Interpreter {
	return &Interpreter{sender: sender}
}

// Session returns the radio session
func (i *Interpreter) Session() *engine.Session {
	return i.sender.Session()
}

// Execute runs one request line and returns the response line without its newline
func (i *Interpreter) Execute(line string) string {
	cmd := ParseCommand(line)
	if cmd == nil {
		return Report(RprtInvalidParam)
	}
	argc := len(cmd.Args)

	switch cmd.Name {
	case "a":
		session := i.Session()
		return catset.NewCapabilities(session.Model(), session.CommandSet()).JSON()
	case "f":
		return i.send(catset.ReadRxFrequency, "")
	case "i":
		return i.send(catset.ReadTxFrequency, "")
	case "m":
		return i.send(catset.ReadRxMode, "")
	case "x":
		return i.send(catset.ReadTxMode, "")
	case "t":
		return i.send(catset.ReadPTT, "")

	case "F", "I":
		if argc != 1 {
			break
		}
		hz, ok := parseInt(cmd.Args[0])
		if !ok {
			break
		}
		command := catset.WriteRxFrequency
		if cmd.Name == "I" {
			command = catset.WriteTxFrequency
		}
		return i.send(command, strconv.FormatInt(hz, 10))

	case "M", "X":
		// the passband argument is accepted and ignored
		if argc != 2 {
			break
		}
		if _, ok := parseInt(cmd.Args[1]); !ok {
			break
		}
		command := catset.WriteRxMode
		if cmd.Name == "X" {
			command = catset.WriteTxMode
		}
		return i.send(command, cmd.Args[0])

	case "T":
		if argc != 1 {
			break
		}
		switch cmd.Args[0] {
		case "0":
			return i.send(catset.WritePTTOff, "OFF")
		case "1":
			return i.send(catset.WritePTTOn, "ON")
		}

	case "S":
		if argc != 2 {
			break
		}
		switch {
		case cmd.Args[0] == "0":
			return i.setup(catset.Simplex)
		case cmd.Args[0] == "1" && cmd.Args[1] != "Sub":
			return i.setup(catset.Split)
		case cmd.Args[0] == "1":
			return i.setup(catset.Duplex)
		}

	case "U":
		switch {
		case argc == 2 && cmd.Args[0] == "SATMODE" && cmd.Args[1] == "1":
			return i.setup(catset.Duplex)
		case argc == 1:
			if mode, ok := catset.ParseOperatingMode(cmd.Args[0]); ok {
				return i.setup(mode)
			}
		case argc == 2 && (cmd.Args[0] == "SATMODE" || cmd.Args[0] == "DUAL_WATCH"):
			return ignore()
		}

	case "V":
		return ignore()
	}

	return Report(RprtNotAvailable)
}

func ignore() string {
	logging.Trace("protocol", "  Command ignored")
	return Report(RprtOK)
}

func (i *Interpreter) setup(mode catset.OperatingMode) string {
	if err := i.sender.Setup(mode); err != nil {
		logging.Errorf("protocol", "Setup command failed: %v", err)
		return Report(RprtInvalidParam)
	}
	return Report(RprtOK)
}

// send runs a read or write command if the active group permits it in the current PTT state
func (i *Interpreter) send(command catset.Command, param string) string {
	if !i.Session().IsAvailable(command) {
		logging.Debugf("protocol", "  %s is not available", command)
		return Report(RprtNotAvailable)
	}

	value, err := i.sender.SendCommand(command, param)
	if err != nil {
		code := CodeFor(err)
		logging.Error("protocol", "Command failed: "+err.Error(), map[string]interface{}{
			"command": command,
			"code":    code,
		})
		return Report(code)
	}
	if value == "" {
		return Report(RprtOK)
	}
	return value
}

// parseInt accepts integers and integral decimals such as "14250000.000000"
func parseInt(s string) (int64, bool) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
