package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dougsko/catd/pkg/codec"
	"github.com/dougsko/catd/pkg/engine"
	"github.com/dougsko/catd/pkg/hardware"
)

// RPRT status codes returned to rig-control clients
const (
	RprtOK           = 0
	RprtInvalidParam = -1
	RprtTimeout      = -5
	RprtIOError      = -6
	RprtInternal     = -7
	RprtRejected     = -9
	RprtNotAvailable = -11
)

var rprtDescriptions = map[int]string{
	RprtOK:           "OK",
	RprtInvalidParam: "invalid parameter",
	RprtTimeout:      "I/O timeout",
	RprtIOError:      "I/O error",
	RprtInternal:     "internal error",
	RprtRejected:     "command rejected by the radio",
	RprtNotAvailable: "function not available",
}

// Report formats a status line
func Report(code int) string {
	return fmt.Sprintf("RPRT %d", code)
}

// Describe annotates a response line for the log
func Describe(response string) string {
	var code int
	if _, err := fmt.Sscanf(response, "RPRT %d", &code); err == nil && strings.HasPrefix(response, "RPRT ") {
		if desc, ok := rprtDescriptions[code]; ok {
			return fmt.Sprintf("'%s' (%s)", response, desc)
		}
		return fmt.Sprintf("'%s' (Unknown RPRT code)", response)
	}
	return fmt.Sprintf("'%s'", response)
}

// CodeFor maps a command failure to its status code
func CodeFor(err error) int {
	switch {
	case err == nil:
		return RprtOK
	case errors.Is(err, codec.ErrInvalidParam), errors.Is(err, engine.ErrUnsupportedMode):
		return RprtInvalidParam
	case errors.Is(err, engine.ErrTimeout):
		return RprtTimeout
	case errors.Is(err, hardware.ErrNotOpen), errors.Is(err, hardware.ErrIO):
		return RprtIOError
	case errors.Is(err, engine.ErrRejected), errors.Is(err, engine.ErrMismatch):
		return RprtRejected
	case errors.Is(err, engine.ErrNotAvailable):
		return RprtNotAvailable
	default:
		return RprtInternal
	}
}

// Command is one request line split into its code and arguments
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a request line on whitespace. It returns nil for a blank line.
func ParseCommand(text string) *Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return &Command{Name: fields[0], Args: fields[1:]}
}

// Arg returns argument i or an empty string
func (c *Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Status represents the current daemon status
type Status struct {
	Model        string    `json:"model"`
	Device       string    `json:"device"`
	BaudRate     int       `json:"baud_rate"`
	Mode         string    `json:"mode,omitempty"`
	Transmitting bool      `json:"transmitting"`
	SerialOpen   bool      `json:"serial_open"`
	Listening    bool      `json:"listening"`
	Clients      int       `json:"clients"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	Version      string    `json:"version"`
}

// String renders the status as JSON
func (s *Status) String() string {
	data, _ := json.Marshal(s)
	return string(data)
}
