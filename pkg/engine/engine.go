package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/codec"
	"github.com/dougsko/catd/pkg/logging"
	"github.com/dougsko/catd/pkg/verbose"
)

var (
	// ErrRejected means the radio answered with its bad reply pattern
	ErrRejected = errors.New("command rejected by the radio")
	// ErrTimeout means the radio sent fewer bytes than expected
	ErrTimeout = errors.New("timeout waiting for reply")
	// ErrMismatch means the reply did not match its template
	ErrMismatch = errors.New("reply does not match the expected pattern")
	// ErrNotAvailable means the command is not defined in the active group
	ErrNotAvailable = errors.New("command not available")
	// ErrUnsupportedMode means the radio has no command group for an operating mode
	ErrUnsupportedMode = errors.New("operating mode not supported")
)

const (
	// resyncLimit is the most bytes discarded after a mismatched reply
	resyncLimit = 100
	// pendingLimit is the most stale bytes discarded before a command is sent
	pendingLimit = 1024
)

// Link is the serial channel used by the sender
type Link interface {
	Write(b []byte) error
	ReadFull(buf []byte, timeout time.Duration) (int, error)
	Drain(max int, window time.Duration) ([]byte, error)
}

// Timing holds the serial timeouts of an exchange
type Timing struct {
	ReadTimeout   time.Duration // per read
	ResyncWindow  time.Duration // draining after a mismatch
	PendingWindow time.Duration // collecting stale bytes before a send
}

// DefaultTiming returns one second reads and a 100 ms resync window
func DefaultTiming() Timing {
	return Timing{
		ReadTimeout:   time.Second,
		ResyncWindow:  100 * time.Millisecond,
		PendingWindow: 10 * time.Millisecond,
	}
}

// Status classifies the result of one message exchange
type Status int

const (
	StatusOK Status = iota
	StatusRejected
	StatusTimeout
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRejected:
		return "rejected"
	case StatusTimeout:
		return "timeout"
	case StatusMismatch:
		return "mismatch"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the result of a message or message sequence
type Outcome struct {
	Status   Status
	Value    string
	HasValue bool
	// Raw holds the bytes received when the exchange failed
	Raw []byte
}

func (o Outcome) err() error {
	switch o.Status {
	case StatusRejected:
		return ErrRejected
	case StatusTimeout:
		return ErrTimeout
	case StatusMismatch:
		return ErrMismatch
	}
	return nil
}

// Sender executes logical commands of the active command group over a link.
// It is not safe for concurrent use; callers hold one lock per command.
type Sender struct {
	link    Link
	session *Session
	timing  Timing
}

// NewSender creates a sender for a session
func NewSender(link Link, session *Session, timing Timing) *Sender {
	return &Sender{link: link, session: session, timing: timing}
}

// Session returns the session the sender operates on
func (s *Sender) Session() *Session {
	return s.session
}

// Setup selects the command group of mode and runs its setup command
func (s *Sender) Setup(mode catset.OperatingMode) error {
	logging.Infof("engine", "Setting up radio '%s' (%s)", s.session.Model(), mode)
	if err := s.session.Select(mode); err != nil {
		return err
	}
	if s.session.Info(catset.Setup) == nil {
		logging.Infof("engine", "No setup command defined for %s mode", mode)
		return nil
	}
	_, err := s.send(catset.Setup, "", true)
	return err
}

// SendCommand runs one logical command and returns its decoded value, which
// is empty for commands without a reply parameter.
func (s *Sender) SendCommand(command catset.Command, param string) (string, error) {
	return s.send(command, param, false)
}

func (s *Sender) send(command catset.Command, param string, isSetup bool) (string, error) {
	info := s.session.Info(command)
	if info == nil {
		return "", fmt.Errorf("%w: %s is not defined", ErrNotAvailable, command)
	}

	message := fmt.Sprintf("  Sending command: %s %s", command, param)
	if isSetup {
		logging.Info("engine", strings.TrimSpace(message))
	} else {
		logging.Debug("engine", strings.TrimSpace(message))
	}

	outcome, err := s.sendMessages(info.Messages, param)
	if err == nil && outcome.Status == StatusRejected && info.AltMessages != nil {
		logging.Debugf("engine", "  %s rejected, sending alternate messages", command)
		outcome, err = s.sendMessages(info.AltMessages, param)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", command, err)
	}
	if err := outcome.err(); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", command, err, verbose.Hex(outcome.Raw))
	}

	value := outcome.Value
	switch command {
	case catset.WritePTTOff:
		s.session.SetTransmitting(false)
	case catset.WritePTTOn:
		s.session.SetTransmitting(true)
	case catset.ReadPTT:
		if outcome.HasValue {
			tx := value == "ON" || value == "1"
			s.session.SetTransmitting(tx)
			if tx {
				value = "1"
			} else {
				value = "0"
			}
		}
	}

	if outcome.HasValue {
		logging.Debugf("engine", "  Returned value: %s", value)
	}
	return value, nil
}

// sendMessages sends every message of a sequence. The first decoded value
// wins; a failed message stops the sequence.
func (s *Sender) sendMessages(messages []catset.Message, param string) (Outcome, error) {
	result := Outcome{Status: StatusOK}
	for i := range messages {
		outcome, err := s.sendMessage(&messages[i], param)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Status != StatusOK {
			return outcome, nil
		}
		if outcome.HasValue && !result.HasValue {
			result = outcome
		}
	}
	return result, nil
}

func (s *Sender) sendMessage(m *catset.Message, param string) (Outcome, error) {
	cs := s.session.CommandSet()

	pending, err := s.link.Drain(pendingLimit, s.timing.PendingWindow)
	if err != nil {
		return Outcome{}, err
	}
	if len(pending) > 0 {
		logging.Warn("engine", verbose.Bytes("Unexpected bytes received", pending, ""))
	}

	var encoded []byte
	start := -1
	if m.CommandParam != nil {
		var width int
		start, width = m.CommandParam.Field(m.Command)
		if encoded, err = codec.Encode(m.CommandParam.Spec, param, width); err != nil {
			return Outcome{}, err
		}
	}
	data := m.Command.Render(encoded, start)

	logging.Trace("engine", verbose.Bytes("    Sending", data, m.Comment))
	if err := s.link.Write(data); err != nil {
		return Outcome{}, err
	}

	if cs.Echo {
		if err := s.skipEcho(data); err != nil {
			return Outcome{}, err
		}
	}

	return s.receive(m, cs.BadReply)
}

// skipEcho consumes the radio's copy of data. A missing or corrupt echo is
// logged and otherwise ignored.
func (s *Sender) skipEcho(data []byte) error {
	echo := make([]byte, len(data))
	n, err := s.link.ReadFull(echo, s.timing.ReadTimeout)
	if err != nil {
		return err
	}
	if n < len(data) {
		logging.Warn("engine", verbose.Bytes("Echo timeout, received", echo[:n], ""))
	} else if !bytes.Equal(echo, data) {
		logging.Warn("engine", verbose.Bytes("Invalid echo", echo, ""))
	}
	return nil
}

func (s *Sender) receive(m *catset.Message, badReply []byte) (Outcome, error) {
	if m.Reply == nil {
		return Outcome{Status: StatusOK}, nil
	}

	reply := make([]byte, m.Reply.Len())
	got := 0
	timedOut := false

	// a bad reply is only recognizable when it fits in the expected reply
	if len(badReply) > 0 && len(badReply) <= len(reply) {
		n, err := s.link.ReadFull(reply[:len(badReply)], s.timing.ReadTimeout)
		if err != nil {
			return Outcome{}, err
		}
		got = n
		timedOut = n < len(badReply)
		if !timedOut && bytes.Equal(reply[:n], badReply) {
			if m.IgnoreError {
				logging.Debug("engine", verbose.Bytes("    Ignored bad reply", reply[:n], m.Comment))
				return Outcome{Status: StatusOK}, nil
			}
			logging.Debug("engine", verbose.Bytes("    Received", reply[:n], "bad reply"))
			return Outcome{Status: StatusRejected, Raw: append([]byte(nil), reply[:n]...)}, nil
		}
	}

	if !timedOut {
		n, err := s.link.ReadFull(reply[got:], s.timing.ReadTimeout)
		if err != nil {
			return Outcome{}, err
		}
		got += n
	}

	if got < len(reply) {
		logging.Debug("engine", verbose.Bytes("    Timeout, received", reply[:got], m.Comment))
		return Outcome{Status: StatusTimeout, Raw: append([]byte(nil), reply[:got]...)}, nil
	}
	logging.Trace("engine", verbose.Bytes("    Received", reply, m.Comment))

	if !m.Reply.Matches(reply) {
		extra, err := s.link.Drain(resyncLimit, s.timing.ResyncWindow)
		if err != nil {
			return Outcome{}, err
		}
		raw := append(append([]byte(nil), reply...), extra...)
		if m.IgnoreError {
			logging.Debug("engine", verbose.Bytes("    Ignored invalid reply", raw, m.Comment))
			return Outcome{Status: StatusOK}, nil
		}
		logging.Debug("engine", verbose.Bytes("    Invalid reply", raw, "expected "+m.Reply.String()))
		return Outcome{Status: StatusMismatch, Raw: raw}, nil
	}

	if m.ReplyParam == nil {
		return Outcome{Status: StatusOK}, nil
	}

	start, length := m.ReplyParam.Field(*m.Reply)
	field := append([]byte(nil), reply[start:start+length]...)
	if m.ReplyParam.Mask != nil {
		codec.ApplyMask(field, m.ReplyParam.Mask)
	}
	value, err := codec.Decode(m.ReplyParam.Spec, field)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusOK, Value: value, HasValue: true}, nil
}
