package engine

import (
	"fmt"
	"sync"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/logging"
)

// Session is the radio state shared by every client of one serial link.
// Until Select is called no command group is active and nothing is available.
type Session struct {
	mutex sync.RWMutex

	model        string
	commandSet   *catset.CommandSet
	mode         catset.OperatingMode
	group        catset.CommandGroup
	transmitting bool
}

// SessionStatus is a snapshot of the session state
type SessionStatus struct {
	Model        string `json:"model"`
	Mode         string `json:"mode,omitempty"`
	Transmitting bool   `json:"transmitting"`
}

// NewSession creates a session for one radio model
func NewSession(model string, cs *catset.CommandSet) *Session {
	return &Session{model: model, commandSet: cs}
}

// Model returns the radio model name
func (s *Session) Model() string {
	return s.model
}

// CommandSet returns the command set of the radio
func (s *Session) CommandSet() *catset.CommandSet {
	return s.commandSet
}

// Select activates the command group of an operating mode
func (s *Session) Select(mode catset.OperatingMode) error {
	group := s.commandSet.Group(mode)
	if group == nil {
		return fmt.Errorf("%w: radio '%s' has no %s mode", ErrUnsupportedMode, s.model, mode)
	}

	s.mutex.Lock()
	s.mode = mode
	s.group = group
	s.mutex.Unlock()

	logging.Debugf("engine", "Available when receiving: %v", s.available(false))
	logging.Debugf("engine", "Available when transmitting: %v", s.available(true))
	return nil
}

// Mode returns the active operating mode and whether one has been selected
func (s *Session) Mode() (catset.OperatingMode, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.mode, s.group != nil
}

// Info returns the active definition of a command, or nil
func (s *Session) Info(command catset.Command) *catset.CommandInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.group == nil {
		return nil
	}
	return s.group[command]
}

// Transmitting reports the last known PTT state
func (s *Session) Transmitting() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.transmitting
}

// SetTransmitting records the PTT state
func (s *Session) SetTransmitting(tx bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.transmitting = tx
}

// IsAvailable reports whether a client may invoke command in the current
// mode and PTT state. Setup commands are never directly available.
func (s *Session) IsAvailable(command catset.Command) bool {
	info := s.Info(command)
	if info == nil || command == catset.Setup {
		return false
	}
	if s.Transmitting() {
		return info.Restriction.AllowedWhileTransmitting()
	}
	return info.Restriction.AllowedWhileReceiving()
}

func (s *Session) available(tx bool) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var names []string
	for _, command := range catset.Commands {
		info := s.group[command]
		if info == nil || command == catset.Setup {
			continue
		}
		if (tx && info.Restriction.AllowedWhileTransmitting()) || (!tx && info.Restriction.AllowedWhileReceiving()) {
			names = append(names, command.String())
		}
	}
	return names
}

// Status returns a snapshot of the session
func (s *Session) Status() SessionStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	status := SessionStatus{Model: s.model, Transmitting: s.transmitting}
	if s.group != nil {
		status.Mode = s.mode.String()
	}
	return status
}
