// Package supervisor keeps the serial link open and the session server
// listening, retrying each independently until the context is cancelled.
package supervisor

import (
	"context"
	"time"

	"github.com/dougsko/catd/pkg/logging"
)

// Serial is the radio link as seen by the supervisor
type Serial interface {
	Open() error
	Close() error
	IsOpen() bool
}

// Listener is the session server as seen by the supervisor
type Listener interface {
	Start() error
	Stop() error
	IsListening() bool
}

// Config holds the supervisor timing and the names used in log lines
type Config struct {
	Device     string
	BaudRate   int
	Address    string
	Interval   time.Duration // between checks
	OpenSettle time.Duration // after the serial port opens
}

// resourceStatus selects the log level of the next open attempt
type resourceStatus int

const (
	neverOpened resourceStatus = iota
	wasOpen
	wasClosed
)

// Supervisor owns the lifecycle of the serial link and the listener
type Supervisor struct {
	serial   Serial
	listener Listener
	config   Config

	serialStatus   resourceStatus
	listenerStatus resourceStatus
}

// New creates a supervisor. Nothing is opened until Run.
func New(serial Serial, listener Listener, config Config) *Supervisor {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	return &Supervisor{serial: serial, listener: listener, config: config}
}

// Run checks both resources every interval until ctx is cancelled, then
// stops the listener and closes the serial link. Failures never end the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		s.check(ctx)
		sleep(ctx, s.config.Interval)
	}

	if err := s.listener.Stop(); err != nil {
		logging.Warnf("supervisor", "Failed to stop TCP server: %v", err)
	}
	if s.serial.IsOpen() {
		if err := s.serial.Close(); err != nil {
			logging.Warnf("supervisor", "Failed to close serial port: %v", err)
		}
	}
	logging.Info("supervisor", "CAT server shutting down.")
	return nil
}

// check runs one pass of the supervision loop
func (s *Supervisor) check(ctx context.Context) {
	if !s.serial.IsOpen() {
		s.openSerial(ctx)
	}

	if s.serial.IsOpen() && !s.listener.IsListening() {
		s.startListener()
	}
}

func (s *Supervisor) openSerial(ctx context.Context) {
	switch s.serialStatus {
	case wasOpen:
		logging.Warn("supervisor", "Serial port closed unexpectedly. Reopening.")
	case neverOpened:
		logging.Infof("supervisor", "Opening serial port %s at %d Baud...", s.config.Device, s.config.BaudRate)
	default:
		logging.Tracef("supervisor", "Opening serial port %s...", s.config.Device)
	}

	if err := s.serial.Open(); err != nil {
		logging.Log(retryLevel(s.serialStatus), "supervisor", "Failed to open serial port: "+err.Error()+". Will retry.")
		if err := s.listener.Stop(); err != nil {
			logging.Debugf("supervisor", "Failed to stop TCP server: %v", err)
		}
		s.serialStatus = wasClosed
		s.listenerStatus = wasClosed
		return
	}

	s.serialStatus = wasOpen
	sleep(ctx, s.config.OpenSettle)
	logging.Info("supervisor", "Serial port opened.")
	logging.Infof("supervisor", "Starting TCP server on %s...", s.config.Address)
}

func (s *Supervisor) startListener() {
	if s.listenerStatus == wasOpen {
		logging.Info("supervisor", "TCP server stopped unexpectedly. Restarting.")
	}

	if err := s.listener.Start(); err != nil {
		logging.Log(retryLevel(s.listenerStatus), "supervisor", "Failed to start TCP server: "+err.Error()+". Will retry.")
		s.listenerStatus = wasClosed
		return
	}

	s.listenerStatus = wasOpen
	logging.Info("supervisor", "TCP server started.")
}

// retryLevel logs the first failure of a resource loudly and repeats quietly
func retryLevel(status resourceStatus) logging.LogLevel {
	if status == wasClosed {
		return logging.LevelTrace
	}
	return logging.LevelWarn
}

// sleep waits for d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
