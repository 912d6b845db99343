package hardware

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/dougsko/catd/pkg/logging"
)

var (
	// ErrNotOpen is returned by link operations while the serial port is closed
	ErrNotOpen = errors.New("serial port is not open")
	// ErrIO wraps read and write failures of an open port
	ErrIO = errors.New("serial i/o error")
)

// Port is the subset of a serial port used by SerialLink.
// A Read that times out returns 0 bytes and a nil error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// alivePort is implemented by ports that can tell when the underlying device went away
type alivePort interface {
	Alive() bool
}

// Opener opens a port on a device at a baud rate
type Opener func(device string, baudRate int) (Port, error)

// SerialConfig describes the serial connection to the radio
type SerialConfig struct {
	Device   string // Serial device path (e.g., /dev/ttyUSB0)
	BaudRate int    // Serial baud rate
}

// SerialLink is the half-duplex byte channel to the radio. It does no locking
// of whole exchanges; callers serialize commands themselves.
type SerialLink struct {
	config SerialConfig
	opener Opener

	mutex sync.Mutex
	port  Port
}

// NewSerialLink creates a closed link that opens real serial devices
func NewSerialLink(config SerialConfig) *SerialLink {
	return NewSerialLinkWithOpener(config, OpenSerialPort)
}

// NewSerialLinkWithOpener creates a closed link that opens ports through opener
func NewSerialLinkWithOpener(config SerialConfig, opener Opener) *SerialLink {
	return &SerialLink{config: config, opener: opener}
}

// OpenSerialPort opens a device as 8N1 at the given baud rate
func OpenSerialPort(device string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return &devicePort{Port: p, device: device}, nil
}

// devicePort reports itself dead once its device disappears, which is how
// an unplugged USB adapter shows up before the next read fails.
type devicePort struct {
	serial.Port
	device string
}

func (p *devicePort) Alive() bool {
	return deviceAlive(p.device, serial.GetPortsList, os.Stat)
}

// deviceAlive looks the device up in the system port list. A path that the
// list does not name (a udev symlink, say) is checked on the filesystem; a
// bare name such as COM3 is assumed present when the list is unavailable.
func deviceAlive(device string, list func() ([]string, error), stat func(string) (os.FileInfo, error)) bool {
	ports, err := list()
	if err == nil {
		for _, name := range ports {
			if name == device {
				return true
			}
		}
	}
	if strings.ContainsRune(device, '/') {
		_, serr := stat(device)
		return serr == nil
	}
	return err != nil
}

// Config returns the link configuration
func (l *SerialLink) Config() SerialConfig {
	return l.config
}

// Open opens the port. Opening an open link is a no-op.
func (l *SerialLink) Open() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.port != nil {
		return nil
	}

	port, err := l.opener(l.config.Device, l.config.BaudRate)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.config.Device, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		logging.Debugf("serial", "Failed to reset input buffer of %s: %v", l.config.Device, err)
	}
	l.port = port
	logging.Debugf("serial", "Opened %s at %d baud", l.config.Device, l.config.BaudRate)
	return nil
}

// Close closes the port. Closing a closed link is a no-op.
func (l *SerialLink) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.closeLocked()
}

func (l *SerialLink) closeLocked() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// IsOpen reports whether the port is open and its device is still present
func (l *SerialLink) IsOpen() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.port == nil {
		return false
	}
	if ap, ok := l.port.(alivePort); ok && !ap.Alive() {
		logging.Debugf("serial", "Device %s is gone", l.config.Device)
		l.closeLocked()
		return false
	}
	return true
}

// fail closes the link after an I/O error so that the supervisor reopens it
func (l *SerialLink) fail(op string, err error) error {
	logging.Debugf("serial", "%s on %s failed: %v", op, l.config.Device, err)
	l.closeLocked()
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}

// Write sends all of b
func (l *SerialLink) Write(b []byte) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.port == nil {
		return ErrNotOpen
	}
	for written := 0; written < len(b); {
		n, err := l.port.Write(b[written:])
		if err != nil {
			return l.fail("write", err)
		}
		written += n
	}
	return nil
}

// ReadFull reads until buf is full or timeout elapses and returns the byte
// count. A short count with a nil error means the read timed out.
func (l *SerialLink) ReadFull(buf []byte, timeout time.Duration) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.port == nil {
		return 0, ErrNotOpen
	}

	deadline := time.Now().Add(timeout)
	n := 0
	for n < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := l.port.SetReadTimeout(remaining); err != nil {
			return n, l.fail("set timeout", err)
		}
		k, err := l.port.Read(buf[n:])
		if err != nil {
			return n, l.fail("read", err)
		}
		if k == 0 {
			break
		}
		n += k
	}
	return n, nil
}

// Drain reads and returns up to max bytes that arrive within window
func (l *SerialLink) Drain(max int, window time.Duration) ([]byte, error) {
	buf := make([]byte, max)
	n, err := l.ReadFull(buf, window)
	return buf[:n], err
}
