package hardware

import (
	"errors"
	"io"
	"sync"
	"time"
)

// Responder returns the bytes a simulated radio sends back after a write
type Responder func(written []byte) []byte

// Echo wraps a responder so that every write is first echoed back
func Echo(r Responder) Responder {
	return func(written []byte) []byte {
		out := append([]byte(nil), written...)
		if r != nil {
			out = append(out, r(written)...)
		}
		return out
	}
}

// MockPort implements Port for testing. Replies are queued synchronously on
// Write, so a Read with nothing queued times out immediately.
type MockPort struct {
	mutex sync.Mutex

	respond Responder
	rx      []byte
	writes  [][]byte
	timeout time.Duration

	closed  bool
	gone    bool
	opens   int
	failing error
}

// NewMockPort creates a mock port driven by respond, which may be nil
func NewMockPort(respond Responder) *MockPort {
	return &MockPort{respond: respond}
}

// SetResponder replaces the simulated radio
func (p *MockPort) SetResponder(respond Responder) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.respond = respond
}

// Opener returns an Opener that hands out this port
func (p *MockPort) Opener() Opener {
	return func(device string, baudRate int) (Port, error) {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if p.gone {
			return nil, errors.New("no such device")
		}
		p.closed = false
		p.failing = nil
		p.opens++
		return p, nil
	}
}

// Read returns queued bytes, or 0 bytes when nothing is queued
func (p *MockPort) Read(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.errLocked(); err != nil {
		return 0, err
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

// Write records b and queues the responder's reply
func (p *MockPort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.errLocked(); err != nil {
		return 0, err
	}
	written := append([]byte(nil), b...)
	p.writes = append(p.writes, written)
	if p.respond != nil {
		p.rx = append(p.rx, p.respond(written)...)
	}
	return len(b), nil
}

func (p *MockPort) errLocked() error {
	if p.closed {
		return io.ErrClosedPipe
	}
	if p.failing != nil {
		return p.failing
	}
	return nil
}

// Close closes the port
func (p *MockPort) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}

// SetReadTimeout records the timeout of the next read
func (p *MockPort) SetReadTimeout(t time.Duration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.timeout = t
	return nil
}

// ResetInputBuffer discards queued bytes
func (p *MockPort) ResetInputBuffer() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.rx = nil
	return nil
}

// Alive reports false after Unplug
func (p *MockPort) Alive() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return !p.gone
}

// Inject queues bytes that the radio sends unprompted
func (p *MockPort) Inject(b []byte) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.rx = append(p.rx, b...)
}

// Fail makes every subsequent read and write return err until the port is reopened
func (p *MockPort) Fail(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.failing = err
}

// Unplug simulates the device disappearing
func (p *MockPort) Unplug() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.gone = true
}

// Replug makes the device available again
func (p *MockPort) Replug() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.gone = false
}

// Writes returns a copy of every write so far
func (p *MockPort) Writes() [][]byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// ClearWrites forgets the recorded writes
func (p *MockPort) ClearWrites() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.writes = nil
}

// Pending returns the number of queued bytes not yet read
func (p *MockPort) Pending() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.rx)
}

// Opens returns how many times the port has been opened
func (p *MockPort) Opens() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.opens
}
