// Package server accepts rig-control client connections and runs their
// request lines one at a time against the shared radio.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/catd/pkg/logging"
	"github.com/dougsko/catd/pkg/protocol"
)

// Executor runs one request line and returns the response line
type Executor interface {
	Execute(line string) string
}

// EventKind distinguishes session events
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventCommand      EventKind = "command"
)

// Event describes something that happened in a client session. Client is 0
// for commands submitted outside a TCP session.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Time     time.Time     `json:"time"`
	Client   int           `json:"client"`
	Remote   string        `json:"remote"`
	Request  string        `json:"request,omitempty"`
	Response string        `json:"response,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Server is the TCP session server. Network I/O of sessions runs
// concurrently; Execute calls are serialized by one lock.
type Server struct {
	address  string
	executor Executor

	// execMutex is held for the whole of one request line
	execMutex sync.Mutex

	mutex     sync.Mutex
	listener  net.Listener
	clients   map[int]net.Conn
	nextID    int
	observers []func(Event)
	wg        sync.WaitGroup
}

// NewServer creates a stopped server for address
func NewServer(address string, executor Executor) *Server {
	return &Server{
		address:  address,
		executor: executor,
		clients:  make(map[int]net.Conn),
		nextID:   1,
	}
}

// OnEvent registers fn to receive every session event. Observers run on
// session goroutines and must not block.
func (s *Server) OnEvent(fn func(Event)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Server) emit(e Event) {
	s.mutex.Lock()
	observers := make([]func(Event), len(s.observers))
	copy(observers, s.observers)
	s.mutex.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}

// Start begins listening. Starting a listening server is a no-op.
func (s *Server) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptConnections(listener)
	return nil
}

// Stop closes the listener and every client connection
func (s *Server) Stop() error {
	s.mutex.Lock()
	listener := s.listener
	s.listener = nil
	for id, conn := range s.clients {
		conn.Close()
		delete(s.clients, id)
	}
	s.mutex.Unlock()

	if listener == nil {
		return nil
	}
	err := listener.Close()
	s.wg.Wait()
	logging.Info("server", "TCP Server stopped.")
	return err
}

// IsListening reports whether the listener is open
func (s *Server) IsListening() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.listener != nil
}

// Addr returns the bound address, or nil when stopped
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.clients)
}

// Execute runs one line under the radio lock
func (s *Server) Execute(line string) string {
	s.execMutex.Lock()
	defer s.execMutex.Unlock()
	return s.executor.Execute(line)
}

// acceptConnections accepts and handles client connections until the listener closes
func (s *Server) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Errorf("server", "TCP server stopped: %v", err)
			s.mutex.Lock()
			if s.listener == listener {
				s.listener = nil
			}
			s.mutex.Unlock()
			listener.Close()
			return
		}

		id, ok := s.addClient(listener, conn)
		if !ok {
			conn.Close()
			return
		}
		go s.handleConnection(id, conn)
	}
}

func (s *Server) addClient(listener net.Listener, conn net.Conn) (int, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener != listener {
		return 0, false
	}
	id := s.nextID
	s.nextID++
	s.clients[id] = conn
	return id, true
}

func (s *Server) removeClient(id int) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.clients, id)
	return len(s.clients)
}

// handleConnection runs one client session until the peer disconnects or the server stops
func (s *Server) handleConnection(id int, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logging.Infof("server", "Client #%d connected: %s (%d connected clients)", id, remote, s.ClientCount())
	s.emit(Event{Kind: EventConnected, Time: time.Now(), Client: id, Remote: remote})

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		logging.Debugf("server", "Received from client #%d: '%s'", id, line)

		start := time.Now()
		response := s.Execute(line)
		elapsed := time.Since(start)

		logging.Debugf("server", "  Replying to client #%d: %s", id, protocol.Describe(response))
		_, werr := conn.Write([]byte(response + "\n"))
		s.emit(Event{Kind: EventCommand, Time: start, Client: id, Remote: remote, Request: line, Response: response, Duration: elapsed})
		if werr != nil {
			break
		}
		if err != nil {
			break
		}
	}

	count := s.removeClient(id)
	logging.Infof("server", "Client #%d disconnected: %s (%d connected clients)", id, remote, count)
	s.emit(Event{Kind: EventDisconnected, Time: time.Now(), Client: id, Remote: remote})
}
