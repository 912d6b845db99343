package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dougsko/catd/pkg/logging"
	"github.com/dougsko/catd/pkg/server"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventHub fans session events out to WebSocket subscribers. A subscriber
// that falls behind loses events rather than stalling a session.
type eventHub struct {
	mutex   sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	conn *websocket.Conn
	send chan server.Event
	done chan struct{}
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*eventClient]struct{})}
}

// Broadcast queues e for every subscriber
func (h *eventHub) Broadcast(e server.Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			logging.Debug("web", "Event subscriber is slow, dropping event")
		}
	}
}

// Subscribers returns the number of connected subscribers
func (h *eventHub) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events until the peer goes away
func (h *eventHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("web", "WebSocket upgrade failed: %v", err)
		return
	}

	client := &eventClient{
		conn: conn,
		send: make(chan server.Event, eventBuffer),
		done: make(chan struct{}),
	}
	if !h.add(client) {
		conn.Close()
		return
	}
	defer h.remove(client)

	logging.Debugf("web", "Event subscriber connected from %s", r.RemoteAddr)

	// Subscribers only listen; reading detects the close
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				logging.Debugf("web", "WebSocket write error: %v", err)
				return
			}
		case <-client.done:
			logging.Debugf("web", "Event subscriber disconnected from %s", r.RemoteAddr)
			return
		}
	}
}

func (h *eventHub) add(c *eventClient) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *eventHub) remove(c *eventClient) {
	h.mutex.Lock()
	delete(h.clients, c)
	h.mutex.Unlock()
	c.close()
}

// Close disconnects every subscriber and refuses new ones
func (h *eventHub) Close() {
	h.mutex.Lock()
	h.closed = true
	clients := make([]*eventClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.Unlock()

	for _, c := range clients {
		c.close()
	}
}
