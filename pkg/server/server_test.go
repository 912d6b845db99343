package server

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/catd/pkg/engine"
	"github.com/dougsko/catd/pkg/engine/enginetest"
	"github.com/dougsko/catd/pkg/hardware"
	"github.com/dougsko/catd/pkg/protocol"
)

// overlapExecutor fails the test if two lines ever execute at once
type overlapExecutor struct {
	active  int32
	overlap int32
	calls   int32
}

func (e *overlapExecutor) Execute(line string) string {
	if atomic.AddInt32(&e.active, 1) > 1 {
		atomic.StoreInt32(&e.overlap, 1)
	}
	atomic.AddInt32(&e.calls, 1)
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&e.active, -1)
	return "echo " + line
}

func startServer(t *testing.T, executor Executor) *Server {
	t.Helper()
	srv := NewServer("127.0.0.1:0", executor)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, srv *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) roundTrip(line string) (string, error) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return "", err
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return response[:len(response)-1], nil
}

func TestServerLifecycle(t *testing.T) {
	srv := NewServer("127.0.0.1:0", &overlapExecutor{})
	assert.False(t, srv.IsListening())
	assert.Nil(t, srv.Addr())
	assert.NoError(t, srv.Stop())

	require.NoError(t, srv.Start())
	require.NoError(t, srv.Start())
	assert.True(t, srv.IsListening())

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsListening())

	require.NoError(t, srv.Start())
	assert.True(t, srv.IsListening())
	require.NoError(t, srv.Stop())
}

func TestServerSession(t *testing.T) {
	srv := startServer(t, &overlapExecutor{})

	var mutex sync.Mutex
	var events []Event
	srv.OnEvent(func(e Event) {
		mutex.Lock()
		events = append(events, e)
		mutex.Unlock()
	})

	c := dial(t, srv)
	response, err := c.roundTrip("f")
	require.NoError(t, err)
	assert.Equal(t, "echo f", response)

	// CRLF line endings are accepted
	_, err = c.conn.Write([]byte("t\r\n"))
	require.NoError(t, err)
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo t\n", line)

	assert.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	c.conn.Close()
	assert.Eventually(t, func() bool { return srv.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(events) == 4
	}, time.Second, 5*time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, EventConnected, events[0].Kind)
	assert.Equal(t, EventCommand, events[1].Kind)
	assert.Equal(t, "f", events[1].Request)
	assert.Equal(t, "echo f", events[1].Response)
	assert.Equal(t, EventDisconnected, events[3].Kind)
}

func TestServerRepliesBeforeObservers(t *testing.T) {
	srv := startServer(t, &overlapExecutor{})

	release := make(chan struct{})
	observed := make(chan Event, 1)
	srv.OnEvent(func(e Event) {
		if e.Kind == EventCommand {
			<-release
			observed <- e
		}
	})

	c := dial(t, srv)
	response, err := c.roundTrip("f")
	require.NoError(t, err)
	assert.Equal(t, "echo f", response)

	close(release)
	select {
	case e := <-observed:
		assert.Equal(t, "f", e.Request)
	case <-time.After(time.Second):
		t.Fatal("command event not delivered")
	}
}

func TestServerStopClosesClients(t *testing.T) {
	srv := startServer(t, &overlapExecutor{})
	c := dial(t, srv)
	_, err := c.roundTrip("f")
	require.NoError(t, err)

	require.NoError(t, srv.Stop())

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = c.reader.ReadString('\n')
	assert.Error(t, err)
	assert.Equal(t, 0, srv.ClientCount())
}

func TestConcurrentSessionsAreSerialized(t *testing.T) {
	executor := &overlapExecutor{}
	srv := startServer(t, executor)

	const clients = 4
	const lines = 20

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		c := dial(t, srv)
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			for j := 0; j < lines; j++ {
				line := fmt.Sprintf("%d-%d", i, j)
				response, err := c.roundTrip(line)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "echo "+line, response)
			}
		}(i, c)
	}
	wg.Wait()

	assert.Equal(t, int32(clients*lines), atomic.LoadInt32(&executor.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&executor.overlap))
}

func TestConcurrentRadioCommands(t *testing.T) {
	radio := enginetest.NewRadio()
	port := radio.Port()
	link := hardware.NewSerialLinkWithOpener(hardware.SerialConfig{Device: "/dev/mock"}, port.Opener())
	require.NoError(t, link.Open())

	timing := engine.Timing{ReadTimeout: 50 * time.Millisecond, ResyncWindow: 5 * time.Millisecond, PendingWindow: time.Millisecond}
	sender := engine.NewSender(link, engine.NewSession(enginetest.Model, enginetest.CommandSet()), timing)
	srv := startServer(t, protocol.NewInterpreter(sender))

	setup := dial(t, srv)
	response, err := setup.roundTrip("U Simplex")
	require.NoError(t, err)
	require.Equal(t, "RPRT 0", response)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		c := dial(t, srv)
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				response, err := c.roundTrip("f")
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "14074000", response)

				response, err = c.roundTrip("m")
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "USB", response)
			}
		}(c)
	}
	wg.Wait()

	// every reply was consumed by the command that asked for it
	assert.Equal(t, 0, port.Pending())
}
