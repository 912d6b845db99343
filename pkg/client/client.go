package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/catd/pkg/protocol"
)

// ReportError is a non-zero RPRT status returned by the daemon
type ReportError struct {
	Code int
}

func (e *ReportError) Error() string {
	return protocol.Describe(protocol.Report(e.Code))
}

// RigClient is a rigctld-style client holding one connection
type RigClient struct {
	address string
	timeout time.Duration

	mutex  sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewRigClient creates a client for address; it connects on first use
func NewRigClient(address string) *RigClient {
	return &RigClient{
		address: address,
		timeout: 5 * time.Second,
	}
}

// SetTimeout changes the connect and round trip timeout
func (c *RigClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *RigClient) connect() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close closes the connection
func (c *RigClient) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// SendCommand sends one request line and returns the raw response line
func (c *RigClient) SendCommand(line string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.connect(); err != nil {
		return "", err
	}
	c.conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("send error: %w", err)
	}
	response, err := c.reader.ReadString('\n')
	if err != nil {
		c.dropLocked()
		return "", fmt.Errorf("read error: %w", err)
	}
	return strings.TrimRight(response, "\r\n"), nil
}

func (c *RigClient) dropLocked() {
	c.conn.Close()
	c.conn = nil
	c.reader = nil
}

// query sends a read command and converts an RPRT reply into an error
func (c *RigClient) query(line string) (string, error) {
	response, err := c.SendCommand(line)
	if err != nil {
		return "", err
	}
	if err := CheckResponse(response); err != nil {
		return "", err
	}
	return response, nil
}

// command sends a write command and expects RPRT 0
func (c *RigClient) command(line string) error {
	response, err := c.SendCommand(line)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(response, "RPRT ") {
		return fmt.Errorf("unexpected response %q", response)
	}
	return CheckResponse(response)
}

// CheckResponse returns a *ReportError for a non-zero RPRT line and nil for
// RPRT 0 or a value
func CheckResponse(response string) error {
	if !strings.HasPrefix(response, "RPRT ") {
		return nil
	}
	code, err := strconv.Atoi(strings.TrimPrefix(response, "RPRT "))
	if err != nil {
		return fmt.Errorf("malformed status %q", response)
	}
	if code != protocol.RprtOK {
		return &ReportError{Code: code}
	}
	return nil
}

// GetFrequency reads the receive frequency in Hz
func (c *RigClient) GetFrequency() (int64, error) {
	return c.frequency("f")
}

// GetTxFrequency reads the transmit frequency in Hz
func (c *RigClient) GetTxFrequency() (int64, error) {
	return c.frequency("i")
}

func (c *RigClient) frequency(line string) (int64, error) {
	response, err := c.query(line)
	if err != nil {
		return 0, err
	}
	hz, err := strconv.ParseInt(response, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q", response)
	}
	return hz, nil
}

// SetFrequency writes the receive frequency in Hz
func (c *RigClient) SetFrequency(hz int64) error {
	return c.command(fmt.Sprintf("F %d", hz))
}

// SetTxFrequency writes the transmit frequency in Hz
func (c *RigClient) SetTxFrequency(hz int64) error {
	return c.command(fmt.Sprintf("I %d", hz))
}

// GetMode reads the receive mode
func (c *RigClient) GetMode() (string, error) {
	return c.query("m")
}

// SetMode writes the receive mode
func (c *RigClient) SetMode(mode string) error {
	return c.command(fmt.Sprintf("M %s 0", mode))
}

// GetPTT reads the transmit state
func (c *RigClient) GetPTT() (bool, error) {
	response, err := c.query("t")
	if err != nil {
		return false, err
	}
	return response == "1", nil
}

// SetPTT keys or unkeys the transmitter
func (c *RigClient) SetPTT(on bool) error {
	if on {
		return c.command("T 1")
	}
	return c.command("T 0")
}

// Setup selects an operating mode such as Simplex, Split or Duplex
func (c *RigClient) Setup(mode string) error {
	return c.command("U " + mode)
}

// Capabilities returns the capability report of the connected radio
func (c *RigClient) Capabilities() (map[string]interface{}, error) {
	response, err := c.query("a")
	if err != nil {
		return nil, err
	}
	var caps map[string]interface{}
	if err := json.Unmarshal([]byte(response), &caps); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return caps, nil
}

// GetStatus fetches the daemon status from its web API
func GetStatus(webAddress string, timeout time.Duration) (*protocol.Status, error) {
	httpClient := &http.Client{Timeout: timeout}
	resp, err := httpClient.Get("http://" + webAddress + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status error: %s", resp.Status)
	}

	var status protocol.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &status, nil
}
