package gpio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSocketPath is the default path to the relay-controller MCU's Unix
// socket.
const DefaultSocketPath = "/var/run/irrigation-mcu.sock"

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrNotConnected is returned when a call is attempted without a live
// connection and reconnection also failed.
var ErrNotConnected = errors.New("gpio: not connected to MCU")

// ErrSocketNotFound is returned by NewMCUClient when the socket file does
// not exist (the process isn't running on the target board).
var ErrSocketNotFound = errors.New("gpio: MCU socket not found")

// msgpack-rpc message types.
const (
	msgTypeRequest  = 0
	msgTypeResponse = 1
)

// RPCError is an error returned by the MCU side of the RPC call.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcu rpc error %d: %s", e.Code, e.Message)
}

// MCUClient drives relay pins through the board's companion microcontroller
// over a local Unix socket speaking msgpack-rpc, mirroring the shape of the
// teacher's arduino-router client.
type MCUClient struct {
	socketPath string
	mu         sync.Mutex
	conn       net.Conn
	msgID      uint32
	connected  bool
	log        zerolog.Logger
}

// NewMCUClient creates an MCU-backed GPIO driver. It returns
// ErrSocketNotFound (non-fatal: the caller should fall back to logging and
// continuing) if the socket doesn't exist.
func NewMCUClient(socketPath string, log zerolog.Logger) (*MCUClient, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		log.Warn().Str("socket_path", socketPath).Msg("MCU socket not found, relay control disabled")
		return nil, ErrSocketNotFound
	}

	c := &MCUClient{
		socketPath: socketPath,
		log:        log.With().Str("component", "gpio_mcu_client").Logger(),
	}

	if err := c.connect(); err != nil {
		c.log.Warn().Err(err).Msg("initial MCU connection failed, will retry on first call")
	}

	return c, nil
}

func (c *MCUClient) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *MCUClient) connectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.connected = false
	}
	conn, err := net.DialTimeout("unix", c.socketPath, writeTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socketPath, err)
	}
	c.conn = conn
	c.connected = true
	return nil
}

func (c *MCUClient) getConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected && c.conn != nil {
		return c.conn, nil
	}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.conn, nil
}

func (c *MCUClient) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *MCUClient) nextMsgID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgID++
	return c.msgID
}

// SetPin implements Driver by calling the MCU's "set_pin" RPC method.
func (c *MCUClient) SetPin(pin int, level int) error {
	_, err := c.call("set_pin", pin, level)
	return err
}

func (c *MCUClient) call(method string, params ...interface{}) (interface{}, error) {
	conn, err := c.getConn()
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	msgID := c.nextMsgID()
	request := []interface{}{msgTypeRequest, msgID, method, params}

	if err := c.sendMessage(conn, request); err != nil {
		c.markDisconnected()
		return nil, fmt.Errorf("send request: %w", err)
	}

	response, err := c.readResponse(conn)
	if err != nil {
		c.markDisconnected()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if len(response) < 4 {
		return nil, fmt.Errorf("invalid response: expected 4 elements, got %d", len(response))
	}
	respType, ok := toInt(response[0])
	if !ok || respType != msgTypeResponse {
		return nil, fmt.Errorf("invalid response type: %v", response[0])
	}
	if response[2] != nil {
		return nil, &RPCError{Code: 1, Message: fmt.Sprintf("%v", response[2])}
	}
	return response[3], nil
}

func (c *MCUClient) sendMessage(conn net.Conn, msg []interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	enc := msgpack.NewEncoder(conn)
	return enc.Encode(msg)
}

func (c *MCUClient) readResponse(conn net.Conn) ([]interface{}, error) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	dec := msgpack.NewDecoder(conn)
	var response []interface{}
	if err := dec.Decode(&response); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("mcu closed connection: %w", err)
		}
		return nil, err
	}
	return response, nil
}

// Close releases the underlying connection.
func (c *MCUClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.connected = false
		return err
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
