package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/devport-proto/devport-go/pkg/log"
	"github.com/devport-proto/devport-go/pkg/wire"
)

// ClientConfig configures a DevPort client.
type ClientConfig struct {
	// MaxMessageSize is the maximum message size (default: 4KB).
	MaxMessageSize uint32

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// RequestTimeout is the per-request response timeout (default: 10s).
	RequestTimeout time.Duration

	// ProtocolLogger receives traffic capture events (optional).
	// Captures raw frames sent and received by this client.
	ProtocolLogger log.Logger
}

// Client is a DevPort client that connects to exposed endpoints.
type Client struct {
	config ClientConfig
}

// NewClient creates a new DevPort client.
func NewClient(config ClientConfig) *Client {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	return &Client{config: config}
}

// Connect establishes a connection to the specified address.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	cc := &ClientConn{
		conn:           conn,
		framer:         NewFramerWithMaxSize(conn, c.config.MaxMessageSize),
		requestTimeout: c.config.RequestTimeout,
		closeCh:        make(chan struct{}),
	}
	if c.config.ProtocolLogger != nil {
		cc.framer.SetLogger(c.config.ProtocolLogger, uuid.New().String())
	}
	return cc, nil
}

// ClientConn represents a connection from client to endpoint.
type ClientConn struct {
	conn           net.Conn
	framer         *Framer
	requestTimeout time.Duration
	closeCh        chan struct{}

	nextID atomic.Uint32

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send sends a raw message to the endpoint.
func (c *ClientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	return c.framer.WriteFrame(data)
}

// Receive receives a raw message from the endpoint with timeout.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadFrame()
}

// Close closes the connection. Closing the connection while holding
// the endpoint releases the claim on the server side.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// Call sends a request and waits for the matching response.
// A zero MessageID is replaced with the next sequence number.
func (c *ClientConn) Call(req *wire.Request) (*wire.Response, error) {
	if req.MessageID == 0 {
		req.MessageID = c.nextID.Add(1)
	}

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := c.Send(data); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.requestTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("request %d timed out", req.MessageID)
		}

		respData, err := c.Receive(remaining)
		if err != nil {
			return nil, err
		}

		resp, err := wire.DecodeResponse(respData)
		if err != nil {
			return nil, err
		}

		// Stale responses from timed-out requests are skipped
		if resp.MessageID != req.MessageID {
			continue
		}
		return resp, nil
	}
}

// Open claims exclusive use of the endpoint.
// Returns a BusyError if another client holds it.
func (c *ClientConn) Open() error {
	resp, err := c.Call(&wire.Request{Operation: wire.OpOpen})
	if err != nil {
		return err
	}
	return responseError(resp)
}

// Release releases a previously claimed endpoint.
func (c *ClientConn) Release() error {
	resp, err := c.Call(&wire.Request{Operation: wire.OpClose})
	if err != nil {
		return err
	}
	return responseError(resp)
}

// WriteRecord submits one whole parameter record to the endpoint.
// Returns the number of bytes the endpoint accepted.
func (c *ClientConn) WriteRecord(record []byte) (uint32, error) {
	resp, err := c.Call(&wire.Request{
		Operation: wire.OpWrite,
		Payload:   wire.WritePayload{Record: record},
	})
	if err != nil {
		return 0, err
	}
	if err := responseError(resp); err != nil {
		return 0, err
	}

	wp := wire.ExtractWriteResponsePayload(resp.Payload)
	if wp == nil {
		return 0, fmt.Errorf("write response missing payload")
	}
	return wp.Written, nil
}

// ReadRecord retrieves the last accepted parameter record.
func (c *ClientConn) ReadRecord() ([]byte, error) {
	resp, err := c.Call(&wire.Request{Operation: wire.OpRead})
	if err != nil {
		return nil, err
	}
	if err := responseError(resp); err != nil {
		return nil, err
	}

	rp := wire.ExtractReadResponsePayload(resp.Payload)
	if rp == nil {
		return nil, fmt.Errorf("read response missing payload")
	}
	return rp.Record, nil
}

// Info reports the endpoint's state. Works without an open session.
func (c *ClientConn) Info() (*wire.InfoResponsePayload, error) {
	resp, err := c.Call(&wire.Request{Operation: wire.OpInfo})
	if err != nil {
		return nil, err
	}
	if err := responseError(resp); err != nil {
		return nil, err
	}

	ip := wire.ExtractInfoResponsePayload(resp.Payload)
	if ip == nil {
		return nil, fmt.Errorf("info response missing payload")
	}
	return ip, nil
}

// BusyError indicates another client holds the endpoint.
type BusyError struct {
	// RetryAfter is the endpoint's suggested retry delay (may be zero).
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("endpoint busy (retry after %s)", e.RetryAfter)
	}
	return "endpoint busy"
}

// StatusError carries a non-success response status.
type StatusError struct {
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status.String()
}

// IsBusy reports whether err is a BusyError.
func IsBusy(err error) bool {
	var be *BusyError
	return errors.As(err, &be)
}

// responseError maps a non-success response to a typed error.
func responseError(resp *wire.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	ep := wire.ExtractErrorPayload(resp.Payload)
	if resp.Status == wire.StatusBusy {
		be := &BusyError{}
		if ep != nil {
			be.RetryAfter = time.Duration(ep.RetryAfterMs) * time.Millisecond
		}
		return be
	}

	se := &StatusError{Status: resp.Status}
	if ep != nil {
		se.Message = ep.Message
	}
	return se
}
