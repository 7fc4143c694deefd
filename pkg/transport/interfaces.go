package transport

import (
	"context"
	"net"
	"time"
)

// ServerConnection represents a server-side connection to a client.
// Implemented by ServerConn.
type ServerConnection interface {
	// RemoteAddr returns the remote network address of the client.
	RemoteAddr() net.Addr

	// ConnID returns the unique connection identifier.
	ConnID() string

	// Send sends a message to the client.
	Send(data []byte) error

	// Close closes the connection.
	Close() error
}

// ClientConnection represents a client-side connection to an endpoint.
// Implemented by ClientConn.
type ClientConnection interface {
	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Send sends a message to the endpoint.
	Send(data []byte) error

	// Receive receives a message with the specified timeout.
	Receive(timeout time.Duration) ([]byte, error)

	// Close closes the connection.
	Close() error
}

// TransportServer represents a DevPort TCP server.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
