package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/devport-proto/devport-go/pkg/endpoint"
	"github.com/devport-proto/devport-go/pkg/log"
	"github.com/devport-proto/devport-go/pkg/params"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures an EndpointService.
type Config struct {
	// ListenAddress is the address to listen on (e.g., ":9155").
	ListenAddress string

	// BusyRetryHint is the retry-after duration reported to clients
	// rejected while the endpoint is held.
	BusyRetryHint time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives traffic capture events (optional).
	// The service captures decoded requests and responses and passes
	// the logger down to the transport for frame-level capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddress: ":9155",
		BusyRetryHint: 1 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrInvalidConfig
	}
	if c.BusyRetryHint < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// EventType identifies a service event.
type EventType uint8

const (
	// EventSessionOpened - a client claimed the endpoint.
	EventSessionOpened EventType = iota

	// EventSessionClosed - the claim was released.
	EventSessionClosed

	// EventRecordWritten - a parameter record was stored.
	EventRecordWritten

	// EventStateChanged - the endpoint lifecycle state changed.
	EventStateChanged

	// EventClientRejected - a client was turned away busy.
	EventClientRejected
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventSessionOpened:
		return "SESSION_OPENED"
	case EventSessionClosed:
		return "SESSION_CLOSED"
	case EventRecordWritten:
		return "RECORD_WRITTEN"
	case EventStateChanged:
		return "STATE_CHANGED"
	case EventClientRejected:
		return "CLIENT_REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Event represents a service event.
type Event struct {
	// Type is the event type.
	Type EventType

	// ConnID is the connection the event concerns, if any.
	ConnID string

	// Record is the parameter record (for record events).
	Record params.Record

	// State is the endpoint lifecycle state (for state events).
	State endpoint.State

	// Error is set if the event carries an error.
	Error error
}

// EventHandler handles service events.
type EventHandler func(Event)
