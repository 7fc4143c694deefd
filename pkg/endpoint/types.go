package endpoint

import (
	"errors"
	"log/slog"

	"github.com/devport-proto/devport-go/pkg/params"
	"github.com/devport-proto/devport-go/pkg/registry"
)

// Endpoint errors.
var (
	ErrRegistration  = errors.New("registration failed")
	ErrClassBind     = errors.New("class bind failed")
	ErrPublish       = errors.New("publish failed")
	ErrInvalidState  = errors.New("invalid state for operation")
	ErrNotExposed    = errors.New("endpoint not exposed")
	ErrSessionClosed = errors.New("session closed")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// State represents the endpoint lifecycle state.
type State uint8

const (
	// StateUnregistered - endpoint created, no identity assigned.
	StateUnregistered State = iota

	// StateRegistered - identity assigned by the authority.
	StateRegistered

	// StateClassBound - class object created.
	StateClassBound

	// StateExposed - published and discoverable by clients.
	StateExposed

	// StateFailed - a lifecycle step failed and rollback has run.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegistered:
		return "REGISTERED"
	case StateClassBound:
		return "CLASS_BOUND"
	case StateExposed:
		return "EXPOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// CommandHandler processes a decoded parameter record for one command
// value. Returning an error fails the Write that carried the record;
// the record has been stored as the current record either way, since
// its bytes were consumed.
type CommandHandler func(rec params.Record) error

// Config configures an endpoint Manager.
type Config struct {
	// Name is the instance name registered with the authority.
	Name string

	// ClassName is the class object name the endpoint is grouped under.
	ClassName string

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:      "devport0",
		ClassName: "devport",
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if err := registry.ValidateInstanceName(c.Name); err != nil {
		return err
	}
	if c.ClassName == "" {
		return ErrInvalidConfig
	}
	return nil
}
