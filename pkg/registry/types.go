package registry

import (
	"errors"
)

// Service constants for mDNS.
const (
	// ServiceType is the mDNS service type under which exposed endpoints
	// are published.
	ServiceType = "_devport._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default DevPort listen port.
	DefaultPort = 9155
)

// TXT record key constants.
const (
	TXTKeyIdentity = "id"  // Registered identity (decimal)
	TXTKeyClass    = "cls" // Class name the endpoint is bound to
	TXTKeyVersion  = "pv"  // Protocol version (optional)
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Registry errors.
var (
	ErrNameTaken           = errors.New("name already registered")
	ErrUnknownIdentity     = errors.New("unknown identity")
	ErrUnknownClass        = errors.New("unknown class handle")
	ErrUnknownEndpoint     = errors.New("unknown endpoint handle")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// Identity is the opaque identifier an authority assigns to an endpoint
// name at registration time. The holder needs it to deregister. Zero is
// never a valid identity.
type Identity uint32

// ClassHandle refers to a created class object. Zero is never valid.
type ClassHandle uint32

// EndpointHandle refers to a published endpoint. Zero is never valid.
type EndpointHandle uint32

// EndpointTXT is the metadata an authority publishes alongside an
// exposed endpoint.
type EndpointTXT struct {
	// Identity is the registered identity, carried in TXT "id".
	Identity uint32

	// Class is the class name the endpoint is bound to, carried in
	// TXT "cls".
	Class string

	// Version is the optional protocol version, carried in TXT "pv".
	Version string
}

// Validate checks that the required TXT fields are present.
func (e *EndpointTXT) Validate() error {
	if e.Identity == 0 {
		return ErrMissingRequired
	}
	if e.Class == "" {
		return ErrMissingRequired
	}
	return nil
}

// EndpointService represents an exposed endpoint found via mDNS browsing.
type EndpointService struct {
	// InstanceName is the mDNS instance name (the endpoint's registered
	// name).
	InstanceName string

	// Host is the hostname.
	Host string

	// Port is the service port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// Identity is the registered identity (from TXT "id").
	Identity uint32

	// Class is the class name (from TXT "cls").
	Class string

	// Version is the protocol version (from TXT "pv", optional).
	Version string
}
