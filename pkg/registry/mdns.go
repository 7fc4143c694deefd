package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/devport-proto/devport-go/pkg/version"
)

// MDNSConfig configures the mDNS authority.
type MDNSConfig struct {
	// Port is the service port advertised for published endpoints.
	// Zero means DefaultPort.
	Port int

	// Domain is the mDNS domain. Empty means Domain ("local").
	Domain string

	// Interface specifies which network interface to advertise on.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL. Zero means the zeroconf default.
	TTL time.Duration

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultMDNSConfig returns the default mDNS authority configuration.
func DefaultMDNSConfig() MDNSConfig {
	return MDNSConfig{
		Port:   DefaultPort,
		Domain: Domain,
		TTL:    120 * time.Second,
	}
}

// MDNSAuthority implements Authority over mDNS using zeroconf. Register
// and CreateClass are local bookkeeping; Publish performs the actual
// network registration of "<name>.<ServiceType>.<domain>." with the
// identity, class, and protocol version in TXT records.
type MDNSAuthority struct {
	config MDNSConfig

	mu sync.Mutex

	nextIdentity uint32
	nextClass    uint32
	nextEndpoint uint32

	names   map[Identity]string
	byName  map[string]Identity
	classes map[ClassHandle]string

	// Active zeroconf registrations, keyed by endpoint handle.
	servers map[EndpointHandle]*zeroconf.Server
}

// NewMDNSAuthority creates a new mDNS authority.
func NewMDNSAuthority(config MDNSConfig) (*MDNSAuthority, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Domain == "" {
		config.Domain = Domain
	}
	return &MDNSAuthority{
		config:  config,
		names:   make(map[Identity]string),
		byName:  make(map[string]Identity),
		classes: make(map[ClassHandle]string),
		servers: make(map[EndpointHandle]*zeroconf.Server),
	}, nil
}

// getInterfaces returns the network interfaces to advertise on.
// Returns nil to use all interfaces.
func (a *MDNSAuthority) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Register assigns an identity to name. The name becomes the mDNS
// instance name when the endpoint is published, so it must fit in a DNS
// label.
func (a *MDNSAuthority) Register(ctx context.Context, name string) (Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ValidateInstanceName(name); err != nil {
		return 0, err
	}
	if _, taken := a.byName[name]; taken {
		return 0, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}

	a.nextIdentity++
	id := Identity(a.nextIdentity)
	a.names[id] = name
	a.byName[name] = id

	a.debugLog("identity registered", "name", name, "identity", uint32(id))
	return id, nil
}

// Deregister releases an identity.
func (a *MDNSAuthority) Deregister(id Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name, ok := a.names[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}
	delete(a.names, id)
	delete(a.byName, name)

	a.debugLog("identity deregistered", "name", name, "identity", uint32(id))
	return nil
}

// CreateClass records a class name. Classes are plain bookkeeping for
// mDNS: the name travels in the published TXT records.
func (a *MDNSAuthority) CreateClass(ctx context.Context, name string) (ClassHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if name == "" {
		return 0, fmt.Errorf("%w: class name", ErrMissingRequired)
	}

	a.nextClass++
	h := ClassHandle(a.nextClass)
	a.classes[h] = name
	return h, nil
}

// DestroyClass releases a class.
func (a *MDNSAuthority) DestroyClass(h ClassHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.classes[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClass, h)
	}
	delete(a.classes, h)
	return nil
}

// Publish registers the endpoint's mDNS service. The instance name is
// the name registered for id; TXT records carry the identity, the class
// name, and the protocol version.
func (a *MDNSAuthority) Publish(ctx context.Context, class ClassHandle, id Identity) (EndpointHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	className, ok := a.classes[class]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}
	instanceName, ok := a.names[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}

	txtRecords := EncodeEndpointTXT(&EndpointTXT{
		Identity: uint32(id),
		Class:    className,
		Version:  version.Current,
	})
	txtStrings := TXTRecordsToStrings(txtRecords)

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	// Get interfaces (nil means all interfaces)
	ifaces := a.getInterfaces()

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		a.config.Domain,
		a.config.Port,
		txtStrings,
		ifaces,
		opts...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to register endpoint service: %w", err)
	}

	a.nextEndpoint++
	h := EndpointHandle(a.nextEndpoint)
	a.servers[h] = server

	a.debugLog("endpoint published", "instance", instanceName, "class", className, "port", a.config.Port)
	return h, nil
}

// Unpublish withdraws a published endpoint and shuts its mDNS
// registration down.
func (a *MDNSAuthority) Unpublish(h EndpointHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, ok := a.servers[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEndpoint, h)
	}
	server.Shutdown()
	delete(a.servers, h)

	a.debugLog("endpoint unpublished", "handle", uint32(h))
	return nil
}

// StopAll withdraws every published endpoint. Useful as a shutdown
// safety net.
func (a *MDNSAuthority) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for h, server := range a.servers {
		server.Shutdown()
		delete(a.servers, h)
	}
}

func (a *MDNSAuthority) debugLog(msg string, args ...any) {
	if a.config.Logger != nil {
		a.config.Logger.Debug(msg, args...)
	}
}

// Ensure MDNSAuthority implements Authority.
var _ Authority = (*MDNSAuthority)(nil)
