package registry

import (
	"context"
	"fmt"
	"sync"
)

// MemoryAuthority is an in-process Authority. It is the default for
// single-host deployments and for tests that need real registration
// semantics (name conflicts, unknown-handle errors) without the network.
type MemoryAuthority struct {
	mu sync.Mutex

	nextIdentity uint32
	nextClass    uint32
	nextEndpoint uint32

	names   map[Identity]string
	byName  map[string]Identity
	classes map[ClassHandle]string

	endpoints map[EndpointHandle]publication
}

type publication struct {
	class ClassHandle
	id    Identity
}

// NewMemoryAuthority creates an empty in-process authority.
func NewMemoryAuthority() *MemoryAuthority {
	return &MemoryAuthority{
		names:     make(map[Identity]string),
		byName:    make(map[string]Identity),
		classes:   make(map[ClassHandle]string),
		endpoints: make(map[EndpointHandle]publication),
	}
}

// Register assigns the next free identity to name.
func (a *MemoryAuthority) Register(ctx context.Context, name string) (Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if name == "" {
		return 0, fmt.Errorf("%w: name", ErrMissingRequired)
	}
	if _, taken := a.byName[name]; taken {
		return 0, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}

	a.nextIdentity++
	id := Identity(a.nextIdentity)
	a.names[id] = name
	a.byName[name] = id
	return id, nil
}

// Deregister releases an identity.
func (a *MemoryAuthority) Deregister(id Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name, ok := a.names[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}
	delete(a.names, id)
	delete(a.byName, name)
	return nil
}

// CreateClass creates a class object.
func (a *MemoryAuthority) CreateClass(ctx context.Context, name string) (ClassHandle, error) {
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

// DestroyClass releases a class object.
func (a *MemoryAuthority) DestroyClass(h ClassHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.classes[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClass, h)
	}
	delete(a.classes, h)
	return nil
}

// Publish makes an endpoint visible under the given class and identity.
func (a *MemoryAuthority) Publish(ctx context.Context, class ClassHandle, id Identity) (EndpointHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.classes[class]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}
	if _, ok := a.names[id]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}

	a.nextEndpoint++
	h := EndpointHandle(a.nextEndpoint)
	a.endpoints[h] = publication{class: class, id: id}
	return h, nil
}

// Unpublish withdraws a published endpoint.
func (a *MemoryAuthority) Unpublish(h EndpointHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.endpoints[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEndpoint, h)
	}
	delete(a.endpoints, h)
	return nil
}

// Registered reports whether name currently has an identity assigned.
func (a *MemoryAuthority) Registered(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.byName[name]
	return ok
}

// RegisteredCount returns the number of assigned identities.
func (a *MemoryAuthority) RegisteredCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.names)
}

// ClassCount returns the number of live class objects.
func (a *MemoryAuthority) ClassCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.classes)
}

// PublishedCount returns the number of published endpoints.
func (a *MemoryAuthority) PublishedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.endpoints)
}

// Ensure MemoryAuthority implements Authority.
var _ Authority = (*MemoryAuthority)(nil)
