// Package mock provides test doubles for the registry authority.
package mock

import (
	"context"
	"sync"

	"github.com/devport-proto/devport-go/pkg/registry"
)

// Authority is a registry.Authority test double that counts calls and
// injects failures. The zero value succeeds on every operation and
// hands out identities and handles starting at 1.
type Authority struct {
	// RegisterCalls counts Register invocations.
	RegisterCalls int

	// DeregisterCalls counts Deregister invocations.
	DeregisterCalls int

	// CreateClassCalls counts CreateClass invocations.
	CreateClassCalls int

	// DestroyClassCalls counts DestroyClass invocations.
	DestroyClassCalls int

	// PublishCalls counts Publish invocations.
	PublishCalls int

	// UnpublishCalls counts Unpublish invocations.
	UnpublishCalls int

	// Calls journals operation names in invocation order, e.g.
	// ["register", "createClass", "publish"].
	Calls []string

	// FailRegister, when non-nil, fails every Register call.
	FailRegister error

	// FailCreateClass, when non-nil, fails every CreateClass call.
	FailCreateClass error

	// FailPublish, when non-nil, fails every Publish call.
	FailPublish error

	// FailDeregister, when non-nil, fails every Deregister call.
	FailDeregister error

	// FailDestroyClass, when non-nil, fails every DestroyClass call.
	FailDestroyClass error

	// FailUnpublish, when non-nil, fails every Unpublish call.
	FailUnpublish error

	nextID uint32

	mu sync.Mutex
}

var _ registry.Authority = (*Authority)(nil)

// Register records the call and assigns the next identity.
func (a *Authority) Register(_ context.Context, _ string) (registry.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.RegisterCalls++
	a.Calls = append(a.Calls, "register")
	if a.FailRegister != nil {
		return 0, a.FailRegister
	}
	a.nextID++
	return registry.Identity(a.nextID), nil
}

// Deregister records the call.
func (a *Authority) Deregister(_ registry.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.DeregisterCalls++
	a.Calls = append(a.Calls, "deregister")
	return a.FailDeregister
}

// CreateClass records the call and assigns the next class handle.
func (a *Authority) CreateClass(_ context.Context, _ string) (registry.ClassHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.CreateClassCalls++
	a.Calls = append(a.Calls, "createClass")
	if a.FailCreateClass != nil {
		return 0, a.FailCreateClass
	}
	a.nextID++
	return registry.ClassHandle(a.nextID), nil
}

// DestroyClass records the call.
func (a *Authority) DestroyClass(_ registry.ClassHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.DestroyClassCalls++
	a.Calls = append(a.Calls, "destroyClass")
	return a.FailDestroyClass
}

// Publish records the call and assigns the next endpoint handle.
func (a *Authority) Publish(_ context.Context, _ registry.ClassHandle, _ registry.Identity) (registry.EndpointHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.PublishCalls++
	a.Calls = append(a.Calls, "publish")
	if a.FailPublish != nil {
		return 0, a.FailPublish
	}
	a.nextID++
	return registry.EndpointHandle(a.nextID), nil
}

// Unpublish records the call.
func (a *Authority) Unpublish(_ registry.EndpointHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.UnpublishCalls++
	a.Calls = append(a.Calls, "unpublish")
	return a.FailUnpublish
}
