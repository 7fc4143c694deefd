package registry

import (
	"context"
)

// Authority is the naming and registration service an endpoint is
// registered with. It hands out the endpoint's identity, creates the
// class object the endpoint is grouped under, and publishes the endpoint
// so clients can discover it.
//
// Creation operations take a context because an authority may need the
// network (the mDNS implementation does); the teardown operations are
// local bookkeeping and release synchronously.
type Authority interface {
	// Register assigns an identity to the given endpoint name. The
	// identity is required to deregister.
	Register(ctx context.Context, name string) (Identity, error)

	// Deregister releases a previously assigned identity.
	Deregister(id Identity) error

	// CreateClass creates the class object endpoints are grouped under.
	CreateClass(ctx context.Context, name string) (ClassHandle, error)

	// DestroyClass releases a previously created class object.
	DestroyClass(h ClassHandle) error

	// Publish makes the endpoint discoverable under its registered
	// identity and class. Only published endpoints can be found by
	// clients.
	Publish(ctx context.Context, class ClassHandle, id Identity) (EndpointHandle, error)

	// Unpublish withdraws a published endpoint.
	Unpublish(h EndpointHandle) error
}
