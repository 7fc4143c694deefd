// Package gate enforces single-holder access to a DevPort endpoint. An
// endpoint has at most one holder at any time; a second acquirer observes
// ErrBusy and retries on its own schedule. The gate keeps no queue and
// notifies no waiters.
package gate

import (
	"errors"
	"sync/atomic"
)

// ErrBusy is returned by Acquire while another holder has the endpoint.
var ErrBusy = errors.New("endpoint busy")

// Gate serializes access to an endpoint. The zero value is an open gate
// ready for use.
type Gate struct {
	held atomic.Bool
}

// New returns an open gate.
func New() *Gate {
	return &Gate{}
}

// Acquire takes the gate, failing with ErrBusy if it is already held.
// The busy check and the take are a single compare-and-swap, so two
// concurrent callers can never both succeed.
func (g *Gate) Acquire() error {
	if !g.held.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

// Release returns the gate. Releasing an already-open gate is a no-op,
// never an error, and the holder count never goes negative.
func (g *Gate) Release() {
	g.held.CompareAndSwap(true, false)
}

// Held reports whether the gate is currently held.
func (g *Gate) Held() bool {
	return g.held.Load()
}

// HolderCount returns 1 while the gate is held, else 0.
func (g *Gate) HolderCount() int {
	if g.held.Load() {
		return 1
	}
	return 0
}
