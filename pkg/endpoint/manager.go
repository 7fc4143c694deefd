package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devport-proto/devport-go/pkg/gate"
	"github.com/devport-proto/devport-go/pkg/params"
	"github.com/devport-proto/devport-go/pkg/registry"
)

// Manager owns one endpoint's walk through the lifecycle. All state
// lives on the Manager; two Managers share nothing and may serve
// different authorities in the same process.
type Manager struct {
	mu sync.RWMutex

	config    Config
	authority registry.Authority

	state    State
	identity registry.Identity
	class    registry.ClassHandle
	handle   registry.EndpointHandle

	// Exclusive access gate; at most one open session.
	gate *gate.Gate

	// Last record written through a session.
	record params.Record

	// Command dispatch table, keyed by Record.Command.
	handlers map[uint32]CommandHandler

	// Serializes lifecycle transitions. Field access stays on mu so
	// accessors never wait behind a blocking authority call.
	lifecycleMu sync.Mutex

	logger *slog.Logger
}

// New creates a Manager registered against the given authority.
func New(authority registry.Authority, config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		config:    config,
		authority: authority,
		state:     StateUnregistered,
		gate:      gate.New(),
		handlers:  make(map[uint32]CommandHandler),
		logger:    config.Logger,
	}, nil
}

// Register requests an identity for the endpoint's name from the
// authority. Valid only from StateUnregistered; failure leaves the
// endpoint StateFailed with nothing to unwind.
func (m *Manager) Register(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if state != StateUnregistered {
		return fmt.Errorf("%w: register from %s", ErrInvalidState, state)
	}

	id, err := m.authority.Register(ctx, m.config.Name)
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	m.mu.Lock()
	m.identity = id
	m.state = StateRegistered
	m.mu.Unlock()

	m.debugLog("registered", "name", m.config.Name, "identity", id)
	return nil
}

// BindClass creates the class object the endpoint is grouped under.
// Valid only from StateRegistered. On failure the identity from
// Register is rolled back and the endpoint lands StateFailed; the
// class-bind error is reported, rollback errors are only logged.
func (m *Manager) BindClass(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.RLock()
	state := m.state
	identity := m.identity
	m.mu.RUnlock()

	if state != StateRegistered {
		return fmt.Errorf("%w: bind class from %s", ErrInvalidState, state)
	}

	class, err := m.authority.CreateClass(ctx, m.config.ClassName)
	if err != nil {
		if derr := m.authority.Deregister(identity); derr != nil {
			m.debugLog("rollback: deregister failed", "identity", identity, "error", derr)
		}
		m.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrClassBind, err)
	}

	m.mu.Lock()
	m.class = class
	m.state = StateClassBound
	m.mu.Unlock()

	m.debugLog("class bound", "class", m.config.ClassName, "handle", class)
	return nil
}

// Expose publishes the endpoint under its identity and class so
// clients can discover and claim it. Valid only from StateClassBound.
// On failure the class object and the identity are rolled back in
// reverse acquisition order and the endpoint lands StateFailed; the
// publish error is reported, rollback errors are only logged.
func (m *Manager) Expose(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.RLock()
	state := m.state
	identity := m.identity
	class := m.class
	m.mu.RUnlock()

	if state != StateClassBound {
		return fmt.Errorf("%w: expose from %s", ErrInvalidState, state)
	}

	handle, err := m.authority.Publish(ctx, class, identity)
	if err != nil {
		if derr := m.authority.DestroyClass(class); derr != nil {
			m.debugLog("rollback: destroy class failed", "handle", class, "error", derr)
		}
		if derr := m.authority.Deregister(identity); derr != nil {
			m.debugLog("rollback: deregister failed", "identity", identity, "error", derr)
		}
		m.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	m.mu.Lock()
	m.handle = handle
	m.state = StateExposed
	m.mu.Unlock()

	m.debugLog("exposed", "name", m.config.Name, "identity", identity)
	return nil
}

// Start runs the full bring-up: Register, BindClass, Expose. It stops
// at the first failure; the failing step has already unwound the
// earlier ones. No step is retried.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Register(ctx); err != nil {
		return err
	}
	if err := m.BindClass(ctx); err != nil {
		return err
	}
	return m.Expose(ctx)
}

// Teardown withdraws the endpoint: unpublish, destroy the class
// object, deregister the identity, in that order. An open session does
// not delay teardown; the holder simply loses the endpoint. Step
// errors are logged and teardown continues, so the endpoint always
// ends StateUnregistered.
func (m *Manager) Teardown() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.RLock()
	state := m.state
	identity := m.identity
	class := m.class
	handle := m.handle
	m.mu.RUnlock()

	if state != StateExposed {
		return fmt.Errorf("%w: teardown from %s", ErrInvalidState, state)
	}

	if holders := m.gate.HolderCount(); holders > 0 {
		m.debugLog("teardown with open session", "holders", holders)
	}

	if err := m.authority.Unpublish(handle); err != nil {
		m.debugLog("teardown: unpublish failed", "handle", handle, "error", err)
	}
	if err := m.authority.DestroyClass(class); err != nil {
		m.debugLog("teardown: destroy class failed", "handle", class, "error", err)
	}
	if err := m.authority.Deregister(identity); err != nil {
		m.debugLog("teardown: deregister failed", "identity", identity, "error", err)
	}

	m.setState(StateUnregistered)
	m.debugLog("teardown complete", "name", m.config.Name)
	return nil
}

// Open claims the endpoint for exclusive use. It returns ErrNotExposed
// unless the endpoint is Exposed, gate.ErrBusy while another session
// holds the claim, and otherwise a Session holding it.
func (m *Manager) Open() (*Session, error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if state != StateExposed {
		return nil, fmt.Errorf("%w: state %s", ErrNotExposed, state)
	}
	if err := m.gate.Acquire(); err != nil {
		return nil, err
	}

	m.debugLog("session opened", "name", m.config.Name)
	return &Session{manager: m}, nil
}

// Handle registers fn as the handler for command cmd, replacing any
// previous handler. Records whose command has no handler take the
// default branch: logged, accepted.
func (m *Manager) Handle(cmd uint32, fn CommandHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[cmd] = fn
}

// writeRecord stores rec as the current record and dispatches it. The
// handler runs outside the lock so it may call back into the Manager.
func (m *Manager) writeRecord(rec params.Record) error {
	m.mu.Lock()
	m.record = rec
	handler := m.handlers[rec.Command]
	m.mu.Unlock()

	if handler == nil {
		m.debugLog("no handler for command", "record", rec.String())
		return nil
	}
	return handler(rec)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the authority-assigned identity. Zero until the
// endpoint has registered.
func (m *Manager) Identity() registry.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// HolderCount returns 1 while a session holds the endpoint, else 0.
func (m *Manager) HolderCount() int {
	return m.gate.HolderCount()
}

// CurrentRecord returns the last record written through a session.
func (m *Manager) CurrentRecord() params.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}

// Name returns the configured instance name.
func (m *Manager) Name() string {
	return m.config.Name
}

// ClassName returns the configured class object name.
func (m *Manager) ClassName() string {
	return m.config.ClassName
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// debugLog logs a debug message if logging is enabled.
func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
