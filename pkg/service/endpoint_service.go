package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/devport-proto/devport-go/pkg/endpoint"
	"github.com/devport-proto/devport-go/pkg/gate"
	"github.com/devport-proto/devport-go/pkg/log"
	"github.com/devport-proto/devport-go/pkg/params"
	"github.com/devport-proto/devport-go/pkg/transport"
	"github.com/devport-proto/devport-go/pkg/version"
	"github.com/devport-proto/devport-go/pkg/wire"
)

// EndpointService serves one endpoint over the network. It owns the
// endpoint manager and the transport server and binds the endpoint's
// single session to the connection that opened it.
type EndpointService struct {
	mu sync.RWMutex

	config  Config
	manager *endpoint.Manager
	server  *transport.Server
	state   ServiceState

	// The connection currently holding the endpoint, if any.
	session     *endpoint.Session
	sessionConn string

	// Event handlers
	eventHandlers []EventHandler

	// Logger for debug output (optional)
	logger *slog.Logger
}

// NewEndpointService creates a service for the given endpoint manager.
func NewEndpointService(manager *endpoint.Manager, config Config) (*EndpointService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &EndpointService{
		config:  config,
		manager: manager,
		state:   StateIdle,
		logger:  config.Logger,
	}, nil
}

// Manager returns the underlying endpoint manager.
func (s *EndpointService) Manager() *endpoint.Manager {
	return s.manager
}

// State returns the current service state.
func (s *EndpointService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Addr returns the bound listener address, or nil before Start.
func (s *EndpointService) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// Port returns the bound listener port, or 0 before Start.
func (s *EndpointService) Port() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return 0
	}
	return s.server.Port()
}

// OnEvent registers an event handler.
func (s *EndpointService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Start brings the endpoint up (register, bind class, expose) and then
// starts the transport server. A server start failure tears the
// endpoint back down so it is never left exposed but unreachable.
func (s *EndpointService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.manager.Start(ctx); err != nil {
		s.setState(StateIdle)
		return err
	}
	s.emitEvent(Event{Type: EventStateChanged, State: s.manager.State()})

	server, err := transport.NewServer(transport.ServerConfig{
		Address:        s.config.ListenAddress,
		Logger:         s.config.Logger,
		ProtocolLogger: s.config.ProtocolLogger,
		OnDisconnect:   s.handleDisconnect,
		OnMessage:      s.handleMessage,
		OnError:        s.handleTransportError,
	})
	if err != nil {
		s.unwindManager()
		s.setState(StateIdle)
		return err
	}

	if err := server.Start(ctx); err != nil {
		s.unwindManager()
		s.setState(StateIdle)
		return err
	}

	s.mu.Lock()
	s.server = server
	s.state = StateRunning
	s.mu.Unlock()

	s.debugLog("service running",
		"address", server.Addr().String(),
		"name", s.manager.Name(),
		"identity", s.manager.Identity())
	return nil
}

// Stop stops the transport server, releases any held session, and
// tears the endpoint down.
func (s *EndpointService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	server := s.server
	s.mu.Unlock()

	// Transport first: no new claims arrive mid-teardown. Stopping the
	// server closes every connection, which releases a held session
	// through the disconnect path.
	if server != nil {
		if err := server.Stop(); err != nil {
			s.debugLog("server stop failed", "error", err)
		}
	}

	s.mu.Lock()
	sess := s.session
	connID := s.sessionConn
	s.session = nil
	s.sessionConn = ""
	s.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
		s.emitEvent(Event{Type: EventSessionClosed, ConnID: connID})
	}

	s.unwindManager()
	s.emitEvent(Event{Type: EventStateChanged, State: s.manager.State()})

	s.setState(StateStopped)
	s.debugLog("service stopped", "name", s.manager.Name())
	return nil
}

// unwindManager tears the endpoint down, logging rather than surfacing
// teardown problems.
func (s *EndpointService) unwindManager() {
	if err := s.manager.Teardown(); err != nil {
		s.debugLog("endpoint teardown failed", "error", err)
	}
}

// handleDisconnect releases the session when its connection goes away.
func (s *EndpointService) handleDisconnect(conn *transport.ServerConn) {
	s.releaseSessionFor(conn.ConnID(), "disconnect")
}

// releaseSessionFor closes the session bound to connID, if any.
func (s *EndpointService) releaseSessionFor(connID, reason string) {
	s.mu.Lock()
	if s.session == nil || s.sessionConn != connID {
		s.mu.Unlock()
		return
	}
	sess := s.session
	s.session = nil
	s.sessionConn = ""
	s.mu.Unlock()

	_ = sess.Close()
	s.debugLog("session released", "connID", connID, "reason", reason)
	s.emitEvent(Event{Type: EventSessionClosed, ConnID: connID})
}

func (s *EndpointService) handleTransportError(conn *transport.ServerConn, err error) {
	if conn != nil {
		s.debugLog("transport error", "connID", conn.ConnID(), "error", err)
		return
	}
	s.debugLog("transport error", "error", err)
}

// handleMessage decodes one request, routes it, and sends the response.
func (s *EndpointService) handleMessage(conn *transport.ServerConn, data []byte) {
	resp := s.dispatch(conn, data)
	out, err := wire.EncodeResponse(resp)
	if err != nil {
		s.debugLog("response encode failed", "connID", conn.ConnID(), "error", err)
		return
	}
	if err := conn.Send(out); err != nil {
		s.debugLog("response send failed", "connID", conn.ConnID(), "error", err)
		return
	}
	s.captureResponse(conn, resp, len(out))
}

// dispatch routes a request to the appropriate handler.
func (s *EndpointService) dispatch(conn *transport.ServerConn, data []byte) *wire.Response {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		// Echo the message ID when the envelope itself decoded.
		var raw wire.Request
		_ = wire.Unmarshal(data, &raw)
		s.debugLog("rejecting malformed request", "connID", conn.ConnID(), "error", err)
		s.captureError(conn, err, "decode request")
		return &wire.Response{
			MessageID: raw.MessageID,
			Status:    wire.StatusInvalidOperation,
			Payload: &wire.ErrorPayload{
				Message: "malformed request",
			},
		}
	}

	s.captureRequest(conn, req, len(data))

	switch req.Operation {
	case wire.OpOpen:
		return s.handleOpen(conn, req)
	case wire.OpClose:
		return s.handleClose(conn, req)
	case wire.OpWrite:
		return s.handleWrite(conn, req)
	case wire.OpRead:
		return s.handleRead(conn, req)
	case wire.OpInfo:
		return s.handleInfo(req)
	default:
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusInvalidOperation,
			Payload: &wire.ErrorPayload{
				Message: "unsupported operation",
			},
		}
	}
}

// handleOpen claims the endpoint for this connection.
func (s *EndpointService) handleOpen(conn *transport.ServerConn, req *wire.Request) *wire.Response {
	sess, err := s.manager.Open()
	if err != nil {
		if errors.Is(err, gate.ErrBusy) {
			s.debugLog("client rejected busy", "connID", conn.ConnID())
			s.emitEvent(Event{Type: EventClientRejected, ConnID: conn.ConnID(), Error: err})
			return &wire.Response{
				MessageID: req.MessageID,
				Status:    wire.StatusBusy,
				Payload: &wire.ErrorPayload{
					Message:      "endpoint busy",
					RetryAfterMs: uint32(s.config.BusyRetryHint.Milliseconds()),
				},
			}
		}
		if errors.Is(err, endpoint.ErrNotExposed) {
			return &wire.Response{
				MessageID: req.MessageID,
				Status:    wire.StatusNotExposed,
				Payload: &wire.ErrorPayload{
					Message: err.Error(),
				},
			}
		}
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusInternal,
			Payload: &wire.ErrorPayload{
				Message: err.Error(),
			},
		}
	}

	s.mu.Lock()
	s.session = sess
	s.sessionConn = conn.ConnID()
	s.mu.Unlock()

	s.debugLog("session opened", "connID", conn.ConnID())
	s.emitEvent(Event{Type: EventSessionOpened, ConnID: conn.ConnID()})
	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
	}
}

// handleClose releases this connection's claim.
func (s *EndpointService) handleClose(conn *transport.ServerConn, req *wire.Request) *wire.Response {
	s.mu.Lock()
	if s.session == nil || s.sessionConn != conn.ConnID() {
		s.mu.Unlock()
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusNoSession,
			Payload: &wire.ErrorPayload{
				Message: "no open session on this connection",
			},
		}
	}
	sess := s.session
	s.session = nil
	s.sessionConn = ""
	s.mu.Unlock()

	_ = sess.Close()
	s.debugLog("session closed", "connID", conn.ConnID())
	s.emitEvent(Event{Type: EventSessionClosed, ConnID: conn.ConnID()})
	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
	}
}

// sessionFor returns the session bound to the connection, or nil.
func (s *EndpointService) sessionFor(conn *transport.ServerConn) *endpoint.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil || s.sessionConn != conn.ConnID() {
		return nil
	}
	return s.session
}

// handleWrite carries one parameter record into the endpoint.
func (s *EndpointService) handleWrite(conn *transport.ServerConn, req *wire.Request) *wire.Response {
	sess := s.sessionFor(conn)
	if sess == nil {
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusNoSession,
			Payload: &wire.ErrorPayload{
				Message: "no open session on this connection",
			},
		}
	}

	var record []byte
	if payload := wire.ExtractWritePayload(req.Payload); payload != nil {
		record = payload.Record
	}

	n, err := sess.Write(record)
	if err != nil {
		if errors.Is(err, params.ErrRecordSize) {
			return &wire.Response{
				MessageID: req.MessageID,
				Status:    wire.StatusRecordSize,
				Payload: &wire.ErrorPayload{
					Message: err.Error(),
				},
			}
		}
		if errors.Is(err, endpoint.ErrSessionClosed) {
			return &wire.Response{
				MessageID: req.MessageID,
				Status:    wire.StatusNoSession,
				Payload: &wire.ErrorPayload{
					Message: err.Error(),
				},
			}
		}
		// Command handler error. The record was consumed and stored.
		s.emitEvent(Event{Type: EventRecordWritten, ConnID: conn.ConnID(), Record: s.manager.CurrentRecord(), Error: err})
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusInternal,
			Payload: &wire.ErrorPayload{
				Message: err.Error(),
			},
		}
	}

	rec := s.manager.CurrentRecord()
	s.debugLog("record written", "connID", conn.ConnID(), "record", rec.String())
	s.emitEvent(Event{Type: EventRecordWritten, ConnID: conn.ConnID(), Record: rec})
	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload: &wire.WriteResponsePayload{
			Written: uint32(n),
		},
	}
}

// handleRead reads the current parameter record back.
func (s *EndpointService) handleRead(conn *transport.ServerConn, req *wire.Request) *wire.Response {
	sess := s.sessionFor(conn)
	if sess == nil {
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusNoSession,
			Payload: &wire.ErrorPayload{
				Message: "no open session on this connection",
			},
		}
	}

	buf := make([]byte, params.RecordSize)
	if _, err := sess.Read(buf); err != nil {
		if errors.Is(err, endpoint.ErrSessionClosed) {
			return &wire.Response{
				MessageID: req.MessageID,
				Status:    wire.StatusNoSession,
				Payload: &wire.ErrorPayload{
					Message: err.Error(),
				},
			}
		}
		return &wire.Response{
			MessageID: req.MessageID,
			Status:    wire.StatusInternal,
			Payload: &wire.ErrorPayload{
				Message: err.Error(),
			},
		}
	}

	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload: &wire.ReadResponsePayload{
			Record: buf,
		},
	}
}

// handleInfo reports the endpoint snapshot. No session required.
func (s *EndpointService) handleInfo(req *wire.Request) *wire.Response {
	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload: &wire.InfoResponsePayload{
			State:    uint8(s.manager.State()),
			Holders:  uint8(s.manager.HolderCount()),
			Identity: uint32(s.manager.Identity()),
			Name:     s.manager.Name(),
			Class:    s.manager.ClassName(),
			Version:  version.Current,
		},
	}
}

func (s *EndpointService) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *EndpointService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := make([]EventHandler, len(s.eventHandlers))
	copy(handlers, s.eventHandlers)
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *EndpointService) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// captureRequest records a decoded request in the traffic capture.
func (s *EndpointService) captureRequest(conn *transport.ServerConn, req *wire.Request, size int) {
	if s.config.ProtocolLogger == nil {
		return
	}

	op := req.Operation
	msg := &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: req.MessageID,
		Operation: &op,
		Size:      size,
	}
	if op == wire.OpWrite {
		if payload := wire.ExtractWritePayload(req.Payload); payload != nil {
			msg.Record = payload.Record
		}
	}

	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:  time.Now(),
		ConnID:     conn.ConnID(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: conn.RemoteAddr().String(),
		Message:    msg,
	})
}

// captureResponse records an outgoing response in the traffic capture.
func (s *EndpointService) captureResponse(conn *transport.ServerConn, resp *wire.Response, size int) {
	if s.config.ProtocolLogger == nil {
		return
	}

	status := resp.Status
	msg := &log.MessageEvent{
		Type:      log.MessageTypeResponse,
		MessageID: resp.MessageID,
		Status:    &status,
		Size:      size,
	}
	if payload, ok := resp.Payload.(*wire.ReadResponsePayload); ok {
		msg.Record = payload.Record
	}

	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:  time.Now(),
		ConnID:     conn.ConnID(),
		Direction:  log.DirectionOut,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: conn.RemoteAddr().String(),
		Message:    msg,
	})
}

// captureError records a wire-layer error in the traffic capture.
func (s *EndpointService) captureError(conn *transport.ServerConn, err error, context string) {
	if s.config.ProtocolLogger == nil {
		return
	}

	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:  time.Now(),
		ConnID:     conn.ConnID(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryError,
		RemoteAddr: conn.RemoteAddr().String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}
