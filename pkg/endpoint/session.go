package endpoint

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/devport-proto/devport-go/pkg/params"
)

// Session is one client's exclusive claim on an endpoint, handed out by
// Manager.Open. It holds the gate until Close; the claim is checked at
// open time, not again per transfer.
type Session struct {
	manager *Manager

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ io.ReadWriteCloser = (*Session)(nil)

// Write carries one parameter record into the endpoint. A transfer
// whose length is not exactly params.RecordSize is rejected whole:
// zero bytes consumed, nothing changed. A well-sized record is stored
// as the endpoint's current record and dispatched to its command
// handler; a handler error is returned alongside the full count, since
// the record was already consumed.
func (s *Session) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}

	rec, err := params.Decode(p)
	if err != nil {
		return 0, err
	}
	return params.RecordSize, s.manager.writeRecord(rec)
}

// Read copies the endpoint's current record into p. Like Write, the
// transfer is whole-record: a buffer that is not exactly
// params.RecordSize long is rejected without producing any bytes.
func (s *Session) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}

	if len(p) != params.RecordSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", params.ErrRecordSize, len(p), params.RecordSize)
	}
	copy(p, params.Encode(s.manager.CurrentRecord()))
	return params.RecordSize, nil
}

// Close releases the claim. Only the first Close releases the gate;
// repeated calls are no-ops. Close never fails.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.manager.gate.Release()
		s.manager.debugLog("session closed", "name", s.manager.config.Name)
	})
	return nil
}
