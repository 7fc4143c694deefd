package service

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/devport-proto/devport-go/internal/testharness/mock"
	"github.com/devport-proto/devport-go/pkg/endpoint"
	"github.com/devport-proto/devport-go/pkg/log"
	"github.com/devport-proto/devport-go/pkg/params"
	"github.com/devport-proto/devport-go/pkg/transport"
	"github.com/devport-proto/devport-go/pkg/wire"
)

// Test helpers

func testConfig() Config {
	config := DefaultConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.BusyRetryHint = 250 * time.Millisecond
	return config
}

func newTestService(t *testing.T) (*EndpointService, *mock.Authority) {
	t.Helper()

	authority := &mock.Authority{}
	mgr, err := endpoint.New(authority, endpoint.DefaultConfig())
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}

	svc, err := NewEndpointService(mgr, testConfig())
	if err != nil {
		t.Fatalf("NewEndpointService failed: %v", err)
	}
	return svc, authority
}

func startTestService(t *testing.T) (*EndpointService, *mock.Authority) {
	t.Helper()

	svc, authority := newTestService(t)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if svc.State() == StateRunning {
			_ = svc.Stop()
		}
	})
	return svc, authority
}

func dialTestService(t *testing.T, svc *EndpointService) *transport.ClientConn {
	t.Helper()

	client := transport.NewClient(transport.ClientConfig{
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
	})
	conn, err := client.Connect(context.Background(), svc.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Lifecycle tests

func TestNewEndpointService(t *testing.T) {
	svc, _ := newTestService(t)

	if svc.State() != StateIdle {
		t.Errorf("expected state IDLE, got %v", svc.State())
	}
	if svc.Manager() == nil {
		t.Error("Manager() returned nil")
	}
	if svc.Addr() != nil {
		t.Error("Addr() should be nil before Start")
	}
}

func TestEndpointServiceInvalidConfig(t *testing.T) {
	mgr, err := endpoint.New(&mock.Authority{}, endpoint.DefaultConfig())
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}

	_, err = NewEndpointService(mgr, Config{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	config := testConfig()
	config.BusyRetryHint = -1 * time.Second
	_, err = NewEndpointService(mgr, config)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for negative hint, got %v", err)
	}
}

func TestEndpointServiceStartStop(t *testing.T) {
	svc, authority := newTestService(t)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if svc.State() != StateRunning {
		t.Errorf("expected state RUNNING, got %v", svc.State())
	}
	if svc.Manager().State() != endpoint.StateExposed {
		t.Errorf("expected endpoint EXPOSED, got %v", svc.Manager().State())
	}
	if svc.Port() == 0 {
		t.Error("Port() should be nonzero after Start")
	}

	// Start again should fail
	if err := svc.Start(ctx); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("expected state STOPPED, got %v", svc.State())
	}
	if svc.Manager().State() != endpoint.StateUnregistered {
		t.Errorf("expected endpoint UNREGISTERED, got %v", svc.Manager().State())
	}

	// The endpoint was withdrawn in teardown order.
	if authority.UnpublishCalls != 1 || authority.DestroyClassCalls != 1 || authority.DeregisterCalls != 1 {
		t.Errorf("teardown calls: unpublish=%d destroyClass=%d deregister=%d, want 1 each",
			authority.UnpublishCalls, authority.DestroyClassCalls, authority.DeregisterCalls)
	}

	// Stop again should fail
	if err := svc.Stop(); err != ErrNotStarted {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestEndpointServiceStartManagerFailure(t *testing.T) {
	authority := &mock.Authority{FailRegister: errors.New("authority down")}
	mgr, err := endpoint.New(authority, endpoint.DefaultConfig())
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}
	svc, err := NewEndpointService(mgr, testConfig())
	if err != nil {
		t.Fatalf("NewEndpointService failed: %v", err)
	}

	err = svc.Start(context.Background())
	if !errors.Is(err, endpoint.ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	if svc.State() != StateIdle {
		t.Errorf("expected state IDLE after failed start, got %v", svc.State())
	}
	if svc.Addr() != nil {
		t.Error("no server should be listening after failed start")
	}
}

func TestEndpointServiceServerStartFailureUnwindsEndpoint(t *testing.T) {
	// Occupy a port so the transport server cannot bind it.
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer blocker.Close()

	authority := &mock.Authority{}
	mgr, err := endpoint.New(authority, endpoint.DefaultConfig())
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}
	config := testConfig()
	config.ListenAddress = blocker.Addr().String()
	svc, err := NewEndpointService(mgr, config)
	if err != nil {
		t.Fatalf("NewEndpointService failed: %v", err)
	}

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("Start should fail when the port is taken")
	}
	if svc.State() != StateIdle {
		t.Errorf("expected state IDLE, got %v", svc.State())
	}

	// The exposed endpoint was torn back down.
	if mgr.State() != endpoint.StateUnregistered {
		t.Errorf("expected endpoint UNREGISTERED, got %v", mgr.State())
	}
	if authority.UnpublishCalls != 1 {
		t.Errorf("UnpublishCalls = %d, want 1", authority.UnpublishCalls)
	}
}

// Protocol tests

func TestEndpointServiceOpenWriteReadClose(t *testing.T) {
	svc, _ := startTestService(t)
	conn := dialTestService(t, svc)

	if err := conn.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if svc.Manager().HolderCount() != 1 {
		t.Errorf("HolderCount = %d, want 1", svc.Manager().HolderCount())
	}

	record := params.Encode(params.Record{Command: 7, TargetAddr: 0x1000, Length: 64})
	written, err := conn.WriteRecord(record)
	if err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if written != params.RecordSize {
		t.Errorf("written = %d, want %d", written, params.RecordSize)
	}

	got, err := conn.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if !bytes.Equal(got, record) {
		t.Errorf("ReadRecord = %x, want %x", got, record)
	}

	info, err := conn.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.State != uint8(endpoint.StateExposed) {
		t.Errorf("info.State = %d, want EXPOSED", info.State)
	}
	if info.Holders != 1 {
		t.Errorf("info.Holders = %d, want 1", info.Holders)
	}
	if info.Name != "devport0" || info.Class != "devport" {
		t.Errorf("info name/class = %q/%q", info.Name, info.Class)
	}

	if err := conn.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if svc.Manager().HolderCount() != 0 {
		t.Errorf("HolderCount after release = %d, want 0", svc.Manager().HolderCount())
	}
}

func TestEndpointServiceBusy(t *testing.T) {
	svc, _ := startTestService(t)
	holder := dialTestService(t, svc)
	waiter := dialTestService(t, svc)

	if err := holder.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := waiter.Open()
	if !transport.IsBusy(err) {
		t.Fatalf("expected busy error, got %v", err)
	}
	var busy *transport.BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected *BusyError, got %T", err)
	}
	if busy.RetryAfter != 250*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 250ms", busy.RetryAfter)
	}

	// Release frees the endpoint for the waiter.
	if err := holder.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := waiter.Open(); err != nil {
		t.Fatalf("Open after release failed: %v", err)
	}
}

func TestEndpointServiceWriteWithoutSession(t *testing.T) {
	svc, _ := startTestService(t)
	conn := dialTestService(t, svc)

	_, err := conn.WriteRecord(params.Encode(params.Record{Command: 1}))
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != wire.StatusNoSession {
		t.Errorf("status = %v, want NO_SESSION", statusErr.Status)
	}

	_, err = conn.ReadRecord()
	if !errors.As(err, &statusErr) || statusErr.Status != wire.StatusNoSession {
		t.Errorf("read without session: got %v, want NO_SESSION", err)
	}

	if err := conn.Release(); err == nil {
		t.Error("Release without session should fail")
	}
}

func TestEndpointServiceRecordSizeGuard(t *testing.T) {
	svc, _ := startTestService(t)
	conn := dialTestService(t, svc)

	if err := conn.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for _, size := range []int{0, 1, params.RecordSize - 1, params.RecordSize + 1} {
		_, err := conn.WriteRecord(make([]byte, size))
		var statusErr *transport.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("size %d: expected *StatusError, got %v", size, err)
		}
		if statusErr.Status != wire.StatusRecordSize {
			t.Errorf("size %d: status = %v, want RECORD_SIZE", size, statusErr.Status)
		}
	}

	// The guard consumed nothing: the current record is still zero.
	if rec := svc.Manager().CurrentRecord(); rec != (params.Record{}) {
		t.Errorf("current record = %+v, want zero", rec)
	}
}

func TestEndpointServiceDisconnectReleasesSession(t *testing.T) {
	svc, _ := startTestService(t)
	holder := dialTestService(t, svc)

	if err := holder.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Dropping the connection releases the claim without a CLOSE.
	if err := holder.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	waiter := dialTestService(t, svc)
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := waiter.Open()
		if err == nil {
			break
		}
		if !transport.IsBusy(err) {
			t.Fatalf("unexpected open error: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("endpoint still busy after holder disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndpointServiceCommandDispatch(t *testing.T) {
	svc, _ := startTestService(t)

	handled := make(chan params.Record, 1)
	svc.Manager().Handle(7, func(rec params.Record) error {
		handled <- rec
		return nil
	})

	conn := dialTestService(t, svc)
	if err := conn.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	want := params.Record{Command: 7, TargetAddr: 0x1000, Length: 64}
	if _, err := conn.WriteRecord(params.Encode(want)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	select {
	case got := <-handled:
		if got != want {
			t.Errorf("handler got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestEndpointServiceHandlerErrorReported(t *testing.T) {
	svc, _ := startTestService(t)
	svc.Manager().Handle(9, func(params.Record) error {
		return errors.New("target rejected command")
	})

	conn := dialTestService(t, svc)
	if err := conn.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	_, err := conn.WriteRecord(params.Encode(params.Record{Command: 9}))
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != wire.StatusInternal {
		t.Errorf("status = %v, want INTERNAL", statusErr.Status)
	}

	// The record was still stored; its bytes were consumed.
	if got := svc.Manager().CurrentRecord(); got.Command != 9 {
		t.Errorf("current record command = %d, want 9", got.Command)
	}
}

func TestEndpointServiceEvents(t *testing.T) {
	svc, _ := startTestService(t)

	events := make(chan Event, 16)
	svc.OnEvent(func(e Event) { events <- e })

	conn := dialTestService(t, svc)
	if err := conn.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rec := params.Record{Command: 7, TargetAddr: 0x1000, Length: 64}
	if _, err := conn.WriteRecord(params.Encode(rec)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if err := conn.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	want := []EventType{EventSessionOpened, EventRecordWritten, EventSessionClosed}
	got := make(map[EventType]Event)
	deadline := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case e := <-events:
			got[e.Type] = e
		case <-deadline:
			t.Fatalf("timed out, got events %v", got)
		}
	}

	if got[EventRecordWritten].Record != rec {
		t.Errorf("record event = %+v, want %+v", got[EventRecordWritten].Record, rec)
	}
	if got[EventSessionOpened].ConnID == "" {
		t.Error("session opened event missing connection ID")
	}
}

func TestEndpointServiceBusyEmitsClientRejected(t *testing.T) {
	svc, _ := startTestService(t)

	events := make(chan Event, 16)
	svc.OnEvent(func(e Event) { events <- e })

	holder := dialTestService(t, svc)
	if err := holder.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waiter := dialTestService(t, svc)
	if err := waiter.Open(); !transport.IsBusy(err) {
		t.Fatalf("expected busy, got %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == EventClientRejected {
				if e.Error == nil {
					t.Error("client rejected event missing error")
				}
				return
			}
		case <-deadline:
			t.Fatal("no CLIENT_REJECTED event")
		}
	}
}

func TestEndpointServiceInfoWithoutSession(t *testing.T) {
	svc, _ := startTestService(t)
	conn := dialTestService(t, svc)

	info, err := conn.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.State != uint8(endpoint.StateExposed) {
		t.Errorf("info.State = %d, want EXPOSED", info.State)
	}
	if info.Holders != 0 {
		t.Errorf("info.Holders = %d, want 0", info.Holders)
	}
	if info.Identity == 0 {
		t.Error("info.Identity should be nonzero")
	}
}

// captureLogger collects traffic capture events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(event log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogger) snapshot() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]log.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestEndpointServiceProtocolCapture(t *testing.T) {
	capture := &captureLogger{}

	authority := &mock.Authority{}
	mgr, err := endpoint.New(authority, endpoint.DefaultConfig())
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}

	config := testConfig()
	config.ProtocolLogger = capture
	svc, err := NewEndpointService(mgr, config)
	if err != nil {
		t.Fatalf("NewEndpointService failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if svc.State() == StateRunning {
			_ = svc.Stop()
		}
	})

	conn := dialTestService(t, svc)

	if err := conn.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	record := params.Encode(params.Record{Command: 7, TargetAddr: 0x1000, Length: 64})
	if _, err := conn.WriteRecord(record); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	got, err := conn.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if !bytes.Equal(got, record) {
		t.Fatalf("ReadRecord returned %x, want %x", got, record)
	}
	if err := conn.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	events := capture.snapshot()
	if len(events) == 0 {
		t.Fatal("no capture events recorded")
	}

	var (
		frames        int
		connState     int
		writeRequest  *log.MessageEvent
		readResponse  *log.MessageEvent
		requestCount  int
		responseCount int
	)
	for i := range events {
		e := events[i]
		switch {
		case e.Frame != nil:
			frames++
			if e.ConnID == "" {
				t.Error("frame event missing conn ID")
			}
		case e.StateChange != nil:
			if e.StateChange.Entity == log.StateEntityConnection {
				connState++
			}
		case e.Message != nil:
			switch e.Message.Type {
			case log.MessageTypeRequest:
				requestCount++
				if e.Message.Operation != nil && *e.Message.Operation == wire.OpWrite {
					writeRequest = e.Message
				}
			case log.MessageTypeResponse:
				responseCount++
				if len(e.Message.Record) > 0 {
					readResponse = e.Message
				}
			}
		}
	}

	// Open, write, read, close: four requests and four responses at the
	// wire layer, each also visible as frames at the transport layer.
	if requestCount != 4 {
		t.Errorf("got %d request events, want 4", requestCount)
	}
	if responseCount != 4 {
		t.Errorf("got %d response events, want 4", responseCount)
	}
	if frames < 8 {
		t.Errorf("got %d frame events, want at least 8", frames)
	}
	if connState == 0 {
		t.Error("no connection state events captured")
	}

	if writeRequest == nil {
		t.Fatal("no write request captured")
	}
	if !bytes.Equal(writeRequest.Record, record) {
		t.Errorf("write request record = %x, want %x", writeRequest.Record, record)
	}
	if writeRequest.MessageID == 0 {
		t.Error("write request captured without message ID")
	}

	if readResponse == nil {
		t.Fatal("no read response captured")
	}
	if !bytes.Equal(readResponse.Record, record) {
		t.Errorf("read response record = %x, want %x", readResponse.Record, record)
	}
	if readResponse.Status == nil || *readResponse.Status != wire.StatusSuccess {
		t.Error("read response status not captured as SUCCESS")
	}
}
