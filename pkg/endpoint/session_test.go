package endpoint_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devport-proto/devport-go/internal/testharness/mock"
	"github.com/devport-proto/devport-go/pkg/endpoint"
	"github.com/devport-proto/devport-go/pkg/params"
)

func openTestSession(t *testing.T) (*endpoint.Manager, *endpoint.Session) {
	t.Helper()
	mgr, err := endpoint.New(&mock.Authority{}, endpoint.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, mgr.Start(context.Background()))

	sess, err := mgr.Open()
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return mgr, sess
}

func TestSessionWriteRead(t *testing.T) {
	mgr, sess := openTestSession(t)

	rec := params.Record{Command: 7, TargetAddr: 0x1000, Length: 64}
	n, err := sess.Write(params.Encode(rec))
	require.NoError(t, err)
	assert.Equal(t, params.RecordSize, n)
	assert.Equal(t, rec, mgr.CurrentRecord())

	buf := make([]byte, params.RecordSize)
	n, err = sess.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, params.RecordSize, n)

	got, err := params.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSessionWriteSizeGuard(t *testing.T) {
	mgr, sess := openTestSession(t)

	rec := params.Record{Command: 3, TargetAddr: 0x2000, Length: 8}
	_, err := sess.Write(params.Encode(rec))
	require.NoError(t, err)

	// Short, long, and empty transfers are all rejected whole.
	for _, size := range []int{0, 1, params.RecordSize - 1, params.RecordSize + 1, 2 * params.RecordSize} {
		n, err := sess.Write(make([]byte, size))
		assert.Equal(t, 0, n, "size %d", size)
		assert.ErrorIs(t, err, params.ErrRecordSize, "size %d", size)
	}

	// A rejected transfer leaves the current record untouched.
	assert.Equal(t, rec, mgr.CurrentRecord())
}

func TestSessionReadSizeGuard(t *testing.T) {
	_, sess := openTestSession(t)

	for _, size := range []int{0, params.RecordSize - 1, params.RecordSize + 4} {
		buf := make([]byte, size)
		n, err := sess.Read(buf)
		assert.Equal(t, 0, n, "size %d", size)
		assert.ErrorIs(t, err, params.ErrRecordSize, "size %d", size)
	}
}

func TestSessionDispatch(t *testing.T) {
	mgr, sess := openTestSession(t)

	var got params.Record
	mgr.Handle(7, func(rec params.Record) error {
		got = rec
		return nil
	})

	rec := params.Record{Command: 7, TargetAddr: 0xbeef, Length: 32}
	_, err := sess.Write(params.Encode(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSessionDispatchUnknownCommand(t *testing.T) {
	mgr, sess := openTestSession(t)

	mgr.Handle(1, func(params.Record) error {
		t.Error("handler for command 1 should not run")
		return nil
	})

	// No handler for command 42: default branch accepts the record.
	rec := params.Record{Command: 42, TargetAddr: 0x10, Length: 4}
	n, err := sess.Write(params.Encode(rec))
	require.NoError(t, err)
	assert.Equal(t, params.RecordSize, n)
	assert.Equal(t, rec, mgr.CurrentRecord())
}

func TestSessionDispatchHandlerError(t *testing.T) {
	mgr, sess := openTestSession(t)

	handlerErr := errors.New("target rejected command")
	mgr.Handle(9, func(params.Record) error {
		return handlerErr
	})

	rec := params.Record{Command: 9, TargetAddr: 0x44, Length: 16}
	n, err := sess.Write(params.Encode(rec))

	// The record was consumed and stored; the handler error rides along.
	assert.Equal(t, params.RecordSize, n)
	assert.ErrorIs(t, err, handlerErr)
	assert.Equal(t, rec, mgr.CurrentRecord())
}

func TestSessionClosed(t *testing.T) {
	_, sess := openTestSession(t)

	require.NoError(t, sess.Close())

	_, err := sess.Write(make([]byte, params.RecordSize))
	assert.ErrorIs(t, err, endpoint.ErrSessionClosed)

	_, err = sess.Read(make([]byte, params.RecordSize))
	assert.ErrorIs(t, err, endpoint.ErrSessionClosed)

	// Close is idempotent.
	require.NoError(t, sess.Close())
}

func TestSessionCloseReleasesOnce(t *testing.T) {
	mgr, sess := openTestSession(t)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 0, mgr.HolderCount())

	// A second session's claim must not be disturbed by stale Close
	// calls on the first.
	sess2, err := mgr.Open()
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, mgr.HolderCount())
	require.NoError(t, sess2.Close())
}
