package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/relay/pkg/protocol"
)

func TestBroadcastSkipsExcluded(t *testing.T) {
	r := NewRegistry(0)
	a, b, c := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")
	for _, conn := range []*fakeConn{a, b, c} {
		require.NoError(t, r.Insert(conn, Session{ID: conn.id}, nil))
	}
	d := NewDispatcher(r, nil, nil, nil)

	n := d.Broadcast(context.Background(), protocol.Chat("a", "A", "hi", "t"), a)

	assert.Equal(t, 2, n)
	assert.Empty(t, a.events(t))
	assert.Len(t, b.events(t), 1)
	assert.Len(t, c.events(t), 1)
}

func TestBroadcastSkipsClosed(t *testing.T) {
	r := NewRegistry(0)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Insert(a, Session{}, nil))
	require.NoError(t, r.Insert(b, Session{}, nil))
	b.Close()

	d := NewDispatcher(r, nil, nil, func(context.Context, Conn, error) {
		t.Fatal("closed connection must not be reported as failed")
	})

	assert.Equal(t, 1, d.Broadcast(context.Background(), protocol.ConnectionAck(), nil))
}

func TestBroadcastFailureEvictsOnlyBrokenConn(t *testing.T) {
	r := NewRegistry(0)
	a, b, c := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")
	for _, conn := range []*fakeConn{a, b, c} {
		require.NoError(t, r.Insert(conn, Session{}, nil))
	}
	b.failSends(ErrChannelFull)

	var failed []string
	d := NewDispatcher(r, nil, nil, func(_ context.Context, conn Conn, err error) {
		assert.ErrorIs(t, err, ErrChannelFull)
		failed = append(failed, conn.ID())
	})

	n := d.Broadcast(context.Background(), protocol.Renamed("user_1", "x", "y"), nil)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b"}, failed)
	assert.Len(t, a.events(t), 1)
	assert.Len(t, c.events(t), 1)
}

func TestBroadcastEmptyRegistry(t *testing.T) {
	d := NewDispatcher(NewRegistry(0), nil, nil, nil)
	assert.Equal(t, 0, d.Broadcast(context.Background(), protocol.ConnectionAck(), nil))
}

func TestBroadcastPreservesOrder(t *testing.T) {
	r := NewRegistry(0)
	a := newFakeConn("a")
	require.NoError(t, r.Insert(a, Session{}, nil))
	d := NewDispatcher(r, nil, nil, nil)

	for _, text := range []string{"1", "2", "3"} {
		d.Broadcast(context.Background(), protocol.Chat("x", "X", text, "t"), nil)
	}

	var texts []string
	for _, e := range a.events(t) {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{"1", "2", "3"}, texts)
}
