package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/relay"
	"github.com/tokmz/relay/pkg/protocol"
	"github.com/tokmz/relay/pkg/ws"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		evt  protocol.Event
		want string
	}{
		{"welcome", protocol.Welcome("user_1", "User 1", 1), "* joined as User 1 (1 online)"},
		{"joined", protocol.Joined("user_2", "User 2", 2), "* User 2 joined (2 online)"},
		{"left", protocol.Left("user_2", "User 2", 1), "* User 2 left (1 online)"},
		{"renamed other", protocol.Renamed("user_2", "User 2", "bob"), "* User 2 is now bob"},
		{"renamed self", protocol.Renamed("user_1", "User 1", "alice"), "* you are now alice"},
		{"chat", protocol.Chat("user_2", "bob", "hi", "2026-10-16T09:30:15.123Z"), "[09:30:15] bob: hi"},
		{"ack hidden", protocol.ConnectionAck(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(tt.evt, "user_1"))
		})
	}
}

func TestClock(t *testing.T) {
	assert.Equal(t, "09:30:15", clock("2026-10-16T09:30:15Z"))
	assert.Equal(t, "garbage", clock("garbage"))
}

func startRelay(t *testing.T) string {
	t.Helper()
	hub, err := ws.NewHub()
	require.NoError(t, err)
	require.NoError(t, hub.Run())

	e := relay.New(relay.WithMode(gin.TestMode), relay.WithBannerOutput(nil))
	e.Mount(hub)
	srv := httptest.NewServer(e.Handler())
	t.Cleanup(func() {
		_ = hub.Shutdown(context.Background())
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.Type) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		evt, err := protocol.DecodeEvent(data)
		require.NoError(t, err)
		if evt.Type == typ {
			return evt
		}
	}
}

func TestRunChat(t *testing.T) {
	url := startRelay(t)

	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer peer.Close()
	readUntil(t, peer, protocol.TypeWelcome)

	in, input := io.Pipe()
	defer input.Close()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runChat(context.Background(), "", url, "alice", in, out)
	}()

	joined := readUntil(t, peer, protocol.TypeJoined)
	assert.Equal(t, "User 2", joined.Name)
	renamed := readUntil(t, peer, protocol.TypeRenamed)
	assert.Equal(t, "alice", renamed.NewName)

	_, err = io.WriteString(input, "hello\n")
	require.NoError(t, err)
	chat := readUntil(t, peer, protocol.TypeChat)
	assert.Equal(t, "alice", chat.Name)
	assert.Equal(t, "hello", chat.Text)

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","message":"hi alice"}`)))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "User 1: hi alice")
	}, 3*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(input, "/quit\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runChat did not return")
	}

	output := out.String()
	assert.Contains(t, output, "* connected")
	assert.Contains(t, output, "* you are now alice")
	assert.Contains(t, output, "alice (you): hello")
	assert.Contains(t, output, "* disconnected")

	left := readUntil(t, peer, protocol.TypeLeft)
	assert.Equal(t, "alice", left.Name)
}

func TestRunChatGivesUp(t *testing.T) {
	t.Setenv("RELAY_CLIENT_BASE_DELAY", "10ms")
	t.Setenv("RELAY_CLIENT_MAX_DELAY", "20ms")
	t.Setenv("RELAY_CLIENT_MAX_ATTEMPTS", "1")
	t.Setenv("RELAY_CLIENT_CONNECT_TIMEOUT", "200ms")

	// 监听后立即关闭，确保端口上无服务
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	in, input := io.Pipe()
	defer input.Close()
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runChat(ctx, "", url, "", in, out)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "gave up reconnecting")
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
