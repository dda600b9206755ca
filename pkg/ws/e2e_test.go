package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/relay/pkg/protocol"
)

func startServer(t *testing.T, opts ...Option) (*Hub, string) {
	t.Helper()
	h, err := NewHub(opts...)
	require.NoError(t, err)
	require.NoError(t, h.Run())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.HandleUpgrade(w, r)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{"chat"}, HandshakeTimeout: time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, "chat", resp.Header.Get("Sec-Websocket-Protocol"))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	evt, err := protocol.DecodeEvent(data)
	require.NoError(t, err)
	return evt
}

func TestEndToEndChatScenario(t *testing.T) {
	_, url := startServer(t)

	a := dial(t, url)
	welcome := readEvent(t, a)
	assert.Equal(t, protocol.TypeWelcome, welcome.Type)
	assert.Equal(t, "user_1", welcome.SessionID)
	assert.Equal(t, 1, welcome.OnlineCount())
	assert.Equal(t, protocol.TypeConnectionAck, readEvent(t, a).Type)

	b := dial(t, url)
	welcome = readEvent(t, b)
	assert.Equal(t, protocol.TypeWelcome, welcome.Type)
	assert.Equal(t, "user_2", welcome.SessionID)
	assert.Equal(t, 2, welcome.OnlineCount())
	assert.Equal(t, protocol.TypeConnectionAck, readEvent(t, b).Type)

	joined := readEvent(t, a)
	assert.Equal(t, protocol.TypeJoined, joined.Type)
	assert.Equal(t, "user_2", joined.SessionID)
	assert.Equal(t, 2, joined.OnlineCount())

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","message":"hi"}`)))
	chat := readEvent(t, b)
	assert.Equal(t, protocol.TypeChat, chat.Type)
	assert.Equal(t, "user_1", chat.SessionID)
	assert.Equal(t, "hi", chat.Text)
	assert.NotEmpty(t, chat.Timestamp)

	// B 异常断开，A 收到的下一帧就是离开事件（没有自己的回显）
	require.NoError(t, b.NetConn().Close())
	left := readEvent(t, a)
	assert.Equal(t, protocol.TypeLeft, left.Type)
	assert.Equal(t, "user_2", left.SessionID)
	assert.Equal(t, 1, left.OnlineCount())
}

func TestEndToEndMalformedFrameKeepsSession(t *testing.T) {
	_, url := startServer(t)

	a := dial(t, url)
	readEvent(t, a)
	readEvent(t, a)
	b := dial(t, url)
	readEvent(t, b)
	readEvent(t, b)
	readEvent(t, a)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{oops`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"rename","name":"alice"}`)))

	for _, conn := range []*websocket.Conn{a, b} {
		evt := readEvent(t, conn)
		assert.Equal(t, protocol.TypeRenamed, evt.Type)
		assert.Equal(t, "alice", evt.NewName)
	}
}

func TestUpgradeRejectedWhenFull(t *testing.T) {
	h, url := startServer(t, WithMaxConnections(1))

	a := dial(t, url)
	readEvent(t, a)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, h.Online())
}

func TestShutdownDuringUpgrades(t *testing.T) {
	h, url := startServer(t)
	dialer := websocket.Dialer{Subprotocols: []string{"chat"}, HandshakeTimeout: time.Second}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := dialer.Dial(url, nil)
			if err == nil {
				conn.Close()
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	wg.Wait()

	// 晚于关闭完成注册的连接也会被移除
	assert.Eventually(t, func() bool { return h.Online() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, h.Admit(), ErrHubClosed)
}
