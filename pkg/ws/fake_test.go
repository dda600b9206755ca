package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/protocol"
)

var errBroken = errors.New("broken pipe")

// fakeConn 内存连接
type fakeConn struct {
	id string

	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	sendErr error
	pingErr error
	pings   int
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) failPings(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

// events 解码收到的全部事件并清空
func (c *fakeConn) events(t *testing.T) []protocol.Event {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	out := make([]protocol.Event, 0, len(frames))
	for _, f := range frames {
		evt, err := protocol.DecodeEvent(f)
		require.NoError(t, err)
		out = append(out, evt)
	}
	return out
}

// types 只取事件类型
func types(events []protocol.Event) []protocol.Type {
	out := make([]protocol.Type, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

// fixedClock 返回固定时间
func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

// newTestHub 创建测试 Hub
func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	h, err := NewHub(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.Shutdown(context.Background())
	})
	return h
}

// connect 注册一个假连接
func connect(t *testing.T, h *Hub, id string) (*fakeConn, Session) {
	t.Helper()
	c := newFakeConn(id)
	s, err := h.Connect(context.Background(), c)
	require.NoError(t, err)
	return c, s
}

// captureHook 记录写出的日志
type captureHook struct {
	mu      sync.Mutex
	entries []capturedEntry
}

type capturedEntry struct {
	msg    string
	fields map[string]string
}

func (h *captureHook) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	out := make(map[string]string, len(enc.Fields))
	for k, v := range enc.Fields {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, capturedEntry{msg: entry.Message, fields: out})
	return nil
}

// find 按消息查找第一条日志
func (h *captureHook) find(msg string) (capturedEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return capturedEntry{}, false
}

// newCaptureLogger 创建带 captureHook 的 Logger
func newCaptureLogger(t *testing.T) (logger.Logger, *captureHook) {
	t.Helper()
	hook := &captureHook{}
	l, err := logger.NewWithOptions(
		logger.WithLevel(logger.DebugLevel),
		logger.WithConsoleOutput(),
		logger.WithHook(hook),
	)
	require.NoError(t, err)
	return l, hook
}
