package wsclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/relay/pkg/protocol"
)

var errRefused = errors.New("connection refused")

// manualClock 手动触发的时钟
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return &manualHandle{clock: c, timer: t}
}

type manualHandle struct {
	clock *manualClock
	timer *manualTimer
}

func (h *manualHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	active := !h.timer.stopped && !h.timer.fired
	h.timer.stopped = true
	return active
}

// delays 已安排的全部延迟
func (c *manualClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

// fire 触发最早一个未执行的定时器
func (c *manualClock) fire(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	var next *manualTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired {
			next = tm
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	c.mu.Unlock()

	require.NotNil(t, next, "no pending timer")
	next.fn()
}

// pending 未执行的定时器数量
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired {
			n++
		}
	}
	return n
}

// fakeTransport 内存传输
type fakeTransport struct {
	in     chan []byte
	done   chan error
	mu     sync.Mutex
	out    [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 16), done: make(chan error, 1)}
}

func (f *fakeTransport) Read() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case err := <-f.done:
		return nil, err
	}
}

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, data)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		select {
		case f.done <- ErrClosedByUser:
		default:
		}
	}
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer 按顺序返回预设结果
type fakeDialer struct {
	mu      sync.Mutex
	results []func(ctx context.Context) (Transport, error)
	calls   int
	dialed  chan struct{}
}

func (d *fakeDialer) push(fn func(ctx context.Context) (Transport, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, fn)
}

func (d *fakeDialer) fail(err error) {
	d.push(func(context.Context) (Transport, error) { return nil, err })
}

func (d *fakeDialer) succeed(t Transport) {
	d.push(func(context.Context) (Transport, error) { return t, nil })
}

func (d *fakeDialer) block() {
	d.push(func(ctx context.Context) (Transport, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	d.calls++
	select {
	case d.dialed <- struct{}{}:
	default:
	}
	if len(d.results) == 0 {
		d.mu.Unlock()
		return nil, errRefused
	}
	fn := d.results[0]
	d.results = d.results[1:]
	d.mu.Unlock()
	return fn(ctx)
}

// waitDial 等待拨号器被调用
func (d *fakeDialer) waitDial(t *testing.T) {
	t.Helper()
	select {
	case <-d.dialed:
	case <-time.After(2 * time.Second):
		t.Fatal("dialer not called")
	}
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stateRecorder 记录状态变化
type stateRecorder struct {
	ch chan State
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan State, 64)}
}

func (r *stateRecorder) record(s State, _ error) {
	r.ch <- s
}

func (r *stateRecorder) wait(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("state %s not reached", want)
		}
	}
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeDialer, *manualClock, *stateRecorder) {
	t.Helper()
	dialer := &fakeDialer{dialed: make(chan struct{}, 64)}
	clock := &manualClock{}
	rec := newStateRecorder()
	opts = append([]Option{
		WithDialer(dialer.Dial),
		WithClock(clock),
		OnState(rec.record),
	}, opts...)
	c := New("ws://relay.test/ws", opts...)
	t.Cleanup(c.Close)
	return c, dialer, clock, rec
}

func TestControllerBackoffThenGiveUp(t *testing.T) {
	c, dialer, clock, rec := newTestController(t)
	for i := 0; i < 4; i++ {
		dialer.fail(errRefused)
	}

	require.NoError(t, c.Start())
	rec.wait(t, StateClosed)

	for i := 0; i < 3; i++ {
		clock.fire(t)
		rec.wait(t, StateConnecting)
		rec.wait(t, StateClosed)
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.delays())
	assert.Equal(t, 0, clock.pending())
	assert.Equal(t, 4, dialer.count())
	assert.True(t, c.GaveUp())
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestControllerManualReconnectAfterGiveUp(t *testing.T) {
	c, dialer, clock, rec := newTestController(t, WithPolicy(Policy{MaxAttempts: 1}))
	dialer.fail(errRefused)
	dialer.fail(errRefused)

	require.NoError(t, c.Start())
	rec.wait(t, StateClosed)
	clock.fire(t)
	rec.wait(t, StateClosed)
	require.True(t, c.GaveUp())

	tr := newFakeTransport()
	dialer.succeed(tr)
	require.NoError(t, c.Reconnect())
	rec.wait(t, StateOpen)

	assert.False(t, c.GaveUp())
	assert.Equal(t, 0, c.Attempt())
	assert.Equal(t, StatusConnected, c.Status())
}

func TestControllerOpenResetsAndRetriesAfterAbnormalClose(t *testing.T) {
	c, dialer, clock, rec := newTestController(t)
	dialer.fail(errRefused)
	tr := newFakeTransport()
	dialer.succeed(tr)

	require.NoError(t, c.Start())
	rec.wait(t, StateClosed)
	clock.fire(t)
	rec.wait(t, StateOpen)
	assert.Equal(t, 0, c.Attempt())

	tr.done <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	rec.wait(t, StateClosed)

	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.delays())
	assert.Equal(t, 1, clock.pending())
}

func TestControllerNormalCloseDoesNotRetry(t *testing.T) {
	c, dialer, clock, rec := newTestController(t)
	tr := newFakeTransport()
	dialer.succeed(tr)

	require.NoError(t, c.Start())
	rec.wait(t, StateOpen)

	tr.done <- &websocket.CloseError{Code: websocket.CloseNormalClosure}
	rec.wait(t, StateClosed)

	assert.Equal(t, 0, clock.pending())
	assert.False(t, c.GaveUp())
}

func TestControllerStartGuard(t *testing.T) {
	c, dialer, _, rec := newTestController(t)
	dialer.block()

	require.NoError(t, c.Start())
	rec.wait(t, StateConnecting)
	dialer.waitDial(t)
	assert.ErrorIs(t, c.Start(), ErrAlreadyConnecting)
	assert.Equal(t, 1, dialer.count())
}

func TestControllerConnectTimeout(t *testing.T) {
	c, dialer, clock, rec := newTestController(t, WithPolicy(Policy{
		MaxAttempts:    3,
		ConnectTimeout: 20 * time.Millisecond,
	}))
	dialer.block()

	require.NoError(t, c.Start())
	rec.wait(t, StateClosed)
	assert.Equal(t, 1, clock.pending())
}

func TestControllerCloseAbandonsDialAndTimer(t *testing.T) {
	c, dialer, clock, rec := newTestController(t)
	dialer.fail(errRefused)
	dialer.block()

	require.NoError(t, c.Start())
	rec.wait(t, StateClosed)
	require.Equal(t, 1, clock.pending())

	// 计时器在关闭时被取消
	c.Close()
	assert.Equal(t, 0, clock.pending())
	assert.ErrorIs(t, c.Start(), ErrClosed)
	assert.ErrorIs(t, c.Reconnect(), ErrClosed)

	// 关闭进行中的连接尝试
	c2, dialer2, _, rec2 := newTestController(t)
	dialer2.block()
	require.NoError(t, c2.Start())
	rec2.wait(t, StateConnecting)
	dialer2.waitDial(t)
	c2.Close()
	rec2.wait(t, StateClosed)
	assert.Equal(t, 1, dialer2.count())
}

func TestControllerDisconnectClosesTransport(t *testing.T) {
	c, dialer, clock, rec := newTestController(t)
	tr := newFakeTransport()
	dialer.succeed(tr)

	require.NoError(t, c.Start())
	rec.wait(t, StateOpen)

	c.Disconnect()
	rec.wait(t, StateClosed)
	assert.True(t, tr.isClosed())
	assert.Equal(t, 0, clock.pending())
	assert.ErrorIs(t, c.Chat("hi"), ErrNotConnected)
}

func TestControllerSendAndReceive(t *testing.T) {
	events := make(chan protocol.Event, 4)
	c, dialer, _, rec := newTestController(t, OnEvent(func(e protocol.Event) { events <- e }))
	tr := newFakeTransport()
	dialer.succeed(tr)

	require.NoError(t, c.Start())
	rec.wait(t, StateOpen)

	tr.in <- []byte(`{"type":"join","userId":"user_2","userName":"User 2","userCount":2}`)
	tr.in <- []byte(`garbage`)
	tr.in <- []byte(`{"type":"chat","userId":"user_2","userName":"User 2","message":"hi"}`)

	e := <-events
	assert.Equal(t, protocol.TypeJoined, e.Type)
	assert.Equal(t, 2, e.OnlineCount())
	e = <-events
	assert.Equal(t, protocol.TypeChat, e.Type)
	assert.Equal(t, "hi", e.Text)

	require.NoError(t, c.Chat("hello"))
	require.NoError(t, c.Rename(" bob "))
	assert.ErrorIs(t, c.Chat("   "), ErrEmptyMessage)

	tr.mu.Lock()
	out := tr.out
	tr.mu.Unlock()
	require.Len(t, out, 2)

	cmd, err := protocol.DecodeCommand(out[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.KindChat, cmd.Kind())
	assert.Equal(t, "hello", cmd.Text)

	cmd, err = protocol.DecodeCommand(out[1])
	require.NoError(t, err)
	assert.Equal(t, protocol.KindRename, cmd.Kind())
	assert.Equal(t, "bob", cmd.Name)
}
