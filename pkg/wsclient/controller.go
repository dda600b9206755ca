package wsclient

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/protocol"
)

// Controller 客户端重连控制器
//
// 状态转换交给 Machine，控制器只负责拨号、读循环和重试定时器。
// 每次连接尝试分配一个代号，过期尝试的回调一律丢弃。
type Controller struct {
	url     string
	policy  Policy
	dial    DialFunc
	clock   Clock
	logger  logger.Logger
	metrics Metrics
	onState StateFunc
	onEvent EventFunc

	mu         sync.Mutex
	machine    *Machine
	gen        uint64
	transport  Transport
	timer      Timer
	cancelDial context.CancelFunc
	closed     bool
	pending    []func()
}

// New 创建控制器
func New(url string, opts ...Option) *Controller {
	c := &Controller{
		url:    url,
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dial == nil {
		d := &Dialer{Subprotocols: []string{"chat"}}
		c.dial = d.Dial
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if c.metrics == nil {
		c.metrics = &NoopMetrics{}
	}
	c.machine = NewMachine(c.policy)
	c.policy = c.machine.Policy()

	return c
}

// Start 建立连接
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.closed {
		return ErrClosed
	}
	return c.connectLocked()
}

// Reconnect 手动重连
//
// 任何状态下都可调用：取消待执行的重试，清零计数，放弃当前连接并立即重新建连。
func (c *Controller) Reconnect() error {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.closed {
		return ErrClosed
	}
	c.teardownLocked()
	if s := c.machine.State(); s == StateConnecting || s == StateOpen {
		c.machine.Closed(true)
	}
	c.machine.Reset()
	return c.connectLocked()
}

// Disconnect 主动断开，不触发自动重试
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.closed {
		return
	}
	c.disconnectLocked()
}

// Close 销毁控制器：取消重试定时器，放弃进行中的连接尝试
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.closed {
		return
	}
	c.disconnectLocked()
	c.closed = true
}

// State 当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Status 界面状态
func (c *Controller) Status() Status {
	return c.State().Status()
}

// GaveUp 是否已放弃自动重连，需要手动 Reconnect
func (c *Controller) GaveUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.GaveUp()
}

// Attempt 已安排的自动重试次数
func (c *Controller) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Attempt()
}

// Send 发送命令
func (c *Controller) Send(cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	t := c.transport
	open := c.machine.State() == StateOpen
	c.mu.Unlock()

	if !open || t == nil {
		return ErrNotConnected
	}
	return t.Write(data)
}

// Chat 发送聊天消息
func (c *Controller) Chat(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.Send(protocol.ChatCommand(text))
}

// Rename 修改显示名
func (c *Controller) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyMessage
	}
	return c.Send(protocol.RenameCommand(name))
}

// connectLocked 发起一次连接尝试
func (c *Controller) connectLocked() error {
	if !c.machine.Begin() {
		return ErrAlreadyConnecting
	}
	c.stopTimerLocked()

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithTimeout(context.Background(), c.policy.ConnectTimeout)
	c.cancelDial = cancel
	c.notifyLocked(StateConnecting, nil)

	go c.connect(ctx, cancel, gen)
	return nil
}

// connect 拨号并运行读循环
func (c *Controller) connect(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	t, err := c.dial(ctx, c.url)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.closed {
		// 已被放弃的尝试
		c.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("connect timed out", zap.String("url", c.url), zap.Duration("timeout", c.policy.ConnectTimeout))
		} else {
			c.logger.Warn("connect failed", zap.String("url", c.url), zap.Error(err))
		}
		c.closedLocked(gen, false, err)
		c.unlockAndFlush()
		return
	}

	c.transport = t
	c.machine.Opened()
	c.logger.Info("connected", zap.String("url", c.url))
	c.notifyLocked(StateOpen, nil)
	c.unlockAndFlush()

	c.readLoop(t, gen)
}

// readLoop 读取服务端事件直到连接结束
func (c *Controller) readLoop(t Transport, gen uint64) {
	for {
		data, err := t.Read()
		if err != nil {
			c.mu.Lock()
			if gen == c.gen && !c.closed {
				c.transport = nil
				c.closedLocked(gen, IsNormalClosure(err), err)
			}
			c.unlockAndFlush()
			_ = t.Close()
			return
		}

		evt, err := protocol.DecodeEvent(data)
		if err != nil {
			c.logger.Warn("discard malformed event", zap.Error(err))
			continue
		}
		if c.onEvent != nil {
			c.onEvent(evt)
		}
	}
}

// closedLocked 进入 Closed，按策略安排重试
func (c *Controller) closedLocked(gen uint64, normal bool, reason error) {
	delay, retry := c.machine.Closed(normal)
	c.notifyLocked(StateClosed, reason)

	if !retry {
		if c.machine.GaveUp() {
			c.metrics.IncrementGiveUps()
			c.logger.Warn("reconnect attempts exhausted", zap.Int("max_attempts", c.policy.MaxAttempts))
		}
		return
	}

	c.metrics.IncrementReconnects()
	c.logger.Info("schedule reconnect",
		zap.Duration("delay", delay),
		zap.Int("attempt", c.machine.Attempt()),
	)
	c.timer = c.clock.AfterFunc(delay, func() {
		c.retry(gen)
	})
}

// retry 定时器回调
func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.closed || gen != c.gen || c.machine.State() != StateClosed {
		return
	}
	c.timer = nil
	if err := c.connectLocked(); err != nil {
		c.logger.Warn("automatic reconnect skipped", zap.Error(err))
	}
}

// disconnectLocked 正常关闭当前连接并停止重试
func (c *Controller) disconnectLocked() {
	active := c.teardownLocked()
	if s := c.machine.State(); s == StateConnecting || s == StateOpen || active {
		c.machine.Closed(true)
		c.notifyLocked(StateClosed, ErrClosedByUser)
	}
}

// teardownLocked 放弃当前尝试与连接，使其回调失效
func (c *Controller) teardownLocked() bool {
	c.stopTimerLocked()
	c.gen++

	active := false
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
		active = true
	}
	if c.transport != nil {
		t := c.transport
		c.transport = nil
		active = true
		c.pending = append(c.pending, func() { _ = t.Close() })
	}
	return active
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// notifyLocked 记录状态变化，解锁后回调
func (c *Controller) notifyLocked(state State, reason error) {
	c.metrics.SetState(state.String())
	if c.onState == nil {
		return
	}
	fn := c.onState
	c.pending = append(c.pending, func() { fn(state, reason) })
}

// unlockAndFlush 解锁并执行挂起的回调
func (c *Controller) unlockAndFlush() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// isTimeout 是否为建连超时
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
