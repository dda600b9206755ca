package wsclient

import (
	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/protocol"
)

// StateFunc 状态变化回调，reason 为进入 Closed 的原因
type StateFunc func(state State, reason error)

// EventFunc 收到服务端事件回调
type EventFunc func(evt protocol.Event)

// Option 控制器选项
type Option func(*Controller)

// WithPolicy 设置重连策略
func WithPolicy(p Policy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithDialer 设置拨号函数
func WithDialer(dial DialFunc) Option {
	return func(c *Controller) {
		c.dial = dial
	}
}

// WithClock 设置时钟
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// OnState 订阅状态变化
func OnState(fn StateFunc) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}

// OnEvent 订阅服务端事件
func OnEvent(fn EventFunc) Option {
	return func(c *Controller) {
		c.onEvent = fn
	}
}
