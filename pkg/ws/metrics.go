package ws

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)
	IncrementEvictions(reason string)

	// 消息指标
	IncrementMessageCount(msgType string)
	IncrementInvalidMessages()

	// 广播指标
	RecordBroadcastLatency(d time.Duration)
	AddDelivered(eventType string, n int)
	IncrementDroppedMessages()

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()                  {}
func (m *NoopMetrics) DecrementConnections()                  {}
func (m *NoopMetrics) SetConnectionCount(count int)           {}
func (m *NoopMetrics) IncrementEvictions(reason string)       {}
func (m *NoopMetrics) IncrementMessageCount(msgType string)   {}
func (m *NoopMetrics) IncrementInvalidMessages()              {}
func (m *NoopMetrics) RecordBroadcastLatency(d time.Duration) {}
func (m *NoopMetrics) AddDelivered(eventType string, n int)   {}
func (m *NoopMetrics) IncrementDroppedMessages()              {}
func (m *NoopMetrics) IncrementReadErrors()                   {}
func (m *NoopMetrics) IncrementWriteErrors()                  {}
