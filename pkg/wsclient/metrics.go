package wsclient

// Metrics 客户端监控接口
type Metrics interface {
	IncrementReconnects()
	IncrementGiveUps()
	SetState(state string)
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementReconnects()  {}
func (m *NoopMetrics) IncrementGiveUps()     {}
func (m *NoopMetrics) SetState(state string) {}
