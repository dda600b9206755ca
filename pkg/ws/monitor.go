package ws

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/logger"
)

// LivenessMonitor 存活监测
//
// 每个周期：上一周期发出的探测仍未应答的连接被驱逐，其余连接标记为等待并发送 ping。
// 不应答的连接最多存活一个完整周期。
type LivenessMonitor struct {
	registry *Registry
	interval time.Duration
	evict    FailureFunc
	logger   logger.Logger
	metrics  Metrics
}

// NewLivenessMonitor 创建存活监测
func NewLivenessMonitor(registry *Registry, interval time.Duration, evict FailureFunc, log logger.Logger, metrics Metrics) *LivenessMonitor {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &LivenessMonitor{
		registry: registry,
		interval: interval,
		evict:    evict,
		logger:   log,
		metrics:  metrics,
	}
}

// Run 周期运行，ctx 取消时退出并放弃未完成的探测
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick 执行一轮检查，返回被驱逐的连接数
func (m *LivenessMonitor) Tick(ctx context.Context) int {
	dead, probe := m.registry.Sweep()

	evicted := 0
	for _, c := range dead {
		m.logger.Info("evict unresponsive connection", zap.String("conn_id", c.ID()))
		m.metrics.IncrementEvictions("pong_timeout")
		m.evict(ctx, c, ErrPongTimeout)
		evicted++
	}

	for _, c := range probe {
		if ctx.Err() != nil {
			return evicted
		}
		if err := c.Ping(); err != nil {
			m.logger.Warn("liveness probe failed", zap.String("conn_id", c.ID()), zap.Error(err))
			m.metrics.IncrementEvictions("probe_failed")
			m.evict(ctx, c, fmt.Errorf("%w: %v", ErrProbeFailed, err))
			evicted++
		}
	}
	return evicted
}
