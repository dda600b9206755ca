package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/relay/pkg/logger"
)

var _ logger.Hook = (*LogHook)(nil)

// LogHook 按级别统计写出的日志条数，实现 logger.Hook
type LogHook struct {
	entries *prometheus.CounterVec
}

// NewLogHook 创建日志计数 Hook 并注册
func NewLogHook(opts ...Option) *LogHook {
	cfg := buildConfig(opts)
	return &LogHook{
		entries: promauto.With(cfg.Registry).NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "log_entries_total",
			Help:        "Log entries written by level",
			ConstLabels: cfg.ConstLabels,
		}, []string{"level"}),
	}
}

// OnWrite 计数，不阻止写入
func (h *LogHook) OnWrite(entry zapcore.Entry, _ []zapcore.Field) error {
	h.entries.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
