package tracing

import (
	"fmt"
	"time"

	"github.com/tokmz/relay/pkg/errors"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp" // otlp-http 的别名
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// ErrInvalidConfig 追踪配置错误
var ErrInvalidConfig = errors.New(4001, 500, "链路追踪配置错误", nil)

// Config 链路追踪配置
type Config struct {
	ServiceName    string // 服务名称（必填）
	ServiceVersion string
	Environment    string // dev/staging/prod

	// 导出器
	ExporterType     string            // otlp/otlp-http/otlp-grpc/stdout/noop
	ExporterEndpoint string            // host:port，为空时读取 OTEL_EXPORTER_OTLP_ENDPOINT
	ExporterHeaders  map[string]string // 用于认证
	Insecure         bool

	// 采样
	SamplingRate float64 // 0.0-1.0
	SamplingType string  // always/never/ratio/parent_based

	Enabled bool

	ResourceAttributes map[string]string

	// 批处理
	BatchTimeout       time.Duration
	MaxExportBatchSize int
	MaxQueueSize       int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "relay",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterStdout,
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            true,
		ResourceAttributes: make(map[string]string),
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("sampling rate must be between 0.0 and 1.0, got %v", c.SamplingRate))
	}

	switch c.ExporterType {
	case ExporterOTLP, ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
		return nil
	default:
		return ErrInvalidConfig.WithMessage("invalid exporter type: " + c.ExporterType)
	}
}
