package relay

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokmz/relay/pkg/logger"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	// Addr 监听地址，默认 ":8080"
	Addr string

	// ReadHeaderTimeout 读取请求头超时
	ReadHeaderTimeout time.Duration

	// IdleTimeout 空闲超时
	IdleTimeout time.Duration

	// MaxHeaderBytes 最大请求头字节数
	MaxHeaderBytes int
}

// ShutdownConfig 关机配置
type ShutdownConfig struct {
	// Timeout 关机超时时间，默认 10 秒
	Timeout time.Duration

	// BeforeShutdown 关机前回调
	BeforeShutdown func()

	// AfterShutdown 关机后回调
	AfterShutdown func()
}

// Config 应用配置
//
// 升级后的 WebSocket 连接不受 http.Server 读写超时约束，
// 因此这里只保留请求头与空闲超时。
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string

	Server   ServerConfig
	Shutdown ShutdownConfig

	// WSPath WebSocket 端点路径
	WSPath string

	// MetricsPath 指标路径，Gatherer 为 nil 时不注册
	MetricsPath string
	Gatherer    prometheus.Gatherer

	// Tracing 是否启用 HTTP 链路追踪中间件
	Tracing bool

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string

	// CORSOrigins 允许跨域读取 /stats、/healthz 的源，空表示不启用 CORS
	CORSOrigins []string

	// RateLimit 升级端点按 IP 限流（每秒），0 表示不限流
	RateLimit float64
	RateBurst int

	Logger logger.Logger

	// BannerOutput 启动信息输出，nil 表示不打印
	BannerOutput io.Writer
}

// Option 配置选项函数
type Option func(*Config)

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		},
		Shutdown: ShutdownConfig{
			Timeout: 10 * time.Second,
		},
		WSPath:       "/ws",
		MetricsPath:  "/metrics",
		BannerOutput: os.Stdout,
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithReadHeaderTimeout 设置读取请求头超时
func WithReadHeaderTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.ReadHeaderTimeout = timeout
	}
}

// WithIdleTimeout 设置空闲超时
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.IdleTimeout = timeout
	}
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Shutdown.Timeout = timeout
	}
}

// WithBeforeShutdown 设置关机前回调
func WithBeforeShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.BeforeShutdown = fn
	}
}

// WithAfterShutdown 设置关机后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.AfterShutdown = fn
	}
}

// WithWSPath 设置 WebSocket 端点路径
func WithWSPath(path string) Option {
	return func(c *Config) {
		c.WSPath = path
	}
}

// WithMetrics 暴露 Prometheus 指标
func WithMetrics(path string, g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.MetricsPath = path
		c.Gatherer = g
	}
}

// WithTracing 启用链路追踪中间件
func WithTracing(enable bool) Option {
	return func(c *Config) {
		c.Tracing = enable
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) {
		c.TrustedProxies = proxies
	}
}

// WithCORS 允许指定源跨域读取只读接口，"*" 表示所有源
func WithCORS(origins ...string) Option {
	return func(c *Config) {
		c.CORSOrigins = origins
	}
}

// WithRateLimit 升级端点按客户端 IP 限流
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = perSecond
		c.RateBurst = burst
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithBannerOutput 设置启动信息输出，nil 关闭
func WithBannerOutput(w io.Writer) Option {
	return func(c *Config) {
		c.BannerOutput = w
	}
}
