package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/tracing"
	"github.com/tokmz/relay/pkg/ws"
	"github.com/tokmz/relay/pkg/wsclient"
)

// EnvPrefix 环境变量前缀，如 RELAY_WS_HEARTBEAT_INTERVAL
const EnvPrefix = "RELAY"

// Settings 中继服务与终端客户端的完整配置
type Settings struct {
	Server  ServerSettings  `mapstructure:"server"`
	WS      WSSettings      `mapstructure:"ws"`
	Log     LogSettings     `mapstructure:"log"`
	Tracing TracingSettings `mapstructure:"tracing"`
	Metrics MetricsSettings `mapstructure:"metrics"`
	Client  ClientSettings  `mapstructure:"client"`
}

// ServerSettings HTTP 服务
type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // debug/release/test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimit       float64       `mapstructure:"rate_limit"` // 升级端点每 IP 每秒请求数，0 不限
	RateBurst       int           `mapstructure:"rate_burst"`
}

// WSSettings WebSocket 端点
type WSSettings struct {
	Path              string        `mapstructure:"path"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	MaxConnections    int           `mapstructure:"max_connections"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	AllowAllOrigins   bool          `mapstructure:"allow_all_origins"`
}

// LogSettings 日志
type LogSettings struct {
	Level    string           `mapstructure:"level"`
	Format   string           `mapstructure:"format"`
	File     string           `mapstructure:"file"` // 为空只输出控制台，否则按大小轮转
	Sampling SamplingSettings `mapstructure:"sampling"`
}

// SamplingSettings 日志采样，Initial 为 0 时不采样
type SamplingSettings struct {
	Initial    int `mapstructure:"initial"`
	Thereafter int `mapstructure:"thereafter"`
}

// TracingSettings 链路追踪
type TracingSettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Exporter     string  `mapstructure:"exporter"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// MetricsSettings Prometheus 指标
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ClientSettings 终端客户端
type ClientSettings struct {
	URL            string        `mapstructure:"url"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DefaultValues 全部配置键的默认值
//
// AutomaticEnv 只覆盖 viper 已知的键，因此每个键都需要默认值。
func DefaultValues() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.mode":             "release",
		"server.shutdown_timeout": 10 * time.Second,
		"server.cors_origins":     []string{},
		"server.rate_limit":       0.0,
		"server.rate_burst":       10,

		"ws.path":               "/ws",
		"ws.heartbeat_interval": 10 * time.Second,
		"ws.write_wait":         10 * time.Second,
		"ws.max_message_size":   64 * 1024,
		"ws.send_queue_size":    256,
		"ws.max_connections":    10000,
		"ws.allowed_origins":    []string{},
		"ws.allow_all_origins":  false,

		"log.level":               "info",
		"log.format":              "console",
		"log.file":                "",
		"log.sampling.initial":    0,
		"log.sampling.thereafter": 0,

		"tracing.enabled":       false,
		"tracing.service_name":  "relay",
		"tracing.exporter":      tracing.ExporterStdout,
		"tracing.endpoint":      "",
		"tracing.insecure":      true,
		"tracing.sampling_rate": 1.0,

		"metrics.enabled": true,
		"metrics.path":    "/metrics",

		"client.url":             "ws://localhost:8080/ws",
		"client.base_delay":      time.Second,
		"client.max_delay":       30 * time.Second,
		"client.max_attempts":    3,
		"client.connect_timeout": 5 * time.Second,
	}
}

// LoadSettings 加载配置文件、环境变量与默认值
//
// 未指定配置文件时按 ./relay.yaml 与 /etc/relay/relay.yaml 搜索，找不到则只用默认值与环境变量；
// 显式指定的文件必须存在。
func LoadSettings(file string, opts ...Option) (*Config, *Settings, error) {
	base := []Option{
		WithDefaults(DefaultValues()),
		WithEnvPrefix(EnvPrefix),
		WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	}
	if file != "" {
		base = append(base, WithConfigFile(file))
	} else {
		base = append(base,
			WithConfigName("relay"),
			WithConfigType("yaml"),
			WithConfigPaths(".", "/etc/relay"),
			WithOptional(true),
		)
	}

	c := New(append(base, opts...)...)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}
	s, err := c.Settings()
	if err != nil {
		return nil, nil, err
	}
	return c, s, nil
}

// Settings 解析并校验当前配置
func (c *Config) Settings() (*Settings, error) {
	var s Settings
	if err := c.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// OnSettingsChange 配置文件变更后重新解析，解析失败交给错误回调，fn 不会被调用
func (c *Config) OnSettingsChange(fn func(*Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onChange = func() {
		s, err := c.Settings()
		if err != nil {
			c.reportError(err)
			return
		}
		fn(s)
	}
}

// Validate 校验配置
func (s *Settings) Validate() error {
	invalid := func(format string, args ...any) error {
		return ErrInvalidSettings.WithMessage(fmt.Sprintf(format, args...))
	}

	if s.Server.Addr == "" {
		return invalid("server.addr is required")
	}
	if !strings.HasPrefix(s.WS.Path, "/") {
		return invalid("ws.path must start with /, got %q", s.WS.Path)
	}
	if s.Metrics.Enabled && !strings.HasPrefix(s.Metrics.Path, "/") {
		return invalid("metrics.path must start with /, got %q", s.Metrics.Path)
	}
	if s.Server.RateLimit < 0 {
		return invalid("server.rate_limit must not be negative, got %v", s.Server.RateLimit)
	}
	if s.WS.HeartbeatInterval <= 0 {
		return invalid("ws.heartbeat_interval must be positive, got %v", s.WS.HeartbeatInterval)
	}
	if _, err := logger.ParseLevel(s.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	if !logger.Format(s.Log.Format).IsValid() {
		return invalid("log.format must be json or console, got %q", s.Log.Format)
	}
	if s.Log.Sampling.Initial < 0 || s.Log.Sampling.Thereafter < 0 {
		return invalid("log.sampling values must not be negative")
	}
	if s.Client.MaxAttempts < 0 {
		return invalid("client.max_attempts must not be negative, got %d", s.Client.MaxAttempts)
	}
	if s.Client.BaseDelay > s.Client.MaxDelay {
		return invalid("client.base_delay %v exceeds client.max_delay %v", s.Client.BaseDelay, s.Client.MaxDelay)
	}
	return nil
}

// Options 转换为 Hub 选项，其余字段（日志、指标）由调用方追加
func (s WSSettings) Options() []ws.Option {
	opts := []ws.Option{
		ws.WithHeartbeatInterval(s.HeartbeatInterval),
		ws.WithWriteWait(s.WriteWait),
		ws.WithMessageSizeLimit(s.MaxMessageSize),
		ws.WithSendQueueSize(s.SendQueueSize),
		ws.WithMaxConnections(s.MaxConnections),
	}
	switch {
	case s.AllowAllOrigins:
		opts = append(opts, ws.WithAllowAllOrigins())
	case len(s.AllowedOrigins) > 0:
		opts = append(opts, ws.WithCheckOriginWhitelist(s.AllowedOrigins))
	}
	return opts
}

// Options 转换为日志选项
func (s LogSettings) Options() ([]logger.Option, error) {
	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}

	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(s.Format)),
		logger.WithConsoleOutput(),
	}
	if s.File != "" {
		opts = append(opts, logger.WithRotateOutput(&logger.RotateConfig{Filename: s.File}))
	}
	if s.Sampling.Initial > 0 {
		opts = append(opts, logger.WithSampling(&logger.SamplingConfig{
			Initial:    s.Sampling.Initial,
			Thereafter: s.Sampling.Thereafter,
		}))
	}
	return opts, nil
}

// Config 转换为追踪配置
func (s TracingSettings) Config() *tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = s.Enabled
	if s.ServiceName != "" {
		cfg.ServiceName = s.ServiceName
	}
	cfg.ExporterType = s.Exporter
	cfg.ExporterEndpoint = s.Endpoint
	cfg.Insecure = s.Insecure
	cfg.SamplingRate = s.SamplingRate
	return cfg
}

// Policy 转换为重连策略
func (s ClientSettings) Policy() wsclient.Policy {
	return wsclient.Policy{
		BaseDelay:      s.BaseDelay,
		MaxDelay:       s.MaxDelay,
		MaxAttempts:    s.MaxAttempts,
		ConnectTimeout: s.ConnectTimeout,
	}
}
