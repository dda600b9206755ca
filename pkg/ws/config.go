package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/relay/pkg/logger"
)

// Config WebSocket 配置
type Config struct {
	// 连接配置
	MaxConnections   int           // 最大连接数
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 最大消息大小
	WriteWait        time.Duration // 单次写入超时

	// 心跳配置
	HeartbeatInterval time.Duration // 探测周期，未应答的连接最多存活一个周期

	// 消息配置
	SendQueueSize int // 每个连接的发送队列大小

	// Upgrader 配置
	UpgraderConfig UpgraderConfig

	// 事件总线
	EventWorkers   int // 事件处理协程数
	EventQueueSize int // 事件队列大小

	// 监控
	Metrics Metrics

	// 日志
	Logger logger.Logger

	// 时钟，用于会话确认时间与服务端时间戳
	Clock func() time.Time
}

// UpgraderConfig Upgrader 配置
type UpgraderConfig struct {
	ReadBufferSize    int                      // 读缓冲区大小
	WriteBufferSize   int                      // 写缓冲区大小
	CheckOrigin       func(*http.Request) bool // Origin 检查函数
	EnableCompression bool                     // 是否启用压缩
	AllowedOrigins    []string                 // 允许的 Origin 白名单
	Subprotocols      []string                 // 支持的子协议
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		WriteWait:         10 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		SendQueueSize:     256,
		EventWorkers:      4,
		EventQueueSize:    1000,
		UpgraderConfig: UpgraderConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"chat"},
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: MaxConnections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: SendQueueSize must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.UpgraderConfig.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: UpgraderConfig.ReadBufferSize must be positive, got %d", ErrInvalidConfig, c.UpgraderConfig.ReadBufferSize)
	}
	if c.UpgraderConfig.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: UpgraderConfig.WriteBufferSize must be positive, got %d", ErrInvalidConfig, c.UpgraderConfig.WriteBufferSize)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHeartbeatInterval 设置心跳间隔
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithWriteWait 设置写超时
func WithWriteWait(d time.Duration) Option {
	return func(c *Config) {
		c.WriteWait = d
	}
}

// WithMessageSizeLimit 设置消息大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSendQueueSize 设置发送队列大小
func WithSendQueueSize(size int) Option {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
// 示例：WithCheckOriginWhitelist([]string{"https://example.com", "https://app.example.com"})
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.UpgraderConfig.AllowedOrigins = allowedOrigins
		c.UpgraderConfig.CheckOrigin = createWhitelistChecker(allowedOrigins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境，生产环境禁用）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClock 设置时钟
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithEnableCompression 启用压缩
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.EnableCompression = enable
	}
}

// defaultCheckOrigin 默认 Origin 检查（同源策略）
// 非浏览器客户端不带 Origin，放行
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		whitelist[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 白名单模式下拒绝空 Origin
			return false
		}
		return whitelist[origin]
	}
}

// Upgrader WebSocket 升级器
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader 创建升级器
func NewUpgrader(config UpgraderConfig, handshakeTimeout time.Duration) *Upgrader {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		if len(config.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(config.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &Upgrader{
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  handshakeTimeout,
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       checkOrigin,
			EnableCompression: config.EnableCompression,
			Subprotocols:      config.Subprotocols,
		},
	}
}

// Upgrade 升级 HTTP 连接为 WebSocket
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, nil)
}
