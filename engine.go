package relay

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/relay/middleware"
	"github.com/tokmz/relay/pkg/errors"
	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/metrics"
	"github.com/tokmz/relay/pkg/tracing"
	"github.com/tokmz/relay/pkg/ws"
)

// Engine 中继服务的 HTTP 入口
//
// 负责 WebSocket 升级端点、健康检查、统计与指标路由，以及与 Hub 一起的优雅关机。
type Engine struct {
	config  *Config
	engine  *gin.Engine
	logger  logger.Logger
	started time.Time

	mu     sync.Mutex
	server *http.Server
	hub    *ws.Hub
}

// New 创建 Engine
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	// gin.SetMode 是全局状态，进程内只应创建一个 Engine
	gin.SetMode(config.Mode)
	silenceGin()

	g := gin.New()
	g.HandleMethodNotAllowed = true

	if config.TrustedProxies != nil {
		if err := g.SetTrustedProxies(config.TrustedProxies); err != nil {
			config.Logger.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	e := &Engine{
		config:  config,
		engine:  g,
		logger:  config.Logger.With(zap.String("component", "http")),
		started: time.Now(),
	}

	g.Use(Recovery(e.logger))
	if config.Tracing {
		g.Use(tracing.Middleware(tracing.WithFilter(func(c *gin.Context) bool {
			return c.Request.URL.Path != "/healthz" && c.Request.URL.Path != config.MetricsPath
		})))
	}
	g.Use(skipPaths(logger.Middleware(e.logger), "/healthz", config.MetricsPath))
	if len(config.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowOrigins = config.CORSOrigins
		g.Use(middleware.CORS(cors))
	}

	g.NoRoute(func(c *gin.Context) {
		abortWithError(c, errors.ErrNotFound)
	})
	g.NoMethod(func(c *gin.Context) {
		respond(c, http.StatusMethodNotAllowed, Fail(http.StatusMethodNotAllowed, "method not allowed"))
	})

	g.GET("/healthz", e.healthz)
	if config.Gatherer != nil {
		g.GET(config.MetricsPath, gin.WrapH(metrics.Handler(config.Gatherer)))
	}

	return e
}

// Mount 挂载 Hub，注册 WebSocket 端点与统计路由
func (e *Engine) Mount(hub *ws.Hub) {
	e.mu.Lock()
	e.hub = hub
	e.mu.Unlock()

	handlers := []gin.HandlerFunc{e.upgrade}
	if e.config.RateLimit > 0 {
		limit := middleware.RateLimiter(&middleware.RateLimiterConfig{
			RequestsPerSecond: e.config.RateLimit,
			Burst:             e.config.RateBurst,
			Logger:            e.logger,
			OnLimited: func(c *gin.Context) {
				abortWithError(c, errors.ErrRateLimited)
			},
		})
		handlers = append([]gin.HandlerFunc{limit}, handlers...)
	}
	e.engine.GET(e.config.WSPath, handlers...)
	e.engine.GET("/stats", e.stats)
}

// Handler 底层 http.Handler，用于测试或自定义 Server
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Routes 已注册路由
func (e *Engine) Routes() gin.RoutesInfo {
	return e.engine.Routes()
}

// Run 监听并服务，ctx 结束后优雅关机
func (e *Engine) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.config.Server.Addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve 在给定 Listener 上服务，ctx 结束后优雅关机
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           e.engine,
		ReadHeaderTimeout: e.config.Server.ReadHeaderTimeout,
		IdleTimeout:       e.config.Server.IdleTimeout,
		MaxHeaderBytes:    e.config.Server.MaxHeaderBytes,
	}
	e.mu.Lock()
	e.server = server
	e.mu.Unlock()

	e.printBanner(ln.Addr().String())
	e.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		e.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.config.Shutdown.Timeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("forced shutdown", zap.Error(err))
		return err
	}
	e.logger.Info("server exited")
	return nil
}

// Shutdown 先关闭 Hub 中的长连接，再关闭 HTTP 服务
//
// 被劫持的 WebSocket 连接不受 http.Server.Shutdown 管理，需由 Hub 关闭。
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	server, hub := e.server, e.hub
	e.mu.Unlock()

	if e.config.Shutdown.BeforeShutdown != nil {
		e.config.Shutdown.BeforeShutdown()
	}

	var errs []error
	if hub != nil {
		errs = append(errs, hub.Shutdown(ctx))
	}
	if server != nil {
		errs = append(errs, server.Shutdown(ctx))
	}

	if e.config.Shutdown.AfterShutdown != nil {
		e.config.Shutdown.AfterShutdown()
	}
	return stderrors.Join(errs...)
}

// upgrade WebSocket 升级端点
func (e *Engine) upgrade(c *gin.Context) {
	if err := e.hub.Admit(); err != nil {
		e.logger.Warn("reject upgrade", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		abortWithError(c, admitError(err))
		return
	}

	if err := e.hub.HandleUpgrade(c.Writer, c.Request); err != nil {
		// 握手失败时 gorilla 已写出响应
		e.logger.WarnContext(c.Request.Context(), "upgrade failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(errors.ErrUpgradeFailed.WithError(err)),
		)
		c.Abort()
	}
}

// admitError 映射为 HTTP 错误码
func admitError(err error) error {
	switch {
	case stderrors.Is(err, ws.ErrTooManyConnections):
		return errors.ErrTooManyConnections.WithError(err)
	case stderrors.Is(err, ws.ErrHubClosed):
		return errors.ErrShuttingDown.WithError(err)
	default:
		return errors.ErrServer.WithError(err)
	}
}

func (e *Engine) healthz(c *gin.Context) {
	e.mu.Lock()
	hub := e.hub
	e.mu.Unlock()

	if hub != nil {
		if err := hub.Admit(); stderrors.Is(err, ws.ErrHubClosed) {
			abortWithError(c, errors.ErrShuttingDown)
			return
		}
	}
	respond(c, http.StatusOK, Success(gin.H{"status": "ok"}))
}

func (e *Engine) stats(c *gin.Context) {
	respond(c, http.StatusOK, Success(Stats{
		Online:        e.hub.Online(),
		UptimeSeconds: time.Since(e.started).Seconds(),
		StartedAt:     e.started.UTC().Format(time.RFC3339),
	}))
}
