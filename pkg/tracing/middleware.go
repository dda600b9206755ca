package tracing

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "relay.http"

type middlewareConfig struct {
	tracerName        string
	spanNameFormatter func(*gin.Context) string
	filter            func(*gin.Context) bool
}

// MiddlewareOption 中间件选项
type MiddlewareOption func(*middlewareConfig)

// WithTracerName 设置 Tracer 名称（默认 "relay.http"）
func WithTracerName(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.tracerName = name
	}
}

// WithSpanNameFormatter 自定义 Span 名称
func WithSpanNameFormatter(fn func(*gin.Context) string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.spanNameFormatter = fn
	}
}

// WithFilter 返回 false 的请求不追踪（如健康检查）
func WithFilter(fn func(*gin.Context) bool) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.filter = fn
	}
}

// Middleware 链路追踪中间件
//
// 从请求头提取 TraceContext，创建服务端 Span，并把 Span 写回 Request.Context。
// WebSocket 升级请求的 Span 在握手完成时结束，不覆盖连接生命周期。
func Middleware(opts ...MiddlewareOption) gin.HandlerFunc {
	cfg := &middlewareConfig{
		tracerName: tracerName,
		spanNameFormatter: func(c *gin.Context) string {
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			return fmt.Sprintf("%s %s", c.Request.Method, route)
		},
		filter: func(*gin.Context) bool { return true },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		if !cfg.filter(c) {
			c.Next()
			return
		}

		// 每次请求时获取，Provider 可能晚于中间件初始化
		tracer := otel.Tracer(cfg.tracerName)
		propagator := otel.GetTextMapPropagator()

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, cfg.spanNameFormatter(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(c.FullPath()),
				semconv.URLPath(c.Request.URL.Path),
				semconv.ServerAddress(c.Request.Host),
				semconv.UserAgentOriginalKey.String(c.Request.UserAgent()),
				attribute.String("http.client_ip", c.ClientIP()),
			),
		)
		defer span.End()

		// 注入响应头需在写出之前
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}
	}
}
