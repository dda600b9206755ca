package logger

import (
	"context"

	"github.com/gin-gonic/gin"
)

const (
	// contextKeyLogger gin.Context 中存储 Logger 的 key
	contextKeyLogger = "relay:logger"
)

// ContextWithTraceID 在 context.Context 中设置 TraceID
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ContextWithSessionID 在 context.Context 中设置会话 ID
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SetContextLogger 设置 gin.Context 中的 Logger
func SetContextLogger(c *gin.Context, logger Logger) {
	c.Set(contextKeyLogger, logger)
}

// GetContextLogger 获取 gin.Context 中的 Logger
func GetContextLogger(c *gin.Context) Logger {
	if logger, exists := c.Get(contextKeyLogger); exists {
		if l, ok := logger.(Logger); ok {
			return l
		}
	}
	return nil
}
