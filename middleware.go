package relay

import (
	"net"
	"os"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/errors"
	"github.com/tokmz/relay/pkg/logger"
)

// Recovery panic 恢复中间件
//
// panic 时返回统一响应格式（500）并记录错误日志，客户端已断开时只记录日志。
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			if isBrokenPipe(r) {
				log.Warn("broken pipe",
					zap.Any("error", r),
					zap.String("path", c.Request.URL.Path),
				)
				c.Abort()
				return
			}

			log.ErrorContext(c.Request.Context(), "panic recovered",
				zap.Any("error", r),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.String("stack", string(debug.Stack())),
			)
			abortWithError(c, errors.ErrServer)
		}()
		c.Next()
	}
}

// isBrokenPipe 检查是否为断开的连接错误
func isBrokenPipe(r any) bool {
	err, ok := r.(error)
	if !ok {
		return false
	}
	var ne *net.OpError
	if !errors.As(err, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

// skipPaths 匹配的请求不经过 next
func skipPaths(next gin.HandlerFunc, paths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(paths))
	for _, p := range paths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		next(c)
	}
}
