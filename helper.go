package relay

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/relay/pkg/errors"
)

// traceID 当前请求 Span 的 TraceID，未追踪时为空
func traceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// respond 写出统一响应，自动附带 TraceID
func respond(c *gin.Context, status int, resp *Response) {
	c.JSON(status, resp.WithTraceID(traceID(c)))
}

// abortWithError 按错误码写出失败响应
func abortWithError(c *gin.Context, err error) {
	var e *errors.Error
	if !errors.As(err, &e) {
		e = errors.ErrServer.WithError(err)
	}
	status := errors.HTTPStatus(e)
	c.Abort()
	respond(c, status, Fail(e.Code, e.Message))
}
