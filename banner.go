package relay

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// Version 版本号
const Version = "0.3.0"

const banner = `
┬─┐┌─┐┬  ┌─┐┬ ┬   实时聊天中继
├┬┘├┤ │  ├─┤└┬┘   websocket: %s
┴└─└─┘┴─┘┴ ┴ ┴    version: %s
`

// printBanner 打印启动信息和路由表
func (e *Engine) printBanner(addr string) {
	out := e.config.BannerOutput
	if out == nil {
		return
	}

	fPrint(out, banner, wsURL(addr, e.config.WSPath), Version)
	fPrint(out, "\n")

	if routes := e.engine.Routes(); len(routes) > 0 {
		printRoutes(out, routes)
		fPrint(out, "\n")
	}

	fPrint(out, "[relay] Running in %q mode | Go %s | %s/%s\n", e.config.Mode, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fPrint(out, "[relay] Listening on %s\n", addr)
}

// wsURL 拼接客户端连接地址
func wsURL(addr, path string) string {
	host := addr
	switch {
	case strings.HasPrefix(addr, ":"):
		host = "127.0.0.1" + addr
	case strings.HasPrefix(addr, "[::]:"):
		host = "127.0.0.1:" + strings.TrimPrefix(addr, "[::]:")
	case strings.HasPrefix(addr, "0.0.0.0:"):
		host = "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	}
	return "ws://" + host + path
}

// methodColor 根据 HTTP 方法返回 ANSI 颜色码
func methodColor(method string) string {
	switch method {
	case "GET":
		return "\033[34m"
	case "POST":
		return "\033[32m"
	case "DELETE":
		return "\033[31m"
	default:
		return resetColor
	}
}

const resetColor = "\033[0m"

// printRoutes 按 gin 风格对齐打印路由表
func printRoutes(out io.Writer, routes gin.RoutesInfo) {
	maxPathLen := 0
	for _, r := range routes {
		maxPathLen = max(maxPathLen, len(r.Path))
	}

	for _, r := range routes {
		fPrint(out, "[relay] %s%-7s%s %-*s --> %s\n",
			methodColor(r.Method), r.Method, resetColor,
			maxPathLen, r.Path,
			r.Handler)
	}
}

// silenceGin 静默 gin 的默认输出，由 Engine 的日志接管
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}

// fPrint 打印到 writer，忽略错误
func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
