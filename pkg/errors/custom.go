package errors

/*
	内置常用错误码
*/

var (
	// ErrServer 服务器错误
	ErrServer = New(1000, 500, "服务器异常", nil)
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, 404, "资源不存在", nil)
)

// 实时通道相关错误码
var (
	// ErrUpgradeFailed WebSocket 升级失败
	ErrUpgradeFailed = New(2001, 400, "websocket upgrade failed", nil)
	// ErrTooManyConnections 连接数已达上限
	ErrTooManyConnections = New(2002, 503, "too many connections", nil)
	// ErrShuttingDown 服务正在关闭
	ErrShuttingDown = New(2003, 503, "server is shutting down", nil)
	// ErrRateLimited 建连过于频繁
	ErrRateLimited = New(2004, 429, "too many requests", nil)
)
