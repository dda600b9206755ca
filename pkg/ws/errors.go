package ws

import "errors"

// 错误定义
var (
	// 连接相关错误
	ErrTooManyConnections  = errors.New("ws: too many connections")
	ErrDuplicateConnection = errors.New("ws: connection already registered")
	ErrSessionNotFound     = errors.New("ws: session not found")
	ErrConnectionClosed    = errors.New("ws: connection closed")
	ErrChannelFull         = errors.New("ws: send channel full")
	ErrHubClosed           = errors.New("ws: hub is shut down")

	// 消息相关错误
	ErrHandlerNotFound = errors.New("ws: handler not found")
	ErrHandlerExists   = errors.New("ws: handler already exists")
	ErrRouterFrozen    = errors.New("ws: router is frozen")

	// 配置相关错误
	ErrInvalidConfig = errors.New("ws: invalid config")
)

// 存活相关错误
var (
	ErrPongTimeout = errors.New("ws: liveness probe not answered")
	ErrProbeFailed = errors.New("ws: liveness probe failed")
	ErrEmptyName   = errors.New("ws: display name is empty")
)
