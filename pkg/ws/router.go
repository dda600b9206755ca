package ws

import (
	"context"
	"sync"

	"github.com/tokmz/relay/pkg/protocol"
)

// Handler 入站命令处理器
type Handler func(ctx context.Context, c Conn, cmd protocol.Command) error

// NextFunc 中间件下一步函数
type NextFunc func() error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(ctx context.Context, c Conn, cmd protocol.Command, next NextFunc) error

// MessageRouter 按入站类型名路由命令
type MessageRouter struct {
	handlers   map[string]Handler
	middleware []MiddlewareFunc
	compiled   map[string]Handler // 预编译的处理器链
	mu         sync.RWMutex
	frozen     bool
}

// NewMessageRouter 创建路由器
func NewMessageRouter() *MessageRouter {
	return &MessageRouter{
		handlers: make(map[string]Handler),
	}
}

// Register 注册处理器
func (r *MessageRouter) Register(typ string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRouterFrozen
	}

	if _, exists := r.handlers[typ]; exists {
		return ErrHandlerExists
	}

	r.handlers[typ] = handler
	return nil
}

// RegisterKind 为某一种类的全部类型名（含别名）注册同一处理器
func (r *MessageRouter) RegisterKind(kind protocol.Kind, handler Handler) error {
	for _, typ := range protocol.InboundTypes() {
		if protocol.KindOf(typ) != kind {
			continue
		}
		if err := r.Register(typ, handler); err != nil {
			return err
		}
	}
	return nil
}

// Use 添加中间件，冻结后返回 ErrRouterFrozen
func (r *MessageRouter) Use(middleware ...MiddlewareFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRouterFrozen
	}
	r.middleware = append(r.middleware, middleware...)
	return nil
}

// Freeze 冻结路由器（启动后不可修改）
func (r *MessageRouter) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true

	r.compiled = make(map[string]Handler, len(r.handlers))
	for typ, handler := range r.handlers {
		r.compiled[typ] = chain(r.middleware, handler)
	}
}

// chain 从后向前构建中间件链
func chain(middleware []MiddlewareFunc, handler Handler) Handler {
	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := final
		final = func(ctx context.Context, c Conn, cmd protocol.Command) error {
			return mw(ctx, c, cmd, func() error {
				return next(ctx, c, cmd)
			})
		}
	}
	return final
}

// Route 路由命令，未注册的类型返回 ErrHandlerNotFound
func (r *MessageRouter) Route(ctx context.Context, c Conn, cmd protocol.Command) error {
	r.mu.RLock()
	if r.frozen {
		handler, exists := r.compiled[cmd.Type]
		r.mu.RUnlock()
		if !exists {
			return ErrHandlerNotFound
		}
		return handler(ctx, c, cmd)
	}

	handler, exists := r.handlers[cmd.Type]
	middlewareCopy := r.middleware
	r.mu.RUnlock()

	if !exists {
		return ErrHandlerNotFound
	}
	return chain(middlewareCopy, handler)(ctx, c, cmd)
}
