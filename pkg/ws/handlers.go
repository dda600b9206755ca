package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/protocol"
)

// setupRoutes 注册内置命令
func (h *Hub) setupRoutes() error {
	if err := h.router.Use(h.recoverMiddleware); err != nil {
		return err
	}
	if err := h.router.RegisterKind(protocol.KindChat, h.handleChat); err != nil {
		return err
	}
	return h.router.RegisterKind(protocol.KindRename, h.handleRename)
}

// recoverMiddleware 单条命令的 panic 不影响连接
func (h *Hub) recoverMiddleware(ctx context.Context, c Conn, cmd protocol.Command, next NextFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("message handler panic",
				zap.String("conn_id", c.ID()),
				zap.String("type", cmd.Type),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	return next()
}

// handleChat 聊天消息，广播给除发送者外的所有连接
func (h *Hub) handleChat(ctx context.Context, c Conn, cmd protocol.Command) error {
	s, ok := h.registry.Lookup(c.ID())
	if !ok {
		return ErrSessionNotFound
	}

	ts := cmd.Timestamp
	if ts == "" {
		ts = h.now().UTC().Format(time.RFC3339Nano)
	}

	h.dispatcher.Broadcast(ctx, protocol.Chat(s.ID, s.Name, cmd.Text, ts), c)
	return nil
}

// handleRename 改名，名称未变化时不广播
func (h *Hub) handleRename(ctx context.Context, c Conn, cmd protocol.Command) error {
	name := normalizeName(cmd.Name)
	if name == "" {
		return ErrEmptyName
	}

	s, ok := h.registry.Lookup(c.ID())
	if !ok {
		return ErrSessionNotFound
	}

	old, err := h.registry.UpdateDisplayName(c.ID(), name)
	if err != nil {
		return err
	}
	if old == name {
		return nil
	}

	h.logger.Info("session renamed",
		zap.String("session_id", s.ID),
		zap.String("old_name", old),
		zap.String("new_name", name),
	)
	s.Name = name
	h.events.Publish(Event{Type: EventSessionRenamed, ConnID: c.ID(), Session: s, Data: old, Time: h.now()})

	h.dispatcher.Broadcast(ctx, protocol.Renamed(s.ID, old, name), nil)
	return nil
}
