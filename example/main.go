// 在自己的程序中嵌入中继：自定义 Hub 中间件与事件订阅
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/tokmz/relay"
	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/protocol"
	"github.com/tokmz/relay/pkg/ws"
)

func main() {
	log, err := logger.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	hub, err := ws.NewHub(
		ws.WithLogger(log),
		ws.WithAllowAllOrigins(),
	)
	if err != nil {
		log.Fatal("create hub", zap.Error(err))
	}

	// 过滤空白消息
	err = hub.Use(func(ctx context.Context, c ws.Conn, cmd protocol.Command, next ws.NextFunc) error {
		if cmd.Kind() == protocol.KindChat && strings.TrimSpace(cmd.Text) == "" {
			return nil
		}
		return next()
	})
	if err != nil {
		log.Fatal("use middleware", zap.Error(err))
	}
	hub.Subscribe(ws.EventSessionRenamed, func(e ws.Event) {
		log.Info("renamed", zap.String("session_id", e.Session.ID), zap.Any("data", e.Data))
	})

	if err := hub.Run(); err != nil {
		log.Fatal("run hub", zap.Error(err))
	}

	engine := relay.New(
		relay.WithMode("debug"),
		relay.WithAddr(":8080"),
		relay.WithLogger(log),
	)
	engine.Mount(hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := engine.Run(ctx); err != nil {
		log.Error("relay stopped", zap.Error(err))
	}
}
