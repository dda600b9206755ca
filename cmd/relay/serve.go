package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/relay"
	"github.com/tokmz/relay/pkg/config"
	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/metrics"
	"github.com/tokmz/relay/pkg/tracing"
	"github.com/tokmz/relay/pkg/ws"
)

func serveCmd(configFile *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Long: `Start the relay server.

Clients connect to the WebSocket endpoint (default /ws). /healthz, /stats
and /metrics are served on the same address. Editing the config file while
running re-applies log.level.

Examples:
  relay serve
  relay serve --addr=:9000
  RELAY_WS_HEARTBEAT_INTERVAL=5s relay serve -c relay.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from server.addr)")

	return cmd
}

func runServe(ctx context.Context, configFile, addr string) error {
	var log logger.Logger = logger.NewNop()

	cfg, s, err := config.LoadSettings(configFile, config.WithOnError(func(err error) {
		log.Warn("reload config failed", zap.Error(err))
	}))
	if err != nil {
		return err
	}
	if addr != "" {
		s.Server.Addr = addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	logOpts, err := s.Log.Options()
	if err != nil {
		return err
	}
	if s.Metrics.Enabled {
		logOpts = append(logOpts, logger.WithHook(metrics.NewLogHook(metrics.WithRegistry(reg))))
	}
	if log, err = logger.NewWithOptions(logOpts...); err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if s.Tracing.Enabled {
		tp, err := tracing.NewTracerProvider(ctx, s.Tracing.Config())
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn("flush traces failed", zap.Error(err))
			}
		}()
	}

	collector := metrics.New(metrics.WithRegistry(reg))

	hub, err := ws.NewHub(append(s.WS.Options(),
		ws.WithLogger(log),
		ws.WithMetrics(collector),
	)...)
	if err != nil {
		return err
	}
	if err := hub.Run(); err != nil {
		return err
	}

	opts := []relay.Option{
		relay.WithMode(s.Server.Mode),
		relay.WithAddr(s.Server.Addr),
		relay.WithShutdownTimeout(s.Server.ShutdownTimeout),
		relay.WithWSPath(s.WS.Path),
		relay.WithTracing(s.Tracing.Enabled),
		relay.WithCORS(s.Server.CORSOrigins...),
		relay.WithRateLimit(s.Server.RateLimit, s.Server.RateBurst),
		relay.WithLogger(log),
	}
	if s.Metrics.Enabled {
		opts = append(opts, relay.WithMetrics(s.Metrics.Path, reg))
	}
	engine := relay.New(opts...)
	engine.Mount(hub)

	cfg.OnSettingsChange(func(ns *config.Settings) {
		level, err := logger.ParseLevel(ns.Log.Level)
		if err != nil {
			return
		}
		if level != log.Level() {
			log.SetLevel(level)
			log.Info("log level reloaded", zap.String("level", level.String()))
		}
	})
	if err := cfg.StartWatch(); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		log.Warn("watch config failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		cfg.Close()
		return nil
	})
	return g.Wait()
}
