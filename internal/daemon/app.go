// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the configured subsystems together and owns their
// lifecycle.
package daemon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/ingestwatch/internal/api"
	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/ManuGH/ingestwatch/internal/dropdir"
	"github.com/ManuGH/ingestwatch/internal/export"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	platformnet "github.com/ManuGH/ingestwatch/internal/platform/net"
	"github.com/ManuGH/ingestwatch/internal/telemetry"
	"github.com/rs/zerolog"
)

// App owns the long-lived runtime: monitor, progress channel, registry,
// local HTTP surface and the optional export and drop directory.
type App struct {
	cfg      config.AppConfig
	logger   zerolog.Logger
	Monitor  *monitor.Monitor
	Engine   *Engine
	Manager  *Manager
	exporter *export.Writer
	watcher  *dropdir.Watcher
}

// NewApp builds every subsystem for cfg. Nothing runs until Run.
func NewApp(ctx context.Context, cfg config.AppConfig) (app *App, err error) {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tp.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	mon, err := NewMonitor(cfg)
	if err != nil {
		return nil, fmt.Errorf("status monitor: %w", err)
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "ingestwatch"
	}
	srv := api.New(mon, engine.Registry, engine.Channel, api.Config{
		RateLimit:       cfg.Server.RateLimit,
		MaxRequestBytes: requestLimit(cfg.Upload.MaxFileBytes),
		TracingService:  tracing,
	})
	mgr, err := NewManager(cfg.Server.ListenAddr, srv.Handler(), 0)
	if err != nil {
		return nil, err
	}
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)

	app = &App{
		cfg:     cfg,
		logger:  log.WithComponent("daemon"),
		Monitor: mon,
		Engine:  engine,
		Manager: mgr,
	}
	if cfg.Export.Path != "" {
		if app.exporter, err = export.NewWriter(cfg.Export.Path); err != nil {
			return nil, err
		}
	}
	if cfg.DropDir.Path != "" {
		if app.watcher, err = dropdir.New(cfg.DropDir.Path, engine.Registry, dropdir.Options{}); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// requestLimit sizes the selection request body: a handful of maximum-size
// files plus multipart framing.
func requestLimit(maxFile int64) int64 {
	if maxFile <= 0 {
		return 0
	}
	return 8*maxFile + 1<<20
}

// Run starts all owned subsystems and blocks until ctx is cancelled or one
// of them fails. Every goroutine has exited when Run returns.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.logger.Info().
		Str(log.FieldEvent, "daemon.starting").
		Int("services", len(a.cfg.Services)).
		Str("upload_url", platformnet.RedactURL(a.cfg.UploadURL())).
		Str("stream_url", platformnet.RedactURL(a.cfg.Stream.URL)).
		Msg("starting ingestwatch")

	// Subscriptions are taken before the owners start so no snapshot is missed.
	if a.exporter != nil {
		services, sessions := a.Monitor.Subscribe(), a.Engine.Registry.Subscribe()
		g.Go(func() error { return a.exporter.Run(ctx, services, sessions) })
	}

	g.Go(func() error { return a.Monitor.Run(ctx) })
	g.Go(func() error { return a.Engine.Channel.Run(ctx) })
	g.Go(func() error { return a.Engine.Registry.Run(ctx) })

	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Error().Err(err).Str(log.FieldEvent, "dropdir.failed").Msg("drop directory watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error { return a.Manager.Start(ctx) })

	err := g.Wait()
	a.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("ingestwatch stopped")
	return err
}
