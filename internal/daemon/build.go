// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"fmt"

	"github.com/ManuGH/ingestwatch/internal/channel"
	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	"github.com/ManuGH/ingestwatch/internal/platform/httpx"
	"github.com/ManuGH/ingestwatch/internal/registry"
	"github.com/ManuGH/ingestwatch/internal/upload"
)

// Services maps the configured services onto monitor entries, in order.
func Services(cfg config.AppConfig) []monitor.Service {
	out := make([]monitor.Service, len(cfg.Services))
	for i, s := range cfg.Services {
		out[i] = monitor.Service{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			Icon:        s.Icon,
			Endpoint:    s.Endpoint,
		}
	}
	return out
}

// NewProber returns the HTTP liveness prober for cfg.
func NewProber(cfg config.AppConfig) health.Prober {
	client := httpx.Instrument(httpx.NewClient(cfg.Monitor.ProbeTimeout), "health.probe")
	return health.NewHTTPProber(client)
}

// NewMonitor builds the status monitor for cfg.
func NewMonitor(cfg config.AppConfig) (*monitor.Monitor, error) {
	return monitor.New(Services(cfg), NewProber(cfg), monitor.Options{
		Timeout:  cfg.Monitor.ProbeTimeout,
		Interval: cfg.Monitor.Interval,
	})
}

// NewChannel builds the progress channel for cfg.
func NewChannel(cfg config.AppConfig) (*channel.Channel, error) {
	return channel.New(channel.Options{
		URL: cfg.Stream.URL,
		Dialer: channel.WebsocketDialer{
			HandshakeTimeout: cfg.Stream.HandshakeTimeout,
			ReadLimit:        cfg.Stream.ReadLimit,
		},
		MaxAttempts:    cfg.Stream.MaxReconnectAttempts,
		InitialBackoff: cfg.Stream.InitialBackoff,
		MaxBackoff:     cfg.Stream.MaxBackoff,
		StableAfter:    cfg.Stream.StableAfter,
	})
}

// NewRegistry builds the session registry reading from stream.
func NewRegistry(cfg config.AppConfig, stream registry.Stream) *registry.Registry {
	client := httpx.Instrument(httpx.NewUploadClient(cfg.API.Timeout), "upload.submit")
	return registry.New(stream, upload.NewClient(cfg.UploadURL(), client), registry.Options{
		Policy: upload.Policy{
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			MaxBytes:          cfg.Upload.MaxFileBytes,
		},
	})
}

// Engine is the upload side of the client: the shared progress channel and
// the registry routing its events.
type Engine struct {
	Channel  *channel.Channel
	Registry *registry.Registry
}

// NewEngine builds the channel and registry for cfg.
func NewEngine(cfg config.AppConfig) (*Engine, error) {
	ch, err := NewChannel(cfg)
	if err != nil {
		return nil, fmt.Errorf("progress channel: %w", err)
	}
	return &Engine{Channel: ch, Registry: NewRegistry(cfg, ch)}, nil
}
