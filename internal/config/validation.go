// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/ingestwatch/internal/validate"
)

var (
	httpSchemes = []string{"http", "https"}
	wsSchemes   = []string{"ws", "wss"}
)

// Validate checks the final configuration and returns all problems at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if len(cfg.Services) == 0 {
		v.AddError("services", "at least one service is required", nil)
	}
	ids := make([]string, 0, len(cfg.Services))
	for i, s := range cfg.Services {
		field := fmt.Sprintf("services[%d]", i)
		v.NotEmpty(field+".id", s.ID)
		v.URL(field+".endpoint", s.Endpoint, httpSchemes)
		ids = append(ids, s.ID)
	}
	v.Unique("services.id", ids)

	v.URL("api.baseURL", cfg.API.BaseURL, httpSchemes)
	if !strings.HasPrefix(cfg.API.UploadPath, "/") {
		v.AddError("api.uploadPath", "must start with /", cfg.API.UploadPath)
	}
	v.PositiveDuration("api.timeout", cfg.API.Timeout)

	v.URL("stream.url", cfg.Stream.URL, wsSchemes)
	v.PositiveDuration("stream.handshakeTimeout", cfg.Stream.HandshakeTimeout)
	v.Positive("stream.maxReconnectAttempts", cfg.Stream.MaxReconnectAttempts)
	v.PositiveDuration("stream.initialBackoff", cfg.Stream.InitialBackoff)
	v.PositiveDuration("stream.maxBackoff", cfg.Stream.MaxBackoff)
	if cfg.Stream.MaxBackoff < cfg.Stream.InitialBackoff {
		v.AddError("stream.maxBackoff", "must not be smaller than stream.initialBackoff", cfg.Stream.MaxBackoff)
	}
	v.PositiveDuration("stream.stableAfter", cfg.Stream.StableAfter)
	if cfg.Stream.ReadLimit <= 0 {
		v.AddError("stream.readLimit", "must be positive", cfg.Stream.ReadLimit)
	}

	v.PositiveDuration("monitor.probeTimeout", cfg.Monitor.ProbeTimeout)
	if cfg.Monitor.Interval < 0 {
		v.AddError("monitor.interval", "must not be negative", cfg.Monitor.Interval)
	}

	if cfg.Upload.MaxFileBytes < 0 {
		v.AddError("upload.maxFileBytes", "must not be negative", cfg.Upload.MaxFileBytes)
	}
	if cfg.Server.ListenAddr != "" {
		v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr)
	}
	v.NonNegative("server.rateLimit", cfg.Server.RateLimit)
	if cfg.DropDir.Path != "" {
		v.Directory("dropdir.path", cfg.DropDir.Path)
	}

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", validate.ErrInvalidLogLevel.Message, cfg.LogLevel)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
