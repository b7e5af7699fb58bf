// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name    string
		mutate  func(*config.AppConfig)
		wantErr string
	}{
		{"defaults", func(*config.AppConfig) {}, ""},
		{"export and dropdir", func(c *config.AppConfig) {
			c.Export.Path = filepath.Join(dir, "status.json")
			c.DropDir.Path = dir
		}, ""},
		{"bad listen addr", func(c *config.AppConfig) { c.Server.ListenAddr = "localhost" }, "listen address"},
		{"bad listen port", func(c *config.AppConfig) { c.Server.ListenAddr = "localhost:http2" }, "listen address"},
		{"missing export dir", func(c *config.AppConfig) {
			c.Export.Path = filepath.Join(dir, "missing", "status.json")
		}, "export directory"},
		{"dropdir is a file", func(c *config.AppConfig) { c.DropDir.Path = file }, "drop directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			err := PerformStartupChecks(context.Background(), cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPerformStartupChecks_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, PerformStartupChecks(ctx, config.Defaults()), context.Canceled)
}
