// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:8000/ws/progress", cfg.Stream.URL)
	assert.Equal(t, 3*time.Second, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, 5, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Stream.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Stream.MaxBackoff)
	assert.Equal(t, 5*time.Second, cfg.Stream.StableAfter)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, "api", cfg.Services[0].ID)
	assert.Equal(t, "http://localhost:8000/health", cfg.Services[0].Endpoint)
	assert.Equal(t, "http://localhost:8000/upload", cfg.UploadURL())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
services:
  - id: api
    displayName: API
    icon: server
    endpoint: https://rag.example.com/health
  - id: vectorstore
    endpoint: https://rag.example.com/vectorstore/health
  - id: llm
    displayName: LLM
    endpoint: https://rag.example.com/llm/health
api:
  baseURL: https://rag.example.com/
monitor:
  probeTimeout: 2s
  interval: 15s
upload:
  allowedExtensions: [pdf, ".TXT"]
`)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	ids := make([]string, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"api", "vectorstore", "llm"}, ids, "configured order is preserved")
	assert.Equal(t, "vectorstore", cfg.Services[1].DisplayName, "display name defaults to id")
	assert.Equal(t, "https://rag.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://rag.example.com/ws/progress", cfg.Stream.URL)
	assert.Equal(t, 2*time.Second, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, 15*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, "/upload", cfg.API.UploadPath, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "config.yml", `
api:
  baseURL: http://file.local
monitor:
  probeTimeout: 2s
`)
	t.Setenv(EnvAPIURL, "http://env.local:9000")
	t.Setenv(EnvProbeTimeout, "750ms")
	t.Setenv(EnvMaxReconnects, "3")
	t.Setenv(EnvStreamURL, "wss://stream.local/progress")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env.local:9000", cfg.API.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, 3, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, "wss://stream.local/progress", cfg.Stream.URL)
	assert.Contains(t, l.ConsumedEnvKeys, EnvAPIURL)
	assert.Contains(t, l.ConsumedEnvKeys, EnvDropDir)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv(EnvProbeTimeout, "soon")
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Monitor.ProbeTimeout)
}

func TestLoad_StrictUnknownField(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
api:
  baseURL: http://localhost:8000
unknownField: should_fail
`)
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got: %v", err)
}

func TestLoad_MultipleDocuments(t *testing.T) {
	path := writeConfig(t, "config.yaml", "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path, "").Load()
	require.ErrorIs(t, err, ErrMultipleDocuments)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)
	_, err := NewLoader(path, "").Load()
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().API.BaseURL, cfg.API.BaseURL)
}

func TestDeriveStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/progress"},
		{"https://rag.example.com/backend/", "wss://rag.example.com/backend/ws/progress"},
		{"ftp://x", ""},
		{"not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStreamURL(tt.base))
		})
	}
}
