// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// ServiceConfig describes one backend dependency shown on the status board.
type ServiceConfig struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"displayName" json:"displayName"`
	Icon        string `yaml:"icon" json:"icon"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
}

// APIConfig is the upload submission target.
type APIConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	UploadPath string        `yaml:"uploadPath"`
	Timeout    time.Duration `yaml:"timeout"` // response header timeout for submissions
}

// StreamConfig configures the progress stream connection.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	HandshakeTimeout     time.Duration `yaml:"handshakeTimeout"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
	InitialBackoff       time.Duration `yaml:"initialBackoff"`
	MaxBackoff           time.Duration `yaml:"maxBackoff"`
	StableAfter          time.Duration `yaml:"stableAfter"` // uptime after which a silent connection counts as recovered
	ReadLimit            int64         `yaml:"readLimit"`
}

// MonitorConfig configures health polling.
type MonitorConfig struct {
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
	// Interval between polling cycles. Zero polls only once at start.
	Interval time.Duration `yaml:"interval"`
}

// UploadConfig holds client-side file checks applied before submission.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowedExtensions"`
	MaxFileBytes      int64    `yaml:"maxFileBytes"` // 0 = unlimited
}

// ServerConfig is the local presentation HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	RateLimit  int    `yaml:"rateLimit"` // requests per minute per client IP, 0 disables
}

// ExportConfig enables the atomic JSON status export.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// DropDirConfig enables the drop-directory watcher.
type DropDirConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Services  []ServiceConfig `yaml:"services"`
	API       APIConfig       `yaml:"api"`
	Stream    StreamConfig    `yaml:"stream"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Upload    UploadConfig    `yaml:"upload"`
	Server    ServerConfig    `yaml:"server"`
	Export    ExportConfig    `yaml:"export"`
	DropDir   DropDirConfig   `yaml:"dropdir"`
	LogLevel  string          `yaml:"logLevel"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Version string `yaml:"-"`
}

// Defaults returns the configuration used when neither file nor env say otherwise.
func Defaults() AppConfig {
	return AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			UploadPath: "/upload",
			Timeout:    60 * time.Second,
		},
		Stream: StreamConfig{
			HandshakeTimeout:     10 * time.Second,
			MaxReconnectAttempts: 5,
			InitialBackoff:       time.Second,
			MaxBackoff:           30 * time.Second,
			StableAfter:          5 * time.Second,
			ReadLimit:            64 << 10,
		},
		Monitor: MonitorConfig{
			ProbeTimeout: 3 * time.Second,
		},
		Upload: UploadConfig{
			AllowedExtensions: []string{".pdf", ".txt", ".md", ".docx", ".html", ".csv"},
			MaxFileBytes:      50 << 20,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8088",
			RateLimit:  120,
		},
		LogLevel: "info",
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// UploadURL is the absolute submission endpoint.
func (c AppConfig) UploadURL() string {
	return joinURL(c.API.BaseURL, c.API.UploadPath)
}
