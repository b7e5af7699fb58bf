// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/version"
)

const serviceName = "ingestwatch"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ingestwatch",
		Short: "Document upload and service health client",
		Long: `ingestwatch submits documents to an ingestion backend, follows each
upload through the shared progress stream and keeps a live board of the
backing services' health.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newServeCmd(opts),
		newUploadCmd(opts),
		newStatusCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig configures logging, loads the layered configuration and then
// reconfigures logging from it. quietLevel applies when neither the flag
// nor the config file asks for a level.
func (o *rootOptions) loadConfig(logOut io.Writer, quietLevel string) (config.AppConfig, error) {
	log.Configure(log.Config{
		Level:   firstNonEmpty(o.logLevel, quietLevel, "info"),
		Output:  logOut,
		Service: serviceName,
		Version: version.Version,
	})
	logger := log.WithComponent("cli")

	cfg, err := config.NewLoader(o.configPath, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, o.configPath).
			Msg("failed to load configuration")
		return cfg, err
	}

	level := cfg.LogLevel
	if quietLevel != "" && level == config.Defaults().LogLevel {
		level = quietLevel
	}
	log.Configure(log.Config{
		Level:   firstNonEmpty(o.logLevel, level),
		Output:  logOut,
		Service: serviceName,
		Version: cfg.Version,
	})

	source := "env+defaults"
	if o.configPath != "" {
		source = "file"
	}
	logger = log.WithComponent("cli")
	logger.Debug().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str(log.FieldPath, o.configPath).
		Msg("loaded configuration")
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
