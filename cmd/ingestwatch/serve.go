// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ingestwatch/internal/daemon"
	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, upload engine and local HTTP surface",
		Long: `Run ingestwatch as a long-lived process. The service board is polled
continuously, uploads can be selected through the local HTTP API or the
drop directory, and snapshots are exported when configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(os.Stdout, "")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := log.WithComponent("daemon")

			if err := health.PerformStartupChecks(ctx, cfg); err != nil {
				logger.Error().
					Err(err).
					Str(log.FieldEvent, "startup.check_failed").
					Msg("startup checks failed, verify configuration and permissions")
				return fmt.Errorf("startup checks: %w", err)
			}

			app, err := daemon.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build daemon: %w", err)
			}
			return app.Run(ctx)
		},
	}
}
