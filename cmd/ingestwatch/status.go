// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ingestwatch/internal/daemon"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	"github.com/ManuGH/ingestwatch/internal/render"
)

var errServicesOffline = errors.New("one or more services are offline")

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe every configured service once",
		Long: `Probe every configured service concurrently and print the board.
Exits non-zero unless every service is online.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			board := monitor.CheckOnce(cmd.Context(), daemon.Services(cfg), daemon.NewProber(cfg), cfg.Monitor.ProbeTimeout)
			fmt.Fprint(cmd.OutOrStdout(), render.Board(board))
			if !monitor.AllOnline(board) {
				return errServicesOffline
			}
			return nil
		},
	}
}
