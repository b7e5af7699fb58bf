// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Long: `Resolve the configuration from defaults, the optional file and the
environment, then validate it. Prints the effective endpoints on success.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration OK")
			fmt.Fprintf(out, "  upload:   %s\n", cfg.UploadURL())
			fmt.Fprintf(out, "  stream:   %s\n", cfg.Stream.URL)
			fmt.Fprintf(out, "  services: %d\n", len(cfg.Services))
			return nil
		},
	})
	return cmd
}
