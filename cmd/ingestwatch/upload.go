// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/ManuGH/ingestwatch/internal/daemon"
	"github.com/ManuGH/ingestwatch/internal/registry"
	"github.com/ManuGH/ingestwatch/internal/render"
	"github.com/ManuGH/ingestwatch/internal/session"
)

var errUploadsFailed = errors.New("one or more uploads failed")

func newUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents and follow their progress",
		Long: `Submit each file to the ingestion backend and follow it through the
shared progress stream until every upload is complete or failed. Files
that fail the local policy are reported without being sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			sels := make([]registry.Selection, 0, len(args))
			for _, path := range args {
				sel, err := registry.FromPath(path)
				if err != nil {
					return err
				}
				sels = append(sels, sel)
			}
			return runUploads(cmd.Context(), cfg, sels, cmd.OutOrStdout())
		},
	}
}

// runUploads drives a private engine until every selection is terminal or
// ctx is cancelled.
func runUploads(ctx context.Context, cfg config.AppConfig, sels []registry.Selection, out io.Writer) error {
	engine, err := daemon.NewEngine(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	sub := engine.Registry.Subscribe()
	defer sub.Close()
	g.Go(func() error { return engine.Channel.Run(gctx) })
	g.Go(func() error { return engine.Registry.Run(gctx) })

	if _, err := engine.Registry.Select(gctx, sels); err != nil {
		cancel()
		return errors.Join(fmt.Errorf("select: %w", err), g.Wait())
	}

	r := render.New(out)
	final, err := follow(gctx, sub.C(), r)
	r.Finish()
	cancel()
	if werr := g.Wait(); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	for _, s := range final {
		if s.State == session.StateFailed {
			return errUploadsFailed
		}
	}
	return nil
}

// follow renders every snapshot until all sessions are terminal.
func follow(ctx context.Context, updates <-chan []session.Session, r *render.Renderer) ([]session.Session, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case list, ok := <-updates:
			if !ok {
				return nil, registry.ErrClosed
			}
			r.Sessions(list)
			if len(list) > 0 && registry.AllTerminal(list) {
				return list, nil
			}
		}
	}
}
