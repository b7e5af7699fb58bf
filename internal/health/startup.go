// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the local environment before the daemon starts.
// Remote services are not contacted here; their state belongs to the monitor.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str(log.FieldEvent, "startup.checks_started").Msg("running pre-flight startup checks")

	if err := ctx.Err(); err != nil {
		return err
	}

	if cfg.Server.ListenAddr != "" {
		if err := checkListenAddr(cfg.Server.ListenAddr); err != nil {
			return fmt.Errorf("listen address check failed: %w", err)
		}
	}

	if cfg.Export.Path != "" {
		dir := filepath.Dir(cfg.Export.Path)
		if err := checkWritableDir(logger, dir); err != nil {
			return fmt.Errorf("export directory check failed: %w", err)
		}
	}

	if cfg.DropDir.Path != "" {
		if err := checkDir(cfg.DropDir.Path); err != nil {
			return fmt.Errorf("drop directory check failed: %w", err)
		}
		logger.Info().Str(log.FieldPath, cfg.DropDir.Path).Msg("drop directory is present")
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	if err := checkDir(path); err != nil {
		return err
	}
	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	logger.Info().Str(log.FieldPath, path).Msg("export directory is writable")
	return nil
}
