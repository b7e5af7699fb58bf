// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package export mirrors the latest service and session snapshots into a JSON
// file so that other local tools can read the client state without talking
// to it.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/ingestwatch/internal/bus"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/metrics"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

var ErrNoPath = errors.New("export: no path configured")

// Document is the on-disk layout of the export file.
type Document struct {
	Services  []monitor.ServiceStatus `json:"services"`
	Sessions  []session.Session       `json:"sessions"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Writer writes Documents to a fixed path. Readers of the path only ever see
// a complete previous or complete new document.
type Writer struct {
	path   string
	now    func() time.Time
	logger zerolog.Logger
}

// NewWriter returns a writer for path.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	return &Writer{
		path:   path,
		now:    time.Now,
		logger: log.WithComponent("export"),
	}, nil
}

// Path returns the export destination.
func (w *Writer) Path() string { return w.path }

// Write replaces the export file with doc.
func (w *Writer) Write(doc Document) (err error) {
	defer func() {
		if err != nil {
			metrics.IncExportWrite("error")
			return
		}
		metrics.IncExportWrite("ok")
	}()

	if doc.Services == nil {
		doc.Services = []monitor.ServiceStatus{}
	}
	if doc.Sessions == nil {
		doc.Sessions = []session.Session{}
	}

	pending, err := renameio.NewPendingFile(w.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending export file: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			w.logger.Debug().Err(cerr).Msg("cleanup pending export file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace export file: %w", err)
	}
	return nil
}

// Run writes a new document every time either stream publishes, until ctx is
// cancelled or both streams are closed. Write failures are logged and do not
// stop the loop. Both subscriptions are closed on return.
func (w *Writer) Run(ctx context.Context, services *bus.Subscription[[]monitor.ServiceStatus], sessions *bus.Subscription[[]session.Session]) error {
	defer func() {
		_ = services.Close()
		_ = sessions.Close()
	}()

	svcC, sesC := services.C(), sessions.C()
	var doc Document

	w.logger.Info().
		Str(log.FieldEvent, "export.started").
		Str(log.FieldPath, w.path).
		Msg("status export enabled")

	for svcC != nil || sesC != nil {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-svcC:
			if !ok {
				svcC = nil
				continue
			}
			doc.Services = v
		case v, ok := <-sesC:
			if !ok {
				sesC = nil
				continue
			}
			doc.Sessions = v
		}

		doc.UpdatedAt = w.now()
		if err := w.Write(doc); err != nil {
			w.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "export.write_failed").
				Str(log.FieldPath, w.path).
				Msg("status export failed")
		}
	}
	return nil
}
