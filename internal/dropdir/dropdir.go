// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dropdir watches a directory and selects every file dropped into it
// for upload.
package dropdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/metrics"
	"github.com/ManuGH/ingestwatch/internal/registry"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultSettle = 500 * time.Millisecond

var ErrNoDir = errors.New("dropdir: no directory configured")

// Selector receives the files picked up by the watcher.
type Selector interface {
	Select(ctx context.Context, sels []registry.Selection) ([]string, error)
}

// Options tune the watcher. Zero values select defaults.
type Options struct {
	// Settle is how long a file must stay quiet after its last write event
	// before it is selected. Default 500ms.
	Settle time.Duration
}

// Watcher selects files created in a directory. Files already present when
// Run starts are left alone, as are hidden files and subdirectories.
type Watcher struct {
	dir    string
	sel    Selector
	settle time.Duration
	logger zerolog.Logger
}

// New creates a watcher for dir.
func New(dir string, sel Selector, opts Options) (*Watcher, error) {
	if dir == "" {
		return nil, ErrNoDir
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	return &Watcher{
		dir:    filepath.Clean(dir),
		sel:    sel,
		settle: opts.Settle,
		logger: log.WithComponent("dropdir"),
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", w.dir, err)
	}

	w.logger.Info().
		Str(log.FieldEvent, "dropdir.watch_started").
		Str(log.FieldPath, w.dir).
		Msg("watching drop directory")

	ready := make(chan string)
	quit := make(chan struct{})
	defer close(quit)
	timers := make(map[string]*time.Timer)
	selected := make(map[string]struct{})
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("dropdir: watcher channel closed")
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if t, ok := timers[event.Name]; ok {
					t.Stop()
					delete(timers, event.Name)
				}
				delete(selected, event.Name)
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, done := selected[event.Name]; done {
				continue
			}
			// Debounce: restart the quiet period on each write.
			if t, ok := timers[event.Name]; ok {
				t.Reset(w.settle)
				continue
			}
			path := event.Name
			timers[path] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- path:
				case <-quit:
				}
			})

		case path := <-ready:
			delete(timers, path)
			if _, done := selected[path]; done {
				continue
			}
			if w.pick(ctx, path) {
				selected[path] = struct{}{}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("dropdir: watcher error channel closed")
			}
			w.logger.Warn().Err(err).Str(log.FieldEvent, "dropdir.watch_error").Msg("fsnotify watcher error")
		}
	}
}

// pick selects path for upload. It returns false if the file could not be
// handed to the selector and may be retried on a later event.
func (w *Watcher) pick(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		metrics.IncDropdirFile("vanished")
		return false
	}
	if info.IsDir() {
		metrics.IncDropdirFile("skipped")
		return true
	}

	sel, err := registry.FromPath(path)
	if err != nil {
		metrics.IncDropdirFile("error")
		w.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("cannot read dropped file")
		return false
	}
	ids, err := w.sel.Select(ctx, []registry.Selection{sel})
	if err != nil {
		metrics.IncDropdirFile("error")
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("dropped file not selected")
		}
		return false
	}

	metrics.IncDropdirFile("selected")
	ev := w.logger.Info().
		Str(log.FieldEvent, "dropdir.file_selected").
		Str(log.FieldPath, path).
		Int64(log.FieldFileSize, info.Size())
	if len(ids) == 1 {
		ev = ev.Str(log.FieldSessionID, ids[0])
	}
	ev.Msg("dropped file selected for upload")
	return true
}
