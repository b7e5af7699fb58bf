// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/ingestwatch/internal/channel"
	"github.com/ManuGH/ingestwatch/internal/log"
)

// Event names on the stream.
const (
	EventServices = "services"
	EventSessions = "sessions"
	EventStream   = "stream"
)

// handleEvents streams the snapshots and the progress stream state as
// server-sent events. The current value of each is sent first, then every
// change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	services := s.board.Subscribe()
	defer func() { _ = services.Close() }()
	sessions := s.sessions.Subscribe()
	defer func() { _ = sessions.Close() }()
	var stC <-chan channel.State
	if s.stream != nil {
		st := s.stream.SubscribeState()
		defer func() { _ = st.Close() }()
		stC = st.C()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Debug().Str(log.FieldEvent, "events.subscribed").Msg("event stream opened")

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	svcC, sesC := services.C(), sessions.C()
	for svcC != nil || sesC != nil || stC != nil {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, err = io.WriteString(w, ": ping\n\n")
		case v, ok := <-svcC:
			if !ok {
				svcC = nil
				continue
			}
			err = writeEvent(w, EventServices, v)
		case v, ok := <-sesC:
			if !ok {
				sesC = nil
				continue
			}
			err = writeEvent(w, EventSessions, v)
		case v, ok := <-stC:
			if !ok {
				stC = nil
				continue
			}
			err = writeEvent(w, EventStream, streamResponse{State: v})
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			logger.Debug().Err(err).Str(log.FieldEvent, "events.closed").Msg("event stream write failed")
			return
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
