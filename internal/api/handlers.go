// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/ManuGH/ingestwatch/internal/channel"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/registry"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type selectResponse struct {
	IDs []string `json:"ids"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind string, err error) {
	resp := errorResponse{Error: kind, RequestID: log.RequestIDFromContext(r.Context())}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, code, resp)
}

// writeRegistryError maps registry sentinels onto HTTP status codes.
func writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err)
	case errors.Is(err, registry.ErrSessionActive):
		writeError(w, r, http.StatusConflict, "session_active", err)
	case errors.Is(err, registry.ErrNoSelection):
		writeError(w, r, http.StatusBadRequest, "no_files", err)
	case errors.Is(err, registry.ErrClosed):
		writeError(w, r, http.StatusServiceUnavailable, "shutting_down", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Snapshot())
}

var errNoStream = errors.New("progress stream is not configured")

type streamResponse struct {
	State channel.State `json:"state"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, r, http.StatusNotFound, "not_found", errNoStream)
		return
	}
	writeJSON(w, http.StatusOK, streamResponse{State: s.stream.State()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.board.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.Snapshot()
	if list == nil {
		list = []session.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeRegistryError(w, r, registry.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := log.ContextWithSessionID(r.Context(), id)
	if err := s.sessions.Acknowledge(ctx, id); err != nil {
		writeRegistryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := log.ContextWithSessionID(r.Context(), id)
	if err := s.sessions.Cancel(ctx, id); err != nil {
		writeRegistryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSelect accepts multipart/form-data with one or more "file" parts.
// Payloads are buffered so that submission can outlive the request.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_form", err)
		return
	}

	var sels []registry.Selection
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeFormError(w, r, err)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			writeFormError(w, r, err)
			return
		}
		sels = append(sels, bufferedSelection(part.FileName(), part.Header.Get("Content-Type"), data))
	}

	ids, err := s.sessions.Select(r.Context(), sels)
	if err != nil {
		writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, selectResponse{IDs: ids})
}

func writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", err)
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid_form", err)
}

func bufferedSelection(name, contentType string, data []byte) registry.Selection {
	name = filepath.Base(name)
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			contentType = byExt
		}
	}
	return registry.Selection{
		File: session.FileInfo{
			Name:     name,
			Size:     int64(len(data)),
			MIMEType: contentType,
		},
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
