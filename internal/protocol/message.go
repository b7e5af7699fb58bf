// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package protocol defines the progress stream wire format and its validation.
package protocol

import (
	"github.com/ManuGH/ingestwatch/internal/session"
)

// Stage is the pipeline stage reported by a progress message.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageProcessing Stage = "processing"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Known reports whether the stage is part of the protocol.
func (s Stage) Known() bool {
	switch s {
	case StageUploading, StageProcessing, StageComplete, StageError:
		return true
	}
	return false
}

// Message is one inbound progress event.
type Message struct {
	SessionID string `json:"sessionId"`
	Stage     Stage  `json:"stage"`
	Percent   *int   `json:"percent,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// SessionEvent converts the message into a state machine input. It returns
// false for stages the client does not understand.
func (m Message) SessionEvent() (session.Event, bool) {
	ev := session.Event{Message: m.Message}
	if m.Percent != nil {
		ev.Percent = *m.Percent
		ev.HasPercent = true
	}

	switch m.Stage {
	case StageUploading:
		ev.Kind = session.EvUploadProgress
	case StageProcessing:
		ev.Kind = session.EvProcessingProgress
	case StageComplete:
		ev.Kind = session.EvComplete
	case StageError:
		ev.Kind = session.EvPipelineError
		msg := m.Message
		if msg == "" {
			msg = "Processing failed"
		}
		ev.Detail = &session.ErrorDetail{
			Kind:    session.KindPipeline,
			Code:    m.ErrorCode,
			Message: msg,
		}
	default:
		return session.Event{}, false
	}
	return ev, true
}
