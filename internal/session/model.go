// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session holds the upload session model and the state machine that
// folds progress events into it.
package session

import "time"

// State is the lifecycle state of one upload session.
type State string

const (
	StateQueued     State = "queued"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// IsTerminal returns true if the state accepts no further events.
func (s State) IsTerminal() bool {
	switch s {
	case StateComplete, StateFailed:
		return true
	}
	return false
}

// FileInfo is the immutable metadata of the selected file. The payload itself
// is handed to the upload transport and never stored here.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType,omitempty"`
}

// Session is one file's journey from selection to a terminal state.
// Values handed out by the registry are copies; mutating them has no effect on
// the tracked session.
type Session struct {
	ID              string       `json:"id"`
	File            FileInfo     `json:"file"`
	State           State        `json:"state"`
	ProgressPercent int          `json:"progressPercent"`
	Message         string       `json:"message,omitempty"`
	Error           *ErrorDetail `json:"error,omitempty"`
	Warning         *ErrorDetail `json:"warning,omitempty"`
	StartedAt       time.Time    `json:"startedAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// New creates a session in the Queued state.
func New(id string, file FileInfo, now time.Time) Session {
	return Session{
		ID:        id,
		File:      file,
		State:     StateQueued,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand to observers.
func (s Session) Clone() Session {
	out := s
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.Warning != nil {
		w := *s.Warning
		out.Warning = &w
	}
	return out
}
