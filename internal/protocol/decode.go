// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a message that failed schema validation.
	ErrMalformed = errors.New("malformed progress message")
	// ErrUnknownStage marks a well-formed message with a stage the client does not know.
	ErrUnknownStage = errors.New("unknown progress stage")
)

// Reasons reported by DecodeError; stable, used as metric labels.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonMissingSessionID = "missing_session_id"
	ReasonMissingStage     = "missing_stage"
	ReasonPercentRange     = "percent_out_of_range"
	ReasonUnknownStage     = "unknown_stage"
)

const maxSessionIDLen = 128

// DecodeError describes why a message was rejected.
type DecodeError struct {
	Sentinel  error
	Reason    string
	SessionID string
	Err       error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("protocol: %v: %s", e.Sentinel, e.Reason)
	if e.SessionID != "" {
		msg = fmt.Sprintf("%s (session %s)", msg, e.SessionID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Sentinel
}

func malformed(reason, sessionID string, err error) *DecodeError {
	return &DecodeError{Sentinel: ErrMalformed, Reason: reason, SessionID: sessionID, Err: err}
}

// Decode parses and validates a single progress message.
// A message with an unknown stage is returned together with an error wrapping
// ErrUnknownStage so the caller can report it against the session.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, malformed(ReasonInvalidJSON, "", err)
	}
	if m.SessionID == "" || len(m.SessionID) > maxSessionIDLen {
		return Message{}, malformed(ReasonMissingSessionID, "", nil)
	}
	if m.Stage == "" {
		return Message{}, malformed(ReasonMissingStage, m.SessionID, nil)
	}
	if m.Percent != nil && (*m.Percent < 0 || *m.Percent > 100) {
		return Message{}, malformed(ReasonPercentRange, m.SessionID, fmt.Errorf("percent=%d", *m.Percent))
	}
	if !m.Stage.Known() {
		return m, &DecodeError{Sentinel: ErrUnknownStage, Reason: ReasonUnknownStage, SessionID: m.SessionID, Err: fmt.Errorf("stage=%q", m.Stage)}
	}
	return m, nil
}

// DecodeFrame splits a transport frame into newline-delimited messages and
// decodes each one. Blank lines are skipped. A bad line never prevents the
// remaining lines from being decoded.
func DecodeFrame(frame []byte) ([]Message, []error) {
	var (
		msgs []Message
		errs []error
	)
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		m, err := Decode(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, errs
}

// ReasonOf extracts the DecodeError reason, or "unknown".
func ReasonOf(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason
	}
	return "unknown"
}
