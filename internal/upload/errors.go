// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package upload

import (
	"errors"
	"fmt"

	"github.com/ManuGH/ingestwatch/internal/session"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrRejected        = errors.New("upload: rejected by backend")
	ErrTransport       = errors.New("upload: backend unreachable or server error")
	ErrUnsupportedType = errors.New("upload: unsupported file type")
	ErrTooLarge        = errors.New("upload: file too large")
)

// SubmitError wraps a sentinel with what the backend or the local checks said.
type SubmitError struct {
	Sentinel error
	Status   int
	Code     string // backend errorCode, if any
	Message  string // backend message or local explanation
	Err      error  // nested transport error
}

func (e *SubmitError) Error() string {
	msg := e.Sentinel.Error()
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SubmitError) Unwrap() error {
	return e.Sentinel
}

// Detail converts err into the user-visible failure recorded on the session.
// Transport detail never leaks into the message.
func Detail(err error) *session.ErrorDetail {
	var se *SubmitError
	if !errors.As(err, &se) {
		return &session.ErrorDetail{
			Kind:    session.KindTransport,
			Code:    session.CodeUploadFailed,
			Message: "Upload failed",
		}
	}
	switch se.Sentinel {
	case ErrRejected:
		d := &session.ErrorDetail{Kind: session.KindValidation, Code: se.Code, Message: se.Message}
		if d.Code == "" {
			d.Code = session.CodeRejected
		}
		if d.Message == "" {
			d.Message = "The server rejected the file"
		}
		return d
	case ErrUnsupportedType:
		return &session.ErrorDetail{Kind: session.KindValidation, Code: session.CodeUnsupportedFileType, Message: se.Message}
	case ErrTooLarge:
		return &session.ErrorDetail{Kind: session.KindValidation, Code: session.CodeFileTooLarge, Message: se.Message}
	default:
		return &session.ErrorDetail{
			Kind:    session.KindTransport,
			Code:    session.CodeUploadFailed,
			Message: "Upload failed; the server could not be reached",
		}
	}
}
