// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "fmt"

// ErrorKind classifies a failure for display and metrics.
type ErrorKind string

const (
	// KindValidation means the submission was rejected before processing began.
	KindValidation ErrorKind = "validation"
	// KindTransport means the backend could not be reached.
	KindTransport ErrorKind = "transport"
	// KindPipeline means the backend reported a processing-stage failure.
	KindPipeline ErrorKind = "pipeline"
	// KindProtocol means an unexpected or malformed message shape.
	KindProtocol ErrorKind = "protocol"
)

// Machine error codes raised on the client side. Pipeline failures carry the
// backend-supplied code instead.
const (
	CodeConnectionLost      = "connection-lost"
	CodeStreamGap           = "stream-gap"
	CodeUploadFailed        = "upload-failed"
	CodeRejected            = "rejected"
	CodeUnsupportedFileType = "unsupported-file-type"
	CodeFileTooLarge        = "file-too-large"
	CodeCancelled           = "cancelled"
)

// ErrorDetail is the structured, user-presentable cause of a failure or warning.
// Message is human readable and never contains raw transport detail.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

func (e *ErrorDetail) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ConnectionLost is the detail recorded when the progress channel exhausts its
// reconnection budget.
func ConnectionLost() *ErrorDetail {
	return &ErrorDetail{
		Kind:    KindTransport,
		Code:    CodeConnectionLost,
		Message: "Lost connection to the progress stream",
	}
}

// StreamGap is the warning recorded when the progress stream reconnected while
// the session was in flight; events emitted during the outage may be missing.
func StreamGap() *ErrorDetail {
	return &ErrorDetail{
		Kind:    KindProtocol,
		Code:    CodeStreamGap,
		Message: "Progress stream reconnected; some updates may have been missed",
	}
}
