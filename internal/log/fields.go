// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldServiceID = "service_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldPercent  = "percent"
	FieldStage    = "stage"

	// Error fields
	FieldErrorKind = "error_kind"
	FieldErrorCode = "error_code"

	// File fields
	FieldFileName = "file_name"
	FieldFileSize = "file_size"
	FieldPath     = "path"

	// Network fields
	FieldEndpoint = "endpoint"
	FieldAttempt  = "attempt"
	FieldBackoff  = "backoff"
)
