// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

// EventKind is an input to the session state machine.
type EventKind int

const (
	EvUnknown EventKind = iota
	// EvAccepted: the upload transport accepted the submission.
	EvAccepted
	// EvUploadProgress: stream stage "uploading".
	EvUploadProgress
	// EvProcessingProgress: stream stage "processing". The first one is the
	// upload-complete edge.
	EvProcessingProgress
	// EvComplete: stream stage "complete".
	EvComplete
	// EvPipelineError: stream stage "error".
	EvPipelineError
	// EvRejected: the submission was refused (validation) or could not be sent.
	EvRejected
	// EvConnectionLost: the progress channel exhausted its retry budget.
	EvConnectionLost
	// EvStreamGap: the progress channel reconnected while the session was in flight.
	EvStreamGap
	// EvCancelled: the owner tore the session down before it finished.
	EvCancelled
)

func (k EventKind) String() string {
	switch k {
	case EvAccepted:
		return "accepted"
	case EvUploadProgress:
		return "upload_progress"
	case EvProcessingProgress:
		return "processing_progress"
	case EvComplete:
		return "complete"
	case EvPipelineError:
		return "pipeline_error"
	case EvRejected:
		return "rejected"
	case EvConnectionLost:
		return "connection_lost"
	case EvStreamGap:
		return "stream_gap"
	case EvCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// isProgress reports whether the event carries a percent subject to the
// monotonicity rule.
func (k EventKind) isProgress() bool {
	return k == EvUploadProgress || k == EvProcessingProgress
}

// Transition is a single allowed edge in the session state machine.
type Transition struct {
	From  State
	Event EventKind
	To    State
}

var transitionsTable = []Transition{
	// Submission
	{From: StateQueued, Event: EvAccepted, To: StateUploading},
	{From: StateUploading, Event: EvAccepted, To: StateUploading},
	{From: StateProcessing, Event: EvAccepted, To: StateProcessing},

	// Upload progress; a progress event before the acceptance response implies acceptance.
	{From: StateQueued, Event: EvUploadProgress, To: StateUploading},
	{From: StateUploading, Event: EvUploadProgress, To: StateUploading},

	// Processing; the first processing event is the upload-complete edge.
	{From: StateQueued, Event: EvProcessingProgress, To: StateProcessing},
	{From: StateUploading, Event: EvProcessingProgress, To: StateProcessing},
	{From: StateProcessing, Event: EvProcessingProgress, To: StateProcessing},

	// Completion
	{From: StateQueued, Event: EvComplete, To: StateComplete},
	{From: StateUploading, Event: EvComplete, To: StateComplete},
	{From: StateProcessing, Event: EvComplete, To: StateComplete},

	// Failures
	{From: StateQueued, Event: EvPipelineError, To: StateFailed},
	{From: StateUploading, Event: EvPipelineError, To: StateFailed},
	{From: StateProcessing, Event: EvPipelineError, To: StateFailed},
	{From: StateQueued, Event: EvRejected, To: StateFailed},
	{From: StateUploading, Event: EvRejected, To: StateFailed},
	{From: StateProcessing, Event: EvRejected, To: StateFailed},
	{From: StateQueued, Event: EvConnectionLost, To: StateFailed},
	{From: StateUploading, Event: EvConnectionLost, To: StateFailed},
	{From: StateProcessing, Event: EvConnectionLost, To: StateFailed},
	{From: StateQueued, Event: EvCancelled, To: StateFailed},
	{From: StateUploading, Event: EvCancelled, To: StateFailed},
	{From: StateProcessing, Event: EvCancelled, To: StateFailed},

	// Warnings keep the state.
	{From: StateQueued, Event: EvStreamGap, To: StateQueued},
	{From: StateUploading, Event: EvStreamGap, To: StateUploading},
	{From: StateProcessing, Event: EvStreamGap, To: StateProcessing},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
