// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "time"

// Event carries the data of one state machine input.
type Event struct {
	Kind       EventKind
	Percent    int
	HasPercent bool
	Message    string
	Detail     *ErrorDetail
}

// Outcome tells the caller what Apply did with an event.
type Outcome int

const (
	// Applied: the event was folded into the session.
	Applied Outcome = iota
	// IgnoredTerminal: the session is already Complete or Failed.
	IgnoredTerminal
	// IgnoredStale: the event reported a lower percent than already recorded.
	IgnoredStale
	// IgnoredInvalid: no transition exists for the current state and event.
	IgnoredInvalid
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case IgnoredTerminal:
		return "terminal"
	case IgnoredStale:
		return "stale"
	case IgnoredInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Result describes the effect of Apply.
type Result struct {
	Outcome Outcome
	From    State
	To      State
}

// Changed reports whether the session state moved.
func (r Result) Changed() bool {
	return r.Outcome == Applied && r.From != r.To
}

// Apply folds ev into s. It is the only place session state is mutated.
// Sessions in a terminal state are never modified.
func Apply(s *Session, ev Event, now time.Time) Result {
	from := s.State
	if from.IsTerminal() {
		return Result{Outcome: IgnoredTerminal, From: from, To: from}
	}

	tr, ok := TransitionFor(from, ev.Kind)
	if !ok {
		return Result{Outcome: IgnoredInvalid, From: from, To: from}
	}

	if ev.Kind.isProgress() && ev.HasPercent && ev.Percent < s.ProgressPercent {
		return Result{Outcome: IgnoredStale, From: from, To: from}
	}

	s.State = tr.To
	if ev.Kind.isProgress() && ev.HasPercent {
		s.ProgressPercent = clampPercent(ev.Percent)
	}
	if ev.Message != "" {
		s.Message = ev.Message
	}

	switch {
	case tr.To == StateComplete:
		s.ProgressPercent = 100
	case tr.To == StateFailed:
		s.Error = failureDetail(ev)
	case ev.Kind == EvStreamGap:
		s.Warning = ev.Detail
		if s.Warning == nil {
			s.Warning = StreamGap()
		}
	}

	s.UpdatedAt = now
	return Result{Outcome: Applied, From: from, To: tr.To}
}

func failureDetail(ev Event) *ErrorDetail {
	if ev.Detail != nil {
		d := *ev.Detail
		return &d
	}
	switch ev.Kind {
	case EvConnectionLost:
		return ConnectionLost()
	case EvPipelineError:
		msg := ev.Message
		if msg == "" {
			msg = "Processing failed"
		}
		return &ErrorDetail{Kind: KindPipeline, Message: msg}
	case EvCancelled:
		return &ErrorDetail{Kind: KindTransport, Code: CodeCancelled, Message: "Upload was cancelled"}
	default:
		return &ErrorDetail{Kind: KindValidation, Code: CodeRejected, Message: "Upload was rejected"}
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
