package queue

import "fmt"

// Event names a transition in the status graph.
type Event string

const (
	EventInitCapture           Event = "init_capture"
	EventInitImport            Event = "init_import"
	EventClaimCapture          Event = "claim_capture"
	EventStartCapture          Event = "start_capture"
	EventFailCaptureBot        Event = "fail_capture_bot"
	EventFailCapture           Event = "fail_capture"
	EventCompleteCapture       Event = "complete_capture"
	EventInitTranscription     Event = "init_transcription"
	EventStartTranscription    Event = "start_transcription"
	EventFailTranscription     Event = "fail_transcription"
	EventCompleteTranscription Event = "complete_transcription"
	EventStartReport           Event = "start_report"
	EventStartReportGeneration Event = "start_report_generation"
	EventFailReport            Event = "fail_report"
	EventCompleteReport        Event = "complete_report"
	EventRetryCapture          Event = "retry_capture"
	EventRetryReport           Event = "retry_report"
)

// Edge is one row of the event table. From lists every status the event may
// leave; To is the destination on success. Failure is where the meeting goes
// when the event's side effect fails, and is set for every event that leaves
// an in-progress status.
type Edge struct {
	Event   Event
	From    []Status
	To      Status
	Failure Status
	// Claim marks the edge a Work Claimer applies when it takes a pending meeting.
	Claim bool
	// Reentry marks an external retry out of a failure status.
	Reentry bool
}

// Allows reports whether the edge may leave from.
func (e Edge) Allows(from Status) bool {
	for _, candidate := range e.From {
		if candidate == from {
			return true
		}
	}
	return false
}

var edges = []Edge{
	{Event: EventInitCapture, From: []Status{StatusNone}, To: StatusCapturePending},
	{Event: EventInitImport, From: []Status{StatusNone}, To: StatusImportPending},
	{Event: EventClaimCapture, From: []Status{StatusCapturePending}, To: StatusCaptureBotIsConnecting, Claim: true},
	{
		Event:   EventStartCapture,
		From:    []Status{StatusCaptureBotIsConnecting},
		To:      StatusCaptureInProgress,
		Failure: StatusCaptureBotConnectionFailed,
	},
	{
		Event:   EventFailCaptureBot,
		From:    []Status{StatusCaptureBotIsConnecting},
		To:      StatusCaptureBotConnectionFailed,
		Failure: StatusCaptureBotConnectionFailed,
	},
	{
		Event:   EventFailCapture,
		From:    []Status{StatusCaptureInProgress},
		To:      StatusCaptureFailed,
		Failure: StatusCaptureFailed,
	},
	{
		Event:   EventCompleteCapture,
		From:    []Status{StatusCaptureInProgress},
		To:      StatusTranscriptionPending,
		Failure: StatusCaptureFailed,
	},
	{
		Event:   EventInitTranscription,
		From:    []Status{StatusImportPending, StatusCaptureFailed, StatusTranscriptionFailed},
		To:      StatusTranscriptionPending,
		Reentry: true,
	},
	{
		Event:   EventStartTranscription,
		From:    []Status{StatusTranscriptionPending},
		To:      StatusTranscriptionInProgress,
		Failure: StatusTranscriptionFailed,
		Claim:   true,
	},
	{
		Event:   EventFailTranscription,
		From:    []Status{StatusTranscriptionPending, StatusTranscriptionInProgress},
		To:      StatusTranscriptionFailed,
		Failure: StatusTranscriptionFailed,
	},
	{
		Event:   EventCompleteTranscription,
		From:    []Status{StatusTranscriptionInProgress},
		To:      StatusTranscriptionDone,
		Failure: StatusTranscriptionFailed,
	},
	{Event: EventStartReport, From: []Status{StatusTranscriptionDone}, To: StatusReportPending},
	{Event: EventStartReportGeneration, From: []Status{StatusReportPending}, To: StatusReportInProgress, Claim: true},
	{
		Event:   EventFailReport,
		From:    []Status{StatusReportInProgress},
		To:      StatusReportFailed,
		Failure: StatusReportFailed,
	},
	{
		Event:   EventCompleteReport,
		From:    []Status{StatusReportInProgress},
		To:      StatusReportDone,
		Failure: StatusReportFailed,
	},
	{Event: EventRetryCapture, From: []Status{StatusCaptureBotConnectionFailed}, To: StatusCapturePending, Reentry: true},
	{Event: EventRetryReport, From: []Status{StatusReportFailed}, To: StatusReportPending, Reentry: true},
}

var edgesByEvent = func() map[Event]Edge {
	m := make(map[Event]Edge, len(edges))
	for _, edge := range edges {
		m[edge.Event] = edge
	}
	return m
}()

// Edges returns a copy of the event table.
func Edges() []Edge {
	cp := make([]Edge, len(edges))
	copy(cp, edges)
	return cp
}

// EdgeFor looks up the edge for event.
func EdgeFor(event Event) (Edge, bool) {
	edge, ok := edgesByEvent[event]
	return edge, ok
}

// ParseEvent converts a string into a known Event.
func ParseEvent(value string) (Event, error) {
	event := Event(value)
	if _, ok := edgesByEvent[event]; !ok {
		return "", fmt.Errorf("unknown event %q", value)
	}
	return event, nil
}

// CanTransition reports whether any edge leads from one status to another.
func CanTransition(from, to Status) bool {
	_, ok := EventBetween(from, to)
	return ok
}

// EventBetween returns the event that moves a meeting from one status to
// another. The first matching edge in table order wins.
func EventBetween(from, to Status) (Event, bool) {
	for _, edge := range edges {
		if edge.To == to && edge.Allows(from) {
			return edge.Event, true
		}
	}
	return "", false
}

// ClaimEdge returns the claim edge leaving a pending status.
func ClaimEdge(pending Status) (Edge, bool) {
	for _, edge := range edges {
		if edge.Claim && edge.Allows(pending) {
			return edge, true
		}
	}
	return Edge{}, false
}

// ClaimTarget returns the in-progress status a claim of pending moves to.
// import_pending has no claim target; only the orchestrator advances it.
func ClaimTarget(pending Status) (Status, bool) {
	edge, ok := ClaimEdge(pending)
	if !ok {
		return "", false
	}
	return edge.To, true
}

// ClaimableStatuses lists the statuses Work Claimers poll for.
func ClaimableStatuses() []Status {
	out := make([]Status, 0, 3)
	for _, edge := range edges {
		if edge.Claim {
			out = append(out, edge.From...)
		}
	}
	return out
}

var failureByInProgress = map[Status]Status{
	StatusCaptureBotIsConnecting:  StatusCaptureBotConnectionFailed,
	StatusCaptureInProgress:       StatusCaptureFailed,
	StatusTranscriptionInProgress: StatusTranscriptionFailed,
	StatusReportInProgress:        StatusReportFailed,
}

// FailureFor returns the failure status for an in-progress status.
func FailureFor(inProgress Status) (Status, bool) {
	failed, ok := failureByInProgress[inProgress]
	return failed, ok
}

// FailureEvent returns the event that records a move into failed.
func FailureEvent(failed Status) (Event, bool) {
	for _, edge := range edges {
		if edge.To == failed && failed.IsFailed() {
			return edge.Event, true
		}
	}
	return "", false
}

// ReentryFor returns the external retry edge leaving a failure status.
func ReentryFor(failed Status) (Edge, bool) {
	for _, edge := range edges {
		if edge.Reentry && failed.IsFailed() && edge.Allows(failed) {
			return edge, true
		}
	}
	return Edge{}, false
}
