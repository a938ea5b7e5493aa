package queue

import (
	"fmt"
	"strings"
)

// Status is the lifecycle position of a meeting.
type Status string

const (
	StatusNone                       Status = "none"
	StatusCapturePending             Status = "capture_pending"
	StatusImportPending              Status = "import_pending"
	StatusCaptureBotIsConnecting     Status = "capture_bot_is_connecting"
	StatusCaptureBotConnectionFailed Status = "capture_bot_connection_failed"
	StatusCaptureInProgress          Status = "capture_in_progress"
	StatusCaptureFailed              Status = "capture_failed"
	StatusTranscriptionPending       Status = "transcription_pending"
	StatusTranscriptionInProgress    Status = "transcription_in_progress"
	StatusTranscriptionDone          Status = "transcription_done"
	StatusTranscriptionFailed        Status = "transcription_failed"
	StatusReportPending              Status = "report_pending"
	StatusReportInProgress           Status = "report_in_progress"
	StatusReportDone                 Status = "report_done"
	StatusReportFailed               Status = "report_failed"
)

type statusKind int

const (
	kindInitial statusKind = iota
	kindPending
	kindInProgress
	kindDone
	kindFailed
)

var allStatuses = []Status{
	StatusNone,
	StatusCapturePending,
	StatusImportPending,
	StatusCaptureBotIsConnecting,
	StatusCaptureBotConnectionFailed,
	StatusCaptureInProgress,
	StatusCaptureFailed,
	StatusTranscriptionPending,
	StatusTranscriptionInProgress,
	StatusTranscriptionDone,
	StatusTranscriptionFailed,
	StatusReportPending,
	StatusReportInProgress,
	StatusReportDone,
	StatusReportFailed,
}

var statusKinds = map[Status]statusKind{
	StatusNone:                       kindInitial,
	StatusCapturePending:             kindPending,
	StatusImportPending:              kindPending,
	StatusCaptureBotIsConnecting:     kindInProgress,
	StatusCaptureBotConnectionFailed: kindFailed,
	StatusCaptureInProgress:          kindInProgress,
	StatusCaptureFailed:              kindFailed,
	StatusTranscriptionPending:       kindPending,
	StatusTranscriptionInProgress:    kindInProgress,
	StatusTranscriptionDone:          kindDone,
	StatusTranscriptionFailed:        kindFailed,
	StatusReportPending:              kindPending,
	StatusReportInProgress:           kindInProgress,
	StatusReportDone:                 kindDone,
	StatusReportFailed:               kindFailed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status. Upper-case and
// dash-separated spellings are accepted.
func ParseStatus(value string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	status := Status(normalized)
	if _, ok := statusKinds[status]; !ok {
		return "", fmt.Errorf("unknown status %q", value)
	}
	return status, nil
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is a member of the status graph.
func (s Status) Valid() bool {
	_, ok := statusKinds[s]
	return ok
}

// IsPending reports whether s waits for a worker or an orchestrator call.
func (s Status) IsPending() bool { return statusKinds[s] == kindPending }

// IsInProgress reports whether s means a worker currently owns the meeting.
func (s Status) IsInProgress() bool { return statusKinds[s] == kindInProgress }

// IsFailed reports whether s is a failure status. Failures are terminal until
// an external retry re-submits the meeting.
func (s Status) IsFailed() bool { return statusKinds[s] == kindFailed }

// IsDone reports whether s marks a finished stage.
func (s Status) IsDone() bool { return statusKinds[s] == kindDone }

// IsTerminal reports whether no edge leaves s without an external retry.
func (s Status) IsTerminal() bool {
	return s == StatusReportDone || s.IsFailed()
}

// IsClaimable reports whether a Work Claimer may poll for s.
func (s Status) IsClaimable() bool {
	_, ok := ClaimTarget(s)
	return ok
}

// Stage names the pipeline stage that owns s: capture, transcription, report,
// or an empty string for none.
func (s Status) Stage() string {
	switch {
	case strings.HasPrefix(string(s), "capture_"):
		return StageCapture
	case strings.HasPrefix(string(s), "transcription_"), s == StatusImportPending:
		return StageTranscription
	case strings.HasPrefix(string(s), "report_"):
		return StageReport
	default:
		return ""
	}
}

// Stage names.
const (
	StageCapture       = "capture"
	StageTranscription = "transcription"
	StageReport        = "report"
)
