package api

import (
	"slices"
	"time"

	"meetingflow/internal/queue"
	"meetingflow/internal/workflow"
)

// FromMeeting converts a stored meeting to its API representation. The
// password is never exposed.
func FromMeeting(meeting *queue.Meeting) Meeting {
	if meeting == nil {
		return Meeting{}
	}
	dto := Meeting{
		ID:                    meeting.ID,
		Name:                  meeting.Name,
		Platform:              string(meeting.Platform),
		URL:                   meeting.URL,
		PlatformID:            meeting.PlatformID,
		OwnerID:               meeting.OwnerID.String(),
		Status:                string(meeting.Status),
		Stage:                 meeting.Status.Stage(),
		CreatedAt:             formatTime(meeting.CreatedAt),
		UpdatedAt:             formatTime(meeting.UpdatedAt),
		StartDate:             formatTimePtr(meeting.StartDate),
		EndDate:               formatTimePtr(meeting.EndDate),
		TranscriptionFilename: meeting.TranscriptionFilename,
		ReportFilename:        meeting.ReportFilename,
		LastHeartbeat:         formatTimePtr(meeting.LastHeartbeat),
	}
	return dto
}

// FromMeetings converts a slice, skipping nil entries.
func FromMeetings(meetings []*queue.Meeting) []Meeting {
	out := make([]Meeting, 0, len(meetings))
	for _, meeting := range meetings {
		if meeting == nil {
			continue
		}
		out = append(out, FromMeeting(meeting))
	}
	return out
}

// FromTransitions converts a history in record order.
func FromTransitions(records []queue.TransitionRecord) []Transition {
	out := make([]Transition, 0, len(records))
	for _, record := range records {
		out = append(out, Transition{
			ID:              record.ID,
			Status:          string(record.Status),
			Event:           string(record.Event),
			Actor:           record.Actor,
			CreatedAt:       formatTime(record.CreatedAt),
			PredictedNextAt: formatTimePtr(record.PredictedNextAt),
		})
	}
	return out
}

// FromStatusSummary converts workflow diagnostics. Stage health is ordered
// capture, transcription, report, then anything else by name.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		QueueStats: MergeQueueStats(summary.QueueStats),
		Pending:    summary.Health.Pending,
		InProgress: summary.Health.InProgress,
		Failed:     summary.Health.Failed,
		Done:       summary.Health.Done,
		LastError:  summary.LastError,
	}
	if summary.LastMeeting != nil {
		last := FromMeeting(summary.LastMeeting)
		status.LastMeeting = &last
	}

	names := make([]string, 0, len(summary.Workers))
	for name := range summary.Workers {
		names = append(names, name)
	}
	for name := range summary.StageHealth {
		if _, ok := summary.Workers[name]; !ok {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		if ra, rb := stageRank(a), stageRank(b); ra != rb {
			return ra - rb
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
	status.StageHealth = make([]StageHealth, 0, len(names))
	for _, name := range names {
		health := summary.StageHealth[name]
		status.StageHealth = append(status.StageHealth, StageHealth{
			Name:    name,
			Ready:   health.Ready,
			Detail:  health.Detail,
			Workers: summary.Workers[name],
		})
	}
	return status
}

// MergeQueueStats keys counts by status name.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] += count
	}
	return out
}

func stageRank(name string) int {
	switch name {
	case queue.StageCapture:
		return 0
	case queue.StageTranscription:
		return 1
	case queue.StageReport:
		return 2
	default:
		return 3
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
