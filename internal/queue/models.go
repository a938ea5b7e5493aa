package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"meetingflow/internal/services"
)

// Platform identifies the conferencing system a meeting runs on.
type Platform string

const (
	PlatformComu      Platform = "comu"
	PlatformWebinaire Platform = "webinaire"
	PlatformWebconf   Platform = "webconf"
	PlatformMCRImport Platform = "mcr_import"
	PlatformMCRRecord Platform = "mcr_record"
)

var knownPlatforms = map[Platform]struct{}{
	PlatformComu:      {},
	PlatformWebinaire: {},
	PlatformWebconf:   {},
	PlatformMCRImport: {},
	PlatformMCRRecord: {},
}

// ParsePlatform converts a string into a known Platform.
func ParsePlatform(value string) (Platform, bool) {
	platform := Platform(strings.ToLower(strings.TrimSpace(value)))
	_, ok := knownPlatforms[platform]
	return platform, ok
}

// Meeting is the row every stage advances through the status graph. The
// platform identity is either URL or the (PlatformID, Password) pair, never
// both.
type Meeting struct {
	ID                    int64
	Name                  string
	Platform              Platform
	URL                   string
	PlatformID            string
	Password              string
	OwnerID               uuid.UUID
	Status                Status
	CreatedAt             time.Time
	UpdatedAt             time.Time
	StartDate             *time.Time
	EndDate               *time.Time
	TranscriptionFilename string
	ReportFilename        string
	LastHeartbeat         *time.Time
}

// UsesURL reports whether the meeting joins through a direct URL.
func (m Meeting) UsesURL() bool { return strings.TrimSpace(m.URL) != "" }

// Validate checks the fields a new meeting needs before it is stored.
func (m Meeting) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return services.Wrap(services.ErrValidation, "queue", "validate meeting", "name is required", nil)
	}
	if _, ok := knownPlatforms[m.Platform]; !ok {
		return services.Wrap(services.ErrValidation, "queue", "validate meeting", "unknown platform "+string(m.Platform), nil)
	}
	hasURL := strings.TrimSpace(m.URL) != ""
	hasPair := strings.TrimSpace(m.PlatformID) != "" || strings.TrimSpace(m.Password) != ""
	switch {
	case hasURL && hasPair:
		return services.Wrap(services.ErrValidation, "queue", "validate meeting", "url and platform id/password are mutually exclusive", nil)
	case !hasURL && strings.TrimSpace(m.PlatformID) == "" && m.Platform != PlatformMCRImport:
		return services.Wrap(services.ErrValidation, "queue", "validate meeting", "either url or platform id is required", nil)
	}
	return nil
}

// TransitionRecord is one append-only entry of a meeting's history.
type TransitionRecord struct {
	ID              int64
	MeetingID       int64
	Status          Status
	Event           Event
	Actor           string
	CreatedAt       time.Time
	PredictedNextAt *time.Time
}

// MeetingUpdate lists the meeting fields a transition may set alongside the
// status. Nil fields are left untouched.
type MeetingUpdate struct {
	StartDate             *time.Time
	EndDate               *time.Time
	TranscriptionFilename *string
	ReportFilename        *string
}

// Transition is a guarded status change: it succeeds only while the meeting
// is still in From.
type Transition struct {
	MeetingID       int64
	From            Status
	To              Status
	Event           Event
	Actor           string
	PredictedNextAt *time.Time
	Update          MeetingUpdate
}

// HealthSummary describes aggregated meeting counts per lifecycle kind.
type HealthSummary struct {
	Total      int
	Pending    int
	InProgress int
	Failed     int
	Done       int
}

// Summarize folds per-status counts into a HealthSummary.
func Summarize(stats map[Status]int) HealthSummary {
	var summary HealthSummary
	for status, count := range stats {
		summary.Total += count
		switch {
		case status.IsPending():
			summary.Pending += count
		case status.IsInProgress():
			summary.InProgress += count
		case status.IsFailed():
			summary.Failed += count
		case status.IsDone():
			summary.Done += count
		}
	}
	return summary
}

// DefaultActor is recorded when a caller does not name one.
const DefaultActor = "system"

// Validate checks that the transition follows an edge of the status graph.
func (tr Transition) Validate() error {
	if tr.MeetingID <= 0 {
		return services.Wrap(services.ErrValidation, "queue", "transition", "meeting id is required", nil)
	}
	edge, ok := EdgeFor(tr.Event)
	if !ok {
		return services.Wrap(services.ErrInvalidTransition, "queue", "transition", "unknown event "+string(tr.Event), nil)
	}
	if edge.To != tr.To || !edge.Allows(tr.From) {
		return services.Wrap(services.ErrInvalidTransition, "queue", "transition",
			string(tr.Event)+" does not lead from "+string(tr.From)+" to "+string(tr.To), nil)
	}
	return nil
}
