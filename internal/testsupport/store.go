package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"meetingflow/internal/config"
	"meetingflow/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MeetingOption customizes a meeting created by NewMeeting.
type MeetingOption func(*queue.Meeting)

// WithPlatform switches the meeting to platform.
func WithPlatform(platform queue.Platform) MeetingOption {
	return func(m *queue.Meeting) { m.Platform = platform }
}

// AsImport creates the meeting in import_pending.
func AsImport() MeetingOption {
	return func(m *queue.Meeting) {
		m.Platform = queue.PlatformMCRImport
		m.URL = ""
	}
}

// NewMeeting creates a capture_pending meeting joined by URL.
func NewMeeting(t testing.TB, store queue.Repository, name string, opts ...MeetingOption) *queue.Meeting {
	t.Helper()

	meeting := &queue.Meeting{
		Name:     name,
		Platform: queue.PlatformWebconf,
		URL:      "https://webconf.example.org/" + name,
		OwnerID:  uuid.New(),
	}
	for _, opt := range opts {
		opt(meeting)
	}
	created, err := store.Create(context.Background(), meeting)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}

// MustTransition applies a transition for tests and returns the updated meeting.
func MustTransition(t testing.TB, store queue.Repository, meeting *queue.Meeting, event queue.Event) *queue.Meeting {
	t.Helper()

	edge, ok := queue.EdgeFor(event)
	if !ok {
		t.Fatalf("unknown event %s", event)
	}
	updated, _, err := store.Transition(context.Background(), queue.Transition{
		MeetingID: meeting.ID,
		From:      meeting.Status,
		To:        edge.To,
		Event:     event,
		Actor:     "test",
	})
	if err != nil {
		t.Fatalf("store.Transition(%s): %v", event, err)
	}
	return updated
}
