package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meetingflow/internal/api"
	"meetingflow/internal/config"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

type meetingStoreStub struct {
	meetings []*queue.Meeting
}

func (s *meetingStoreStub) List(context.Context, ...queue.Status) ([]*queue.Meeting, error) {
	return s.meetings, nil
}

func (s *meetingStoreStub) GetByID(_ context.Context, id int64) (*queue.Meeting, error) {
	for _, meeting := range s.meetings {
		if meeting.ID == id {
			return meeting, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "queue", "get", "meeting not found", nil)
}

func (s *meetingStoreStub) Transitions(context.Context, int64) ([]queue.TransitionRecord, error) {
	return []queue.TransitionRecord{{ID: 1, Status: queue.StatusCapturePending, Event: queue.EventInitCapture, Actor: "api", CreatedAt: time.Now()}}, nil
}

func TestAPIServerHandleMeetings(t *testing.T) {
	store := &meetingStoreStub{meetings: []*queue.Meeting{{ID: 1, Name: "Example", Platform: queue.PlatformWebconf, Status: queue.StatusCapturePending}}}
	srv := &apiServer{meetingSvc: api.NewMeetingService(store)}

	req := httptest.NewRequest(http.MethodGet, "/api/meetings", nil)
	w := httptest.NewRecorder()
	srv.handleMeetings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.MeetingListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Meetings) != 1 || resp.Meetings[0].Name != "Example" {
		t.Fatalf("unexpected meetings %+v", resp.Meetings)
	}
}

func TestAPIServerRejectsWrites(t *testing.T) {
	srv := &apiServer{meetingSvc: api.NewMeetingService(&meetingStoreStub{})}
	w := httptest.NewRecorder()
	srv.handleMeeting(w, httptest.NewRequest(http.MethodPost, "/api/meetings/1", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestNewAPIServerRequiresTokens(t *testing.T) {
	cfg := config.Default()
	cfg.API.Bind = "127.0.0.1:0"
	if _, err := newAPIServer(&cfg, &Daemon{}, nil, nil); err == nil {
		t.Fatal("expected configuration error without a token service")
	}
	cfg.API.Bind = ""
	srv, err := newAPIServer(&cfg, &Daemon{}, nil, nil)
	if err != nil || srv != nil {
		t.Fatalf("expected disabled server, got %v %v", srv, err)
	}
}
