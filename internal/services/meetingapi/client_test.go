package meetingapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"meetingflow/internal/auth"
	"meetingflow/internal/config"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/services/meetingapi"
)

func TestFirePostsTransitionWithActorToken(t *testing.T) {
	tokens, err := auth.NewTokenService(config.Auth{SigningKey: "secret", Issuer: "meetingflow", TokenTTL: 5})
	if err != nil {
		t.Fatalf("NewTokenService failed: %v", err)
	}
	var got meetingapi.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meetings/7/capture/bot/start" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, err := auth.ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			t.Errorf("missing token: %v", err)
		}
		claims, err := tokens.ValidateToken(raw)
		if err != nil || claims.Actor != "capture-1" || claims.MeetingID != 7 {
			t.Errorf("bad token claims %+v: %v", claims, err)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := meetingapi.NewClient(server.URL+"/", 0, tokens)
	meeting := &queue.Meeting{ID: 7, Platform: queue.PlatformComu, OwnerID: uuid.New()}
	err = client.Fire(context.Background(), meeting, queue.Transition{
		MeetingID: 7,
		From:      queue.StatusCaptureBotIsConnecting,
		To:        queue.StatusCaptureInProgress,
		Event:     queue.EventStartCapture,
		Actor:     "capture-1",
	})
	if err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if got.Event != "start_capture" || got.To != "capture_in_progress" || got.Platform != "comu" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestFireReportsDownstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := meetingapi.NewClient(server.URL, 0, nil)
	err := client.Fire(context.Background(), &queue.Meeting{ID: 1}, queue.Transition{
		MeetingID: 1,
		Event:     queue.EventCompleteReport,
	})
	if !errors.Is(err, services.ErrDownstreamCall) {
		t.Fatalf("expected ErrDownstreamCall, got %v", err)
	}
}

func TestFirePostsToEventRoute(t *testing.T) {
	paths := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	client := meetingapi.NewClient(server.URL+"/api", 0, nil)

	cases := map[queue.Event]string{
		queue.EventInitCapture:           "/api/meetings/3/capture/init",
		queue.EventStartCapture:          "/api/meetings/3/capture/bot/start",
		queue.EventFailCaptureBot:        "/api/meetings/3/capture/bot/fail",
		queue.EventCompleteCapture:       "/api/meetings/3/capture/stop",
		queue.EventInitTranscription:     "/api/meetings/3/transcription/init",
		queue.EventStartTranscription:    "/api/meetings/3/transcription/start",
		queue.EventFailTranscription:     "/api/meetings/3/transcription/fail",
		queue.EventCompleteTranscription: "/api/meetings/3/transcription/end",
		queue.EventFailCapture:           "/api/meetings/3/transitions",
		queue.EventCompleteReport:        "/api/meetings/3/transitions",
	}
	for event, want := range cases {
		err := client.Fire(context.Background(), &queue.Meeting{ID: 3}, queue.Transition{MeetingID: 3, Event: event})
		if err != nil {
			t.Fatalf("%s: Fire failed: %v", event, err)
		}
		if got := <-paths; got != want {
			t.Fatalf("%s: expected %s, got %s", event, want, got)
		}
	}
}
