package daemonrun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"meetingflow/internal/auth"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services/meetingapi"
	"meetingflow/internal/testsupport"
	"meetingflow/internal/workflow"
)

func TestAssembleConfiguresAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Inference.TranscriptionURL = "http://127.0.0.1:1/transcribe"
	store := testsupport.MustOpenStore(t, cfg)

	rt, err := Assemble(context.Background(), cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer rt.Close()

	status := rt.Manager.Status(context.Background())
	for _, name := range []string{queue.StageCapture, queue.StageTranscription, queue.StageReport} {
		if _, ok := status.StageHealth[name]; !ok {
			t.Fatalf("stage %s not configured: %+v", name, status.StageHealth)
		}
	}
	if !status.StageHealth[queue.StageTranscription].Ready {
		t.Fatalf("expected transcription ready, got %+v", status.StageHealth[queue.StageTranscription])
	}
	if status.StageHealth[queue.StageReport].Ready {
		t.Fatalf("expected report unready without report_url")
	}
	if rt.Tokens == nil || rt.Heartbeat == nil || rt.Blobs == nil {
		t.Fatalf("runtime incomplete: %+v", rt)
	}
}

func TestNewTriggerSelectsDownstreamClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, ok := newTrigger(cfg, nil).(workflow.NoopTrigger); !ok {
		t.Fatal("expected noop trigger without downstream base url")
	}

	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg = testsupport.NewConfig(t, testsupport.WithDownstream(server.URL))
	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	trigger := newTrigger(cfg, tokens)
	if _, ok := trigger.(*meetingapi.Client); !ok {
		t.Fatalf("expected downstream client, got %T", trigger)
	}
	meeting := &queue.Meeting{ID: 7, Platform: queue.PlatformWebconf}
	edge, _ := queue.EdgeFor(queue.EventClaimCapture)
	err = trigger.Fire(context.Background(), meeting, queue.Transition{
		MeetingID: 7, From: queue.StatusCapturePending, To: edge.To, Event: queue.EventClaimCapture, Actor: "worker-capture-0",
	})
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if authHeader == "" {
		t.Fatal("expected an actor token on the downstream call")
	}
}

func TestTokenServiceOptional(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Auth.SigningKey = ""
	tokens, err := tokenService(cfg)
	if err != nil || tokens != nil {
		t.Fatalf("expected nil service without a signing key, got %v %v", tokens, err)
	}
}
