package transcription_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meetingflow/internal/blob"
	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/services/inference"
	"meetingflow/internal/stage"
	"meetingflow/internal/testsupport"
	"meetingflow/internal/transcription"
	"meetingflow/internal/workflow"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	requests []inference.TranscriptionRequest
	text     string
	err      error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req inference.TranscriptionRequest) (inference.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return inference.Transcript{}, f.err
	}
	return inference.Transcript{Text: f.text, Language: "fr"}, nil
}

type harness struct {
	cfg    *config.Config
	store  *queue.Store
	orch   *workflow.Orchestrator
	blobs  *blob.MemoryStore
	layout blob.Layout
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Inference.TranscriptionURL = "http://transcriber.invalid"
	store := testsupport.MustOpenStore(t, cfg)
	return &harness{
		cfg:    cfg,
		store:  store,
		orch:   workflow.NewOrchestrator(store),
		blobs:  blob.NewMemoryStore(cfg.Blob.Bucket),
		layout: blob.LayoutFromConfig(cfg.Blob),
	}
}

// claimImport creates an imported meeting with n audio chunks and claims it
// for transcription.
func (h *harness) claimImport(t *testing.T, name string, chunks int) *queue.Meeting {
	t.Helper()
	ctx := context.Background()
	meeting := testsupport.NewMeeting(t, h.store, name, testsupport.AsImport())
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < chunks; i++ {
		key := h.layout.AudioKey(meeting.ID, base.Add(time.Duration(i)*time.Second))
		if _, err := h.blobs.Put(ctx, key, blob.ContentTypeAudio, []byte("audio")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if _, err := h.orch.InitTranscription(ctx, meeting.ID, "api"); err != nil {
		t.Fatalf("InitTranscription: %v", err)
	}
	claimed, err := h.store.Claim(ctx, queue.StatusTranscriptionPending, "worker-transcription-0")
	if err != nil || claimed == nil {
		t.Fatalf("Claim: meeting=%v err=%v", claimed, err)
	}
	return claimed
}

func TestExecuteStoresTranscriptAndCompletes(t *testing.T) {
	h := newHarness(t)
	meeting := h.claimImport(t, "council", 2)
	client := &fakeTranscriber{text: "bonjour à tous"}
	st := transcription.NewStage(h.cfg, client, h.blobs, h.orch, logging.NewNop())

	ctx := stage.WithActor(context.Background(), "worker-transcription-0")
	if err := st.Execute(ctx, meeting); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(client.requests) != 1 || len(client.requests[0].AudioURLs) != 2 {
		t.Fatalf("unexpected requests %+v", client.requests)
	}
	first, second := client.requests[0].AudioURLs[0], client.requests[0].AudioURLs[1]
	if !strings.HasPrefix(first, "memory://") || first >= second {
		t.Fatalf("expected presigned urls in capture order, got %q %q", first, second)
	}

	updated, err := h.store.GetByID(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	key := h.layout.TranscriptionKey(meeting.ID)
	if updated.Status != queue.StatusTranscriptionDone || updated.TranscriptionFilename != key {
		t.Fatalf("unexpected meeting %+v", updated)
	}
	data, desc, err := h.blobs.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get transcript: %v", err)
	}
	if string(data) != "bonjour à tous" || desc.ContentType != blob.ContentTypeTranscript {
		t.Fatalf("unexpected transcript %q (%s)", data, desc.ContentType)
	}
}

func TestExecuteWithoutAudioIsNotFound(t *testing.T) {
	h := newHarness(t)
	meeting := h.claimImport(t, "empty", 0)
	client := &fakeTranscriber{text: "unused"}
	st := transcription.NewStage(h.cfg, client, h.blobs, h.orch, logging.NewNop())

	if err := st.Execute(context.Background(), meeting); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(client.requests) != 0 {
		t.Fatalf("transcriber should not be called, got %d requests", len(client.requests))
	}
}

func TestExecuteServiceFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	meeting := h.claimImport(t, "outage", 1)
	st := transcription.NewStage(h.cfg, &fakeTranscriber{err: errors.New("503")}, h.blobs, h.orch, logging.NewNop())

	err := st.Execute(context.Background(), meeting)
	if !errors.Is(err, services.ErrDownstreamCall) {
		t.Fatalf("expected downstream error, got %v", err)
	}
	if _, _, err := h.blobs.Get(context.Background(), h.layout.TranscriptionKey(meeting.ID)); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected no transcript, got %v", err)
	}
	current, _ := h.store.GetByID(context.Background(), meeting.ID)
	if current.Status != queue.StatusTranscriptionInProgress {
		t.Fatalf("stage must leave the failure transition to the manager, got %s", current.Status)
	}
}

func TestHealthCheckRequiresEndpoint(t *testing.T) {
	h := newHarness(t)
	h.cfg.Inference.TranscriptionURL = ""
	st := transcription.NewStage(h.cfg, &fakeTranscriber{}, h.blobs, h.orch, logging.NewNop())
	if health := st.HealthCheck(context.Background()); health.Ready {
		t.Fatalf("expected unhealthy stage, got %+v", health)
	}
}
