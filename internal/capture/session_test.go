package capture_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meetingflow/internal/blob"
	"meetingflow/internal/capture"
	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/stage"
	"meetingflow/internal/testsupport"
	"meetingflow/internal/workflow"
)

type fakeRecorder struct {
	connectErr error
	readyErr   error
	recording  *fakeRecording
}

func (f *fakeRecorder) Connect(context.Context, *queue.Meeting) (capture.Recording, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.recording, nil
}

func (f *fakeRecorder) Ready() error { return f.readyErr }

type fakeRecording struct {
	chunks   chan capture.Chunk
	stopOnce sync.Once
	stopped  chan struct{}
	trace    []byte
}

// newFakeRecording yields chunks and then either ends on its own or waits
// for Stop.
func newFakeRecording(chunks []capture.Chunk, waitForStop bool) *fakeRecording {
	r := &fakeRecording{
		chunks:  make(chan capture.Chunk, len(chunks)),
		stopped: make(chan struct{}),
		trace:   []byte("trace"),
	}
	for _, chunk := range chunks {
		r.chunks <- chunk
	}
	if !waitForStop {
		close(r.chunks)
		return r
	}
	go func() {
		<-r.stopped
		close(r.chunks)
	}()
	return r
}

func (r *fakeRecording) Chunks() <-chan capture.Chunk { return r.chunks }

func (r *fakeRecording) Stop() error {
	r.stopOnce.Do(func() { close(r.stopped) })
	return nil
}

func (r *fakeRecording) Trace() ([]byte, error) { return r.trace, nil }

type captureHarness struct {
	cfg   *config.Config
	store *queue.Store
	orch  *workflow.Orchestrator
	blobs *blob.MemoryStore
}

func newCaptureHarness(t *testing.T) *captureHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return &captureHarness{
		cfg:   cfg,
		store: store,
		orch:  workflow.NewOrchestrator(store),
		blobs: blob.NewMemoryStore(cfg.Blob.Bucket),
	}
}

func (h *captureHarness) stage(recorder capture.Recorder) *capture.Stage {
	return capture.NewStage(h.cfg, recorder, h.blobs, h.store, h.orch, logging.NewNop())
}

func (h *captureHarness) claim(t *testing.T, name string) *queue.Meeting {
	t.Helper()
	testsupport.NewMeeting(t, h.store, name)
	meeting, err := h.store.Claim(context.Background(), queue.StatusCapturePending, "worker-capture-0")
	if err != nil || meeting == nil {
		t.Fatalf("Claim: meeting=%v err=%v", meeting, err)
	}
	return meeting
}

func (h *captureHarness) status(t *testing.T, id int64) queue.Status {
	t.Helper()
	meeting, err := h.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return meeting.Status
}

func (h *captureHarness) audioCount(t *testing.T, id int64) int {
	t.Helper()
	objects, err := h.blobs.List(context.Background(), blob.LayoutFromConfig(h.cfg.Blob).AudioPrefix(id))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return len(objects)
}

func chunksAt(base time.Time, n int) []capture.Chunk {
	out := make([]capture.Chunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, capture.Chunk{Name: "chunk", Data: []byte{byte(i)}, At: base})
	}
	return out
}

func TestExecuteUploadsChunksAndCompletesCapture(t *testing.T) {
	h := newCaptureHarness(t)
	meeting := h.claim(t, "standup")
	recording := newFakeRecording(chunksAt(time.Now(), 3), false)

	ctx := stage.WithActor(context.Background(), "worker-capture-0")
	if err := h.stage(&fakeRecorder{recording: recording}).Execute(ctx, meeting); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := h.status(t, meeting.ID); got != queue.StatusTranscriptionPending {
		t.Fatalf("expected transcription_pending, got %s", got)
	}
	// Equal timestamps still produce distinct keys.
	if got := h.audioCount(t, meeting.ID); got != 3 {
		t.Fatalf("expected 3 audio objects, got %d", got)
	}
	if got := h.blobs.Len(); got != 4 {
		t.Fatalf("expected audio plus trace objects, got %d", got)
	}

	records, err := h.store.Transitions(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	last := records[len(records)-1]
	if last.Status != queue.StatusTranscriptionPending || last.Actor != "worker-capture-0" {
		t.Fatalf("unexpected final record %+v", last)
	}
	updated, _ := h.store.GetByID(context.Background(), meeting.ID)
	if updated.StartDate == nil || updated.EndDate == nil {
		t.Fatalf("expected start and end dates, got %+v", updated)
	}
}

func TestExecuteConnectFailureMarksBotFailed(t *testing.T) {
	h := newCaptureHarness(t)
	meeting := h.claim(t, "locked-room")

	err := h.stage(&fakeRecorder{connectErr: errors.New("waiting room")}).Execute(context.Background(), meeting)
	if !errors.Is(err, services.ErrDownstreamCall) {
		t.Fatalf("expected downstream error, got %v", err)
	}
	if got := h.status(t, meeting.ID); got != queue.StatusCaptureBotConnectionFailed {
		t.Fatalf("expected capture_bot_connection_failed, got %s", got)
	}
	if h.blobs.Len() != 0 {
		t.Fatalf("expected no uploads, got %d", h.blobs.Len())
	}
}

func TestExecuteFailsCaptureWhenTooManyUploadsFail(t *testing.T) {
	h := newCaptureHarness(t)
	meeting := h.claim(t, "flaky-network")
	base := time.Now()
	failing := blob.LayoutFromConfig(h.cfg.Blob).AudioKey(meeting.ID, base)
	h.blobs.FailPuts(func(key string) error {
		if key == failing {
			return errors.New("connection reset")
		}
		return nil
	})
	recording := newFakeRecording([]capture.Chunk{{Name: "a", Data: []byte("a"), At: base}}, false)

	err := h.stage(&fakeRecorder{recording: recording}).Execute(context.Background(), meeting)
	if !errors.Is(err, services.ErrUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if got := h.status(t, meeting.ID); got != queue.StatusCaptureFailed {
		t.Fatalf("expected capture_failed, got %s", got)
	}
}

func TestExecuteStopsWhenMeetingLeavesCapture(t *testing.T) {
	h := newCaptureHarness(t)
	meeting := h.claim(t, "ended-by-host")
	recording := newFakeRecording(chunksAt(time.Now(), 1), true)

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			current, err := h.store.GetByID(context.Background(), meeting.ID)
			if err == nil && current.Status == queue.StatusCaptureInProgress {
				_, _ = h.orch.CompleteCapture(context.Background(), meeting.ID, "api")
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- h.stage(&fakeRecorder{recording: recording}).Execute(context.Background(), meeting)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("capture did not stop after the meeting left capture_in_progress")
	}

	if got := h.status(t, meeting.ID); got != queue.StatusTranscriptionPending {
		t.Fatalf("expected transcription_pending, got %s", got)
	}
	if got := h.audioCount(t, meeting.ID); got != 1 {
		t.Fatalf("expected 1 audio object, got %d", got)
	}
	records, _ := h.store.Transitions(context.Background(), meeting.ID)
	if last := records[len(records)-1]; last.Actor != "api" {
		t.Fatalf("expected completion by api, got %+v", last)
	}
}

func TestExecuteSettlesCaptureWhenCancelled(t *testing.T) {
	h := newCaptureHarness(t)
	meeting := h.claim(t, "daemon-restart")
	recording := newFakeRecording(chunksAt(time.Now(), 2), true)

	ctx, cancel := context.WithCancel(stage.WithActor(context.Background(), "worker-capture-0"))
	go func() {
		prefix := blob.LayoutFromConfig(h.cfg.Blob).AudioPrefix(meeting.ID)
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if objects, err := h.blobs.List(context.Background(), prefix); err == nil && len(objects) == 2 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		done <- h.stage(&fakeRecorder{recording: recording}).Execute(ctx, meeting)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("capture did not settle after cancellation")
	}

	if got := h.status(t, meeting.ID); got != queue.StatusTranscriptionPending {
		t.Fatalf("expected transcription_pending, got %s", got)
	}
	if got := h.audioCount(t, meeting.ID); got != 2 {
		t.Fatalf("expected 2 audio objects, got %d", got)
	}
	records, err := h.store.Transitions(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if last := records[len(records)-1]; last.Event != queue.EventCompleteCapture || last.Actor != "worker-capture-0" {
		t.Fatalf("expected complete_capture by the worker, got %+v", last)
	}
}

func TestHealthCheckReflectsRecorder(t *testing.T) {
	h := newCaptureHarness(t)
	health := h.stage(&fakeRecorder{readyErr: errors.New("recorder missing")}).HealthCheck(context.Background())
	if health.Ready || !strings.Contains(health.Detail, "recorder missing") {
		t.Fatalf("unexpected health %+v", health)
	}
	if health := h.stage(&fakeRecorder{}).HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected ready, got %+v", health)
	}
}
