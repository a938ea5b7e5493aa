package workflow_test

import (
	"context"
	"sync"
	"testing"

	"meetingflow/internal/config"
	"meetingflow/internal/queue"
	"meetingflow/internal/stage"
	"meetingflow/internal/testsupport"
	"meetingflow/internal/workflow"
)

type recordingTrigger struct {
	mu    sync.Mutex
	fired []queue.Transition
	fail  map[queue.Event]error
}

func (r *recordingTrigger) Fire(_ context.Context, _ *queue.Meeting, tr queue.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, tr)
	return r.fail[tr.Event]
}

func (r *recordingTrigger) events() []queue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Event, 0, len(r.fired))
	for _, tr := range r.fired {
		out = append(out, tr.Event)
	}
	return out
}

type stubStage struct {
	name    string
	execute func(context.Context, *queue.Meeting) error
	health  stage.Health
}

func newStubStage(name string, execute func(context.Context, *queue.Meeting) error) *stubStage {
	return &stubStage{name: name, execute: execute, health: stage.Healthy(name)}
}

func (s *stubStage) Execute(ctx context.Context, meeting *queue.Meeting) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, meeting)
}

func (s *stubStage) HealthCheck(context.Context) stage.Health { return s.health }

func newHarness(t *testing.T, opts ...workflow.OrchestratorOption) (*config.Config, *queue.Store, *workflow.Orchestrator) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return cfg, store, workflow.NewOrchestrator(store, opts...)
}

func historyStatuses(t *testing.T, store queue.Repository, meetingID int64) []queue.Status {
	t.Helper()
	records, err := store.Transitions(context.Background(), meetingID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	out := make([]queue.Status, 0, len(records))
	for _, record := range records {
		out = append(out, record.Status)
	}
	return out
}
