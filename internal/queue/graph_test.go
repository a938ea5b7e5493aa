package queue_test

import (
	"testing"

	"meetingflow/internal/queue"
)

func TestCanTransitionFollowsEdges(t *testing.T) {
	cases := []struct {
		from queue.Status
		to   queue.Status
		want bool
	}{
		{queue.StatusNone, queue.StatusCapturePending, true},
		{queue.StatusNone, queue.StatusImportPending, true},
		{queue.StatusCapturePending, queue.StatusCaptureBotIsConnecting, true},
		{queue.StatusCaptureBotIsConnecting, queue.StatusCaptureInProgress, true},
		{queue.StatusCaptureInProgress, queue.StatusTranscriptionPending, true},
		{queue.StatusImportPending, queue.StatusTranscriptionPending, true},
		{queue.StatusTranscriptionInProgress, queue.StatusTranscriptionDone, true},
		{queue.StatusTranscriptionDone, queue.StatusReportPending, true},
		{queue.StatusReportInProgress, queue.StatusReportDone, true},
		{queue.StatusReportFailed, queue.StatusReportPending, true},
		{queue.StatusCapturePending, queue.StatusTranscriptionPending, false},
		{queue.StatusCapturePending, queue.StatusCaptureInProgress, false},
		{queue.StatusReportDone, queue.StatusReportPending, false},
		{queue.StatusTranscriptionDone, queue.StatusTranscriptionFailed, false},
		{queue.StatusImportPending, queue.StatusCaptureBotIsConnecting, false},
	}
	for _, tc := range cases {
		if got := queue.CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEveryInProgressSourceHasReachableFailure(t *testing.T) {
	for _, edge := range queue.Edges() {
		leavesInProgress := false
		for _, from := range edge.From {
			if from.IsInProgress() {
				leavesInProgress = true
			}
		}
		if !leavesInProgress {
			continue
		}
		if edge.Failure == "" {
			t.Fatalf("event %s leaves an in-progress status without a failure target", edge.Event)
		}
		if !edge.Failure.IsFailed() {
			t.Fatalf("event %s failure target %s is not a failure status", edge.Event, edge.Failure)
		}
		for _, from := range edge.From {
			if !queue.CanTransition(from, edge.Failure) {
				t.Fatalf("event %s: no edge from %s to failure %s", edge.Event, from, edge.Failure)
			}
		}
	}
}

func TestEveryInProgressStatusHasFailure(t *testing.T) {
	for _, status := range queue.AllStatuses() {
		if !status.IsInProgress() {
			continue
		}
		failed, ok := queue.FailureFor(status)
		if !ok {
			t.Fatalf("no failure status for %s", status)
		}
		if !queue.CanTransition(status, failed) {
			t.Fatalf("failure %s not reachable from %s", failed, status)
		}
		if _, ok := queue.FailureEvent(failed); !ok {
			t.Fatalf("no failure event records %s", failed)
		}
	}
}

func TestClaimTargets(t *testing.T) {
	cases := map[queue.Status]queue.Status{
		queue.StatusCapturePending:       queue.StatusCaptureBotIsConnecting,
		queue.StatusTranscriptionPending: queue.StatusTranscriptionInProgress,
		queue.StatusReportPending:        queue.StatusReportInProgress,
	}
	for pending, want := range cases {
		got, ok := queue.ClaimTarget(pending)
		if !ok || got != want {
			t.Fatalf("ClaimTarget(%s) = %s, %v; want %s", pending, got, ok, want)
		}
	}
	for _, status := range []queue.Status{queue.StatusImportPending, queue.StatusCaptureInProgress, queue.StatusReportDone} {
		if _, ok := queue.ClaimTarget(status); ok {
			t.Fatalf("expected %s to be unclaimable", status)
		}
	}
	if got := len(queue.ClaimableStatuses()); got != 3 {
		t.Fatalf("expected 3 claimable statuses, got %d", got)
	}
}

func TestEveryFailureHasReentry(t *testing.T) {
	want := map[queue.Status]queue.Status{
		queue.StatusCaptureBotConnectionFailed: queue.StatusCapturePending,
		queue.StatusCaptureFailed:              queue.StatusTranscriptionPending,
		queue.StatusTranscriptionFailed:        queue.StatusTranscriptionPending,
		queue.StatusReportFailed:               queue.StatusReportPending,
	}
	for _, status := range queue.AllStatuses() {
		if !status.IsFailed() {
			continue
		}
		edge, ok := queue.ReentryFor(status)
		if !ok {
			t.Fatalf("no re-entry edge for %s", status)
		}
		if edge.To != want[status] {
			t.Fatalf("re-entry for %s goes to %s, want %s", status, edge.To, want[status])
		}
	}
	if _, ok := queue.ReentryFor(queue.StatusTranscriptionPending); ok {
		t.Fatal("pending status must not have a re-entry edge")
	}
}

func TestParseStatus(t *testing.T) {
	got, err := queue.ParseStatus("CAPTURE-IN-PROGRESS")
	if err != nil || got != queue.StatusCaptureInProgress {
		t.Fatalf("ParseStatus returned %q, %v", got, err)
	}
	if _, err := queue.ParseStatus("encoding"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusKinds(t *testing.T) {
	if !queue.StatusReportDone.IsTerminal() || !queue.StatusCaptureFailed.IsTerminal() {
		t.Fatal("expected report_done and failures to be terminal")
	}
	if queue.StatusTranscriptionDone.IsTerminal() {
		t.Fatal("transcription_done leads to report_pending and is not terminal")
	}
	if queue.StatusImportPending.IsClaimable() {
		t.Fatal("import_pending must not be claimable")
	}
	if queue.StatusCaptureBotIsConnecting.Stage() != queue.StageCapture {
		t.Fatalf("unexpected stage %q", queue.StatusCaptureBotIsConnecting.Stage())
	}
	if queue.Status("bogus").IsPending() {
		t.Fatal("unknown status must not be pending")
	}
}
