package main

import (
	"errors"
	"testing"

	"meetingflow/internal/services"
)

func TestTransitionAndRetry(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env.configPath, "meeting", "create", "--name", "locked", "--url", "https://webconf.example.org/locked")

	out := mustRunCLI(t, env.configPath, "transition", "1", "claim_capture", "--actor", "operator")
	requireContains(t, out, "Capture Bot Is Connecting")

	out = mustRunCLI(t, env.configPath, "transition", "1", "fail_capture_bot")
	requireContains(t, out, "Capture Bot Connection Failed")

	out = mustRunCLI(t, env.configPath, "retry")
	requireContains(t, out, "Meeting 1 reset to Capture Pending")

	out = mustRunCLI(t, env.configPath, "meeting", "history", "1")
	requireContains(t, out, "operator")
	requireContains(t, out, "retry_capture")
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env.configPath, "meeting", "create", "--name", "early", "--url", "https://webconf.example.org/early")

	_, _, err := runCLI(t, env.configPath, "transition", "1", "complete_report")
	if !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, _, err := runCLI(t, env.configPath, "transition", "1", "not_an_event"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestRetryWithNothingFailed(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env.configPath, "retry")
	requireContains(t, out, "No failed meetings to retry")
}

func TestClaimWithEmptyQueue(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env.configPath, "claim", "report")
	requireContains(t, out, "Nothing to claim for report")

	if _, _, err := runCLI(t, env.configPath, "claim", "encode"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestStaleWithNoClaims(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env.configPath, "stale")
	requireContains(t, out, "No stale claims")
}
