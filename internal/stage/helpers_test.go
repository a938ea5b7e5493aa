package stage_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"meetingflow/internal/services"
	"meetingflow/internal/stage"
)

func TestLoggerPrefersAttachedLogger(t *testing.T) {
	var attached bytes.Buffer
	var fallback bytes.Buffer
	ctx := stage.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&attached, nil)))

	stage.Logger(ctx, slog.New(slog.NewTextHandler(&fallback, nil))).Info("hello")

	if !strings.Contains(attached.String(), "hello") {
		t.Fatalf("expected attached logger to receive output, got %q", attached.String())
	}
	if fallback.Len() != 0 {
		t.Fatalf("fallback logger should stay silent, got %q", fallback.String())
	}
}

func TestLoggerFallbackCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := services.WithMeetingID(context.Background(), 42)
	ctx = services.WithStage(ctx, "report")

	stage.Logger(ctx, slog.New(slog.NewTextHandler(&buf, nil))).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "meeting_id=42") || !strings.Contains(out, "stage=report") {
		t.Fatalf("expected context fields in %q", out)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := stage.Healthy("capture"); !h.Ready || h.Name != "capture" {
		t.Fatalf("unexpected healthy record %+v", h)
	}
	if h := stage.Unhealthy("report", "no endpoint"); h.Ready || h.Detail != "no endpoint" {
		t.Fatalf("unexpected unhealthy record %+v", h)
	}
}

func TestActorFallsBackWhenUnset(t *testing.T) {
	if got := stage.Actor(context.Background(), "system"); got != "system" {
		t.Fatalf("expected fallback actor, got %q", got)
	}
	ctx := stage.WithActor(context.Background(), "worker-capture-0")
	if got := stage.Actor(ctx, "system"); got != "worker-capture-0" {
		t.Fatalf("expected attached actor, got %q", got)
	}
}
