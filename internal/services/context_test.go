package services_test

import (
	"context"
	"testing"

	"meetingflow/internal/services"
)

func TestContextCarriesWorkScope(t *testing.T) {
	ctx := services.WithMeetingID(context.Background(), 42)
	ctx = services.WithStage(ctx, "transcription")
	ctx = services.WithLane(ctx, "transcription-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.MeetingIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("meeting id = %d, %v", id, ok)
	}
	getters := map[string]func(context.Context) (string, bool){
		"transcription":   services.StageFromContext,
		"transcription-1": services.LaneFromContext,
		"req-123":         services.RequestIDFromContext,
	}
	for want, get := range getters {
		if got, ok := get(ctx); !ok || got != want {
			t.Fatalf("got %q (%v), want %q", got, ok, want)
		}
	}
}

func TestEmptyScopeValuesAreIgnored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "transcription")
	ctx = services.WithStage(ctx, "")
	if stage, _ := services.StageFromContext(ctx); stage != "transcription" {
		t.Fatalf("blank stage replaced %q", stage)
	}
	if _, ok := services.LaneFromContext(services.WithLane(context.Background(), "")); ok {
		t.Fatal("expected no lane")
	}
	if _, ok := services.MeetingIDFromContext(context.Background()); ok {
		t.Fatal("expected no meeting id")
	}
}
