package inference_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"meetingflow/internal/services/inference"
)

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req inference.TranscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MeetingID != 7 || len(req.AudioURLs) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(inference.Transcript{Text: "bonjour", Language: "fr"})
	}))
	defer server.Close()

	client := inference.NewClient(inference.Config{TranscriptionURL: server.URL, APIKey: "key"},
		inference.WithRetry(3, 0, 0))
	transcript, err := client.Transcribe(context.Background(), inference.TranscriptionRequest{
		MeetingID: 7,
		AudioURLs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if transcript.Text != "bonjour" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("unexpected transcript %+v after %d calls", transcript, calls)
	}
}

func TestGenerateReportDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad transcript", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := inference.NewClient(inference.Config{ReportURL: server.URL}, inference.WithRetry(3, 0, 0))
	if _, err := client.GenerateReport(context.Background(), inference.ReportRequest{MeetingID: 1, Transcript: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestTranscribeRequiresAudio(t *testing.T) {
	client := inference.NewClient(inference.Config{TranscriptionURL: "http://127.0.0.1:1"})
	if _, err := client.Transcribe(context.Background(), inference.TranscriptionRequest{MeetingID: 1}); err == nil {
		t.Fatal("expected error without audio")
	}
}
