// Package transcription turns captured or imported audio into a transcript.
//
// The stage receives meetings already claimed into transcription_in_progress.
// It presigns every audio object of the meeting, hands the URLs to the remote
// transcription service and stores the returned text. Failures are returned
// to the workflow manager, which moves the meeting to transcription_failed.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"meetingflow/internal/blob"
	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/services/inference"
	"meetingflow/internal/stage"
	"meetingflow/internal/workflow"
)

// Transcriber is the remote transcription service.
type Transcriber interface {
	Transcribe(ctx context.Context, req inference.TranscriptionRequest) (inference.Transcript, error)
}

// Completer records the finished transcript on the meeting.
type Completer interface {
	CompleteTranscription(ctx context.Context, meetingID int64, actor workflow.Actor, filename string) (*queue.Meeting, error)
}

// Stage integrates transcription with the workflow manager.
type Stage struct {
	client     Transcriber
	blobs      blob.Store
	layout     blob.Layout
	flow       Completer
	presignTTL time.Duration
	endpoint   string
	logger     *slog.Logger
}

// NewStage constructs the transcription stage.
func NewStage(cfg *config.Config, client Transcriber, blobs blob.Store, flow Completer, logger *slog.Logger) *Stage {
	ttl := time.Duration(cfg.Blob.PresignTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Stage{
		client:     client,
		blobs:      blobs,
		layout:     blob.LayoutFromConfig(cfg.Blob),
		flow:       flow,
		presignTTL: ttl,
		endpoint:   strings.TrimSpace(cfg.Inference.TranscriptionURL),
		logger:     logging.NewComponentLogger(logger, "transcription"),
	}
}

// HealthCheck reports whether a transcription endpoint is configured.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.endpoint == "" {
		return stage.Unhealthy(queue.StageTranscription, "inference.transcription_url is not set")
	}
	return stage.Healthy(queue.StageTranscription)
}

// Execute transcribes the meeting's audio.
func (s *Stage) Execute(ctx context.Context, meeting *queue.Meeting) error {
	if meeting == nil {
		return services.Wrap(services.ErrValidation, queue.StageTranscription, "execute", "meeting is nil", nil)
	}
	logger := stage.Logger(ctx, s.logger)
	actor := workflow.Actor(stage.Actor(ctx, ""))
	start := time.Now()

	prefix := s.layout.AudioPrefix(meeting.ID)
	objects, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return services.Wrap(services.ErrDownstreamCall, queue.StageTranscription, "list audio", prefix, err)
	}
	if len(objects) == 0 {
		return services.Wrap(services.ErrNotFound, queue.StageTranscription, "list audio",
			fmt.Sprintf("no audio under %s", prefix), nil)
	}

	urls := make([]string, 0, len(objects))
	var audioBytes int64
	for _, object := range objects {
		url, err := s.blobs.Presign(ctx, object.Key, s.presignTTL)
		if err != nil {
			return services.Wrap(services.ErrDownstreamCall, queue.StageTranscription, "presign audio", object.Key, err)
		}
		urls = append(urls, url)
		audioBytes += object.Size
	}
	logger.Info("transcription requested",
		logging.String(logging.FieldEventType, "transcription_request"),
		logging.Int("audio_chunks", len(urls)),
		logging.String("audio_size", humanize.Bytes(uint64(audioBytes))),
	)

	transcript, err := s.client.Transcribe(ctx, inference.TranscriptionRequest{MeetingID: meeting.ID, AudioURLs: urls})
	if err != nil {
		return services.Wrap(services.ErrDownstreamCall, queue.StageTranscription, "transcribe", "transcription service failed", err)
	}

	key := s.layout.TranscriptionKey(meeting.ID)
	if _, err := s.blobs.Put(ctx, key, blob.ContentTypeTranscript, []byte(transcript.Text)); err != nil {
		return services.Wrap(services.ErrUploadFailed, queue.StageTranscription, "store transcript", key, err)
	}
	if _, err := s.flow.CompleteTranscription(ctx, meeting.ID, actor, key); err != nil {
		return err
	}

	logger.Info("transcription stored",
		logging.String(logging.FieldEventType, "transcription_stored"),
		logging.String("transcription_key", key),
		logging.String("language", transcript.Language),
		logging.Int("transcript_words", len(strings.Fields(transcript.Text))),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}
