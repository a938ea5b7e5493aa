// Package report generates the written report of a transcribed meeting.
package report

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"meetingflow/internal/blob"
	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/services/inference"
	"meetingflow/internal/stage"
	"meetingflow/internal/workflow"
)

// Generator is the remote report service.
type Generator interface {
	GenerateReport(ctx context.Context, req inference.ReportRequest) (inference.Report, error)
}

// Completer records the finished report on the meeting.
type Completer interface {
	CompleteReport(ctx context.Context, meetingID int64, actor workflow.Actor, filename string) (*queue.Meeting, error)
}

// Stage integrates report generation with the workflow manager. Meetings
// arrive claimed into report_in_progress.
type Stage struct {
	client   Generator
	blobs    blob.Store
	layout   blob.Layout
	flow     Completer
	endpoint string
	logger   *slog.Logger
}

func NewStage(cfg *config.Config, client Generator, blobs blob.Store, flow Completer, logger *slog.Logger) *Stage {
	return &Stage{
		client:   client,
		blobs:    blobs,
		layout:   blob.LayoutFromConfig(cfg.Blob),
		flow:     flow,
		endpoint: strings.TrimSpace(cfg.Inference.ReportURL),
		logger:   logging.NewComponentLogger(logger, "report"),
	}
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.endpoint == "" {
		return stage.Unhealthy(queue.StageReport, "inference.report_url is not set")
	}
	return stage.Healthy(queue.StageReport)
}

// Execute reads the stored transcript and stores the generated report.
func (s *Stage) Execute(ctx context.Context, meeting *queue.Meeting) error {
	if meeting == nil {
		return services.Wrap(services.ErrValidation, queue.StageReport, "execute", "meeting is nil", nil)
	}
	logger := stage.Logger(ctx, s.logger)
	actor := workflow.Actor(stage.Actor(ctx, ""))
	start := time.Now()

	key := strings.TrimSpace(meeting.TranscriptionFilename)
	if key == "" {
		key = s.layout.TranscriptionKey(meeting.ID)
	}
	transcript, _, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return err
		}
		return services.Wrap(services.ErrDownstreamCall, queue.StageReport, "read transcript", key, err)
	}

	generated, err := s.client.GenerateReport(ctx, inference.ReportRequest{MeetingID: meeting.ID, Transcript: string(transcript)})
	if err != nil {
		return services.Wrap(services.ErrDownstreamCall, queue.StageReport, "generate", "report service failed", err)
	}

	reportKey := s.layout.ReportKey(meeting.ID)
	if _, err := s.blobs.Put(ctx, reportKey, blob.ContentTypeReport, []byte(generated.Markdown)); err != nil {
		return services.Wrap(services.ErrUploadFailed, queue.StageReport, "store report", reportKey, err)
	}
	if _, err := s.flow.CompleteReport(ctx, meeting.ID, actor, reportKey); err != nil {
		return err
	}
	logger.Info("report stored",
		logging.String(logging.FieldEventType, "report_stored"),
		logging.String("report_key", reportKey),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}
