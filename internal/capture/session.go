package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"meetingflow/internal/blob"
	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/stage"
	"meetingflow/internal/upload"
	"meetingflow/internal/workflow"
)

// Transitioner is the part of the orchestrator the capture stage drives.
type Transitioner interface {
	StartCapture(ctx context.Context, meetingID int64, actor workflow.Actor) (*queue.Meeting, error)
	FailCaptureBot(ctx context.Context, meetingID int64, actor workflow.Actor) (*queue.Meeting, error)
	FailCapture(ctx context.Context, meetingID int64, actor workflow.Actor) (*queue.Meeting, error)
	CompleteCapture(ctx context.Context, meetingID int64, actor workflow.Actor) (*queue.Meeting, error)
}

// MeetingReader reloads a meeting to observe external status changes.
type MeetingReader interface {
	GetByID(ctx context.Context, id int64) (*queue.Meeting, error)
}

// Stage records claimed meetings.
type Stage struct {
	recorder  Recorder
	blobs     blob.Store
	layout    blob.Layout
	meetings  MeetingReader
	flow      Transitioner
	logger    *slog.Logger
	now       func() time.Time
	poll      time.Duration
	maxFailed float64
	uploads   upload.Options
}

// NewStage wires a capture stage.
func NewStage(cfg *config.Config, recorder Recorder, blobs blob.Store, meetings MeetingReader, flow Transitioner, logger *slog.Logger) *Stage {
	poll := time.Duration(cfg.Capture.StatusPollInterval) * time.Second
	if poll <= 0 {
		poll = time.Second
	}
	return &Stage{
		recorder:  recorder,
		blobs:     blobs,
		layout:    blob.LayoutFromConfig(cfg.Blob),
		meetings:  meetings,
		flow:      flow,
		logger:    logging.NewComponentLogger(logger, "capture"),
		now:       time.Now,
		poll:      poll,
		maxFailed: cfg.Capture.MaxFailedUploadRatio,
		uploads: upload.Options{
			MaxConcurrent: cfg.Upload.MaxConcurrent,
			Timeout:       time.Duration(cfg.Upload.Timeout) * time.Second,
		},
	}
}

// HealthCheck reports whether the recorder can run.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if err := s.recorder.Ready(); err != nil {
		return stage.Unhealthy(queue.StageCapture, err.Error())
	}
	return stage.Healthy(queue.StageCapture)
}

// Execute joins the meeting, uploads audio while the meeting is live and
// settles the capture. The meeting arrives in capture_bot_is_connecting.
// Once the recorder has joined, the capture always ends in complete_capture
// or fail_capture, including when ctx is cancelled: the recorder is stopped,
// audio already recorded is uploaded and the ratio check decides.
func (s *Stage) Execute(ctx context.Context, meeting *queue.Meeting) error {
	logger := stage.Logger(ctx, s.logger)
	actor := workflow.Actor(stage.Actor(ctx, ""))
	settleCtx := context.WithoutCancel(ctx)

	recording, err := s.recorder.Connect(ctx, meeting)
	if err != nil {
		logging.WarnWithContext(logger, "capture bot could not join", "capture_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the meeting link and recorder output, then retry the capture"),
			logging.String(logging.FieldImpact, "meeting was not recorded"),
		)
		if _, ferr := s.flow.FailCaptureBot(settleCtx, meeting.ID, actor); ferr != nil {
			return fmt.Errorf("record connection failure: %w", ferr)
		}
		return services.Wrap(services.ErrDownstreamCall, queue.StageCapture, "connect", "recorder did not join", err)
	}

	if _, err := s.flow.StartCapture(ctx, meeting.ID, actor); err != nil {
		_ = recording.Stop()
		drain(recording)
		return err
	}
	logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_start"),
		logging.String("platform", string(meeting.Platform)),
	)

	tracker := upload.NewTracker(settleCtx, logger, s.uploads)
	stoppedExternally := s.record(ctx, logger, meeting.ID, recording, tracker)

	s.uploadTrace(meeting.ID, recording, tracker)
	report := tracker.AwaitAllSettled(settleCtx)
	ratio := report.FailureRatio()

	logger.Info("capture uploads settled",
		logging.String(logging.FieldEventType, "capture_uploads_settled"),
		logging.Int("uploads_total", report.Total()),
		logging.Int("uploads_failed", len(report.Failed)),
		logging.Float64("failed_ratio", ratio),
		logging.String("uploaded", humanize.Bytes(uint64(uploadedBytes(report)))),
	)

	if stoppedExternally {
		logger.Info("capture stopped outside the worker",
			logging.String(logging.FieldEventType, "capture_stopped_externally"),
		)
		return nil
	}
	if ctx.Err() != nil {
		logger.Info("capture cut short by shutdown",
			logging.String(logging.FieldEventType, "capture_interrupted"),
			logging.String(logging.FieldImpact, "audio recorded so far is kept and the capture is settled now"),
		)
	}
	if ratio > s.maxFailed {
		if _, err := s.flow.FailCapture(settleCtx, meeting.ID, actor); err != nil {
			return err
		}
		return services.Wrap(services.ErrUploadFailed, queue.StageCapture, "upload",
			fmt.Sprintf("%d of %d uploads failed", len(report.Failed), report.Total()), report.Err())
	}
	if _, err := s.flow.CompleteCapture(settleCtx, meeting.ID, actor); err != nil {
		return err
	}
	return nil
}

// record submits every chunk for upload until the recording ends. It
// reports whether the meeting left capture_in_progress while recording.
func (s *Stage) record(ctx context.Context, logger *slog.Logger, meetingID int64, recording Recording, tracker *upload.Tracker) bool {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var last time.Time
	stopped := false
	external := false
	chunks := recording.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return external
			}
			at := chunk.At
			if at.IsZero() {
				at = s.now()
			}
			if !at.After(last) {
				at = last.Add(time.Millisecond)
			}
			last = at
			s.submitChunk(tracker, meetingID, chunk, at)
		case <-ticker.C:
			if stopped {
				continue
			}
			current, err := s.meetings.GetByID(ctx, meetingID)
			if err != nil {
				logger.Warn("capture status poll failed", logging.Error(err))
				continue
			}
			if current.Status != queue.StatusCaptureInProgress {
				logger.Info("meeting left capture, stopping recorder",
					logging.String(logging.FieldEventType, "capture_stop_requested"),
					logging.String(logging.FieldStatus, string(current.Status)),
				)
				external = true
				stopped = true
				_ = recording.Stop()
			}
		case <-ctx.Done():
			if !stopped {
				stopped = true
				_ = recording.Stop()
			}
			// Keep draining so chunks written before the stop are uploaded.
			ctx = context.WithoutCancel(ctx)
		}
	}
}

func (s *Stage) submitChunk(tracker *upload.Tracker, meetingID int64, chunk Chunk, at time.Time) {
	key := s.layout.AudioKey(meetingID, at)
	data := chunk.Data
	tracker.Submit(key, func(ctx context.Context) (blob.Descriptor, error) {
		return s.blobs.Put(ctx, key, blob.ContentTypeAudio, data)
	})
}

func (s *Stage) uploadTrace(meetingID int64, recording Recording, tracker *upload.Tracker) {
	trace, err := recording.Trace()
	if err != nil {
		s.logger.Warn("capture trace unavailable",
			logging.Int64(logging.FieldMeetingID, meetingID),
			logging.Error(err),
		)
		return
	}
	key := s.layout.TraceKey(meetingID, s.now())
	tracker.Submit(key, func(ctx context.Context) (blob.Descriptor, error) {
		return s.blobs.Put(ctx, key, blob.ContentTypeTrace, trace)
	})
}

func drain(recording Recording) {
	for range recording.Chunks() {
	}
}

func uploadedBytes(report upload.Report) int64 {
	var total int64
	for _, result := range report.Succeeded {
		total += result.Descriptor.Size
	}
	return total
}
