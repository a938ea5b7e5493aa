package workflow

import (
	"context"
	"io"
	"log/slog"

	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldComponent, "workflow-"+lane.name+"-runner"),
		logging.String(logging.FieldLane, lane.name),
	)
}

// stageLogger returns the logger handed to the stage handler. When a log
// directory is configured, stage output goes to the meeting's own file.
func (m *Manager) stageLogger(ctx context.Context, laneLogger *slog.Logger, meeting *queue.Meeting) (*slog.Logger, func()) {
	base := laneLogger
	closer := io.Closer(nil)
	if m.meetingLogs.Path(meeting) != "" {
		meetingLogger, file, err := m.meetingLogs.Open(meeting)
		if err != nil {
			laneLogger.Warn("meeting log unavailable", logging.Error(err))
		} else {
			base = meetingLogger
			closer = file
		}
	}
	logger := logging.WithContext(ctx, base)
	return logger, func() {
		if closer != nil {
			closer.Close()
		}
	}
}

func withStageContext(ctx context.Context, lane *laneState, meeting *queue.Meeting, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meeting != nil {
		ctx = services.WithMeetingID(ctx, meeting.ID)
	}
	if lane != nil {
		ctx = services.WithStage(ctx, lane.stage.name)
		ctx = services.WithLane(ctx, lane.name)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
