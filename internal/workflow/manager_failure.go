package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// handleStageFailure logs the stage error and, if the handler left the
// meeting in progress, moves it to the matching failure status.
func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, lane *laneState, actor Actor, meeting *queue.Meeting, stageErr error) {
	current, err := m.store.GetByID(ctx, meeting.ID)
	if err != nil {
		logger.Error("meeting reload after stage failure failed", logging.Error(err))
		current = meeting
	}
	resolved := current.Status
	if current.Status.IsInProgress() {
		updated, moved, failErr := m.orchestrator.FailInProgress(ctx, current, actor)
		switch {
		case moved:
			resolved = updated.Status
			current = updated
		case failErr != nil:
			logging.ErrorWithContext(logger, "failed to persist stage failure", "stage_failure_persist_failed",
				logging.Error(failErr),
				logging.String(logging.FieldErrorHint, "meeting stays in progress until stale claim detection flags it"),
			)
		}
	}

	details := services.Details(stageErr)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", classifyStageFailure(lane.name, stageErr)),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorOperation, details.Operation),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)
	m.setLastMeeting(current)
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(services.Details(stageErr).Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	return message
}
