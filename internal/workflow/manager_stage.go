package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/stage"
)

func (m *Manager) processMeeting(ctx context.Context, lane *laneState, laneLogger *slog.Logger, actor Actor, meeting *queue.Meeting) error {
	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, lane, meeting, requestID)
	stageLogger, closeLog := m.stageLogger(stageCtx, laneLogger, meeting)
	defer closeLog()
	stageCtx = stage.WithLogger(stageCtx, stageLogger)
	stageCtx = stage.WithActor(stageCtx, actor.String())
	m.setLastMeeting(meeting)

	start := time.Now()
	laneLogger = logging.WithContext(stageCtx, laneLogger)
	laneLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldStatus, string(meeting.Status)),
		logging.String("meeting_name", meeting.Name),
		logging.String("actor", actor.String()),
	)

	execErr := m.executeWithHeartbeat(stageCtx, lane.stage.handler, meeting)
	// Resolve the outcome even when shutdown cancelled the stage.
	settleCtx := context.WithoutCancel(stageCtx)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
			laneLogger.Info("stage interrupted by shutdown",
				logging.String(logging.FieldEventType, "stage_interrupted"),
				logging.String(logging.FieldImpact, "meeting moves to its failure status and can be retried"),
			)
		}
		m.handleStageFailure(settleCtx, laneLogger, lane, actor, meeting, execErr)
		m.setLastError(execErr)
		return execErr
	}

	current, err := m.store.GetByID(settleCtx, meeting.ID)
	if err != nil {
		laneLogger.Warn("meeting reload after stage failed", logging.Error(err))
		current = meeting
	}
	current = m.autoAdvance(settleCtx, laneLogger, actor, current)
	m.setLastMeeting(current)
	laneLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(current.Status)),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

// autoAdvance queues the report once a transcription is done, when enabled.
func (m *Manager) autoAdvance(ctx context.Context, logger *slog.Logger, actor Actor, meeting *queue.Meeting) *queue.Meeting {
	if !m.cfg.Workflow.AutoStartReport || meeting.Status != queue.StatusTranscriptionDone {
		return meeting
	}
	updated, err := m.orchestrator.StartReport(ctx, meeting.ID, actor)
	if err != nil {
		logging.WarnWithContext(logger, "report not started after transcription", "auto_start_report_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `meetingflow transition start_report` once the cause is fixed"),
			logging.String(logging.FieldImpact, "meeting waits in transcription_done"),
		)
		if updated != nil {
			return updated
		}
		return meeting
	}
	return updated
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, meeting *queue.Meeting) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, meeting.ID)

	execErr := handler.Execute(ctx, meeting)
	hbCancel()
	hbWG.Wait()
	return execErr
}
