package workflow

import (
	"log/slog"

	"meetingflow/internal/queue"
	"meetingflow/internal/stage"
)

// StageSet bundles the stage handlers the manager runs. A nil handler leaves
// its lane idle.
type StageSet struct {
	Capture       stage.Handler
	Transcription stage.Handler
	Report        stage.Handler
}

type pipelineStage struct {
	name     string
	handler  stage.Handler
	eligible queue.Status
	claimed  queue.Status
}

type laneState struct {
	name    string
	stage   pipelineStage
	workers int
	logger  *slog.Logger
}
