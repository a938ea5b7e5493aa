package stage

import (
	"context"

	"meetingflow/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
//
// Execute receives a meeting the lane has already claimed. The handler drives
// the remaining transitions of its stage through the orchestrator; an error
// returned while the meeting is still in progress moves it to the stage's
// failure status.
type Handler interface {
	Execute(context.Context, *queue.Meeting) error
	HealthCheck(context.Context) Health
}
