package workflow

import (
	"meetingflow/internal/queue"
	"meetingflow/internal/stage"
)

// ConfigureStages registers the stage handlers and sizes each lane from
// workflow.<stage>_workers.
func (m *Manager) ConfigureStages(set StageSet) {
	lanes := make([]*laneState, 0, 3)
	add := func(name string, handler stage.Handler, eligible queue.Status, workers int) {
		if handler == nil {
			return
		}
		claimed, ok := queue.ClaimTarget(eligible)
		if !ok {
			return
		}
		if workers <= 0 {
			workers = 1
		}
		lanes = append(lanes, &laneState{
			name:    name,
			workers: workers,
			stage: pipelineStage{
				name:     name,
				handler:  handler,
				eligible: eligible,
				claimed:  claimed,
			},
		})
	}
	add(queue.StageCapture, set.Capture, queue.StatusCapturePending, m.cfg.Workflow.CaptureWorkers)
	add(queue.StageTranscription, set.Transcription, queue.StatusTranscriptionPending, m.cfg.Workflow.TranscriptionWorkers)
	add(queue.StageReport, set.Report, queue.StatusReportPending, m.cfg.Workflow.ReportWorkers)

	m.mu.Lock()
	m.lanes = lanes
	m.mu.Unlock()
}
