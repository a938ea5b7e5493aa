package workflow

import (
	"context"

	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastMeeting *queue.Meeting
	QueueStats  map[queue.Status]int
	Health      queue.HealthSummary
	StageHealth map[string]stage.Health
	Workers     map[string]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastMeeting := m.lastMeeting
	lanes := append([]*laneState(nil), m.lanes...)
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(lanes))
	workers := make(map[string]int, len(lanes))
	for _, lane := range lanes {
		workers[lane.name] = lane.workers
		if lane.stage.handler == nil {
			continue
		}
		health[lane.name] = lane.stage.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		QueueStats:  stats,
		Health:      queue.Summarize(stats),
		StageHealth: health,
		Workers:     workers,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastMeeting != nil {
		copy := *lastMeeting
		summary.LastMeeting = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastMeeting(meeting *queue.Meeting) {
	m.mu.Lock()
	if meeting != nil {
		copy := *meeting
		m.lastMeeting = &copy
	} else {
		m.lastMeeting = nil
	}
	m.mu.Unlock()
}
