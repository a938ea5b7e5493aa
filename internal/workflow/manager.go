package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/notifications"
	"meetingflow/internal/queue"
)

// Manager runs the stage lanes against the shared repository.
type Manager struct {
	cfg          *config.Config
	store        queue.Repository
	orchestrator *Orchestrator
	bus          notifications.Bus
	logger       *slog.Logger
	pollInterval time.Duration
	retryDelay   time.Duration

	heartbeat   *HeartbeatMonitor
	meetingLogs *MeetingLogger

	lanes []*laneState

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastMeeting *queue.Meeting
}

// NewManager constructs a workflow manager. bus may be nil, in which case
// lanes only poll.
func NewManager(cfg *config.Config, store queue.Repository, orchestrator *Orchestrator, bus notifications.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if orchestrator == nil {
		orchestrator = NewOrchestrator(store, WithLogger(logger), WithBus(bus))
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		bus:          bus,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			orchestrator,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		meetingLogs: NewMeetingLogger(cfg),
	}
}

// Orchestrator returns the orchestrator the lanes transition meetings with.
func (m *Manager) Orchestrator() *Orchestrator { return m.orchestrator }

// Heartbeat returns the manager's heartbeat monitor.
func (m *Manager) Heartbeat() *HeartbeatMonitor { return m.heartbeat }
