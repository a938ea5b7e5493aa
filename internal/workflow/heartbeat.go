package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
)

// HeartbeatActor is recorded when the monitor fails a stale claim.
const HeartbeatActor Actor = "heartbeat-monitor"

// HeartbeatMonitor keeps claims fresh while a stage runs and flags claims
// whose worker stopped heartbeating.
type HeartbeatMonitor struct {
	store             queue.Repository
	orchestrator      *Orchestrator
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store queue.Repository, orchestrator *Orchestrator, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:             store,
		orchestrator:      orchestrator,
		logger:            logging.NewComponentLogger(logger, "workflow-heartbeat"),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		now:               time.Now,
	}
}

// DetectStale lists in-progress meetings whose heartbeat is older than the
// timeout and logs each one with alert=stale_claim. With fail set, each is
// moved to its failure status. Stale meetings are never put back to pending.
func (h *HeartbeatMonitor) DetectStale(ctx context.Context, fail bool) ([]*queue.Meeting, error) {
	if h.heartbeatTimeout <= 0 {
		return nil, nil
	}
	cutoff := h.now().Add(-h.heartbeatTimeout)
	stale, err := h.store.StaleClaims(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, meeting := range stale {
		attrs := []logging.Attr{
			logging.Int64(logging.FieldMeetingID, meeting.ID),
			logging.String(logging.FieldStatus, string(meeting.Status)),
			logging.Alert("stale_claim"),
			logging.String(logging.FieldErrorHint, "check the worker that claimed the meeting"),
		}
		if meeting.LastHeartbeat != nil {
			attrs = append(attrs, logging.Duration("heartbeat_age", h.now().Sub(*meeting.LastHeartbeat)))
		}
		if !fail || h.orchestrator == nil {
			logging.WarnWithContext(h.logger, "stale claim detected", "stale_claim",
				append(attrs, logging.String(logging.FieldImpact, "meeting stays in progress until retried or failed"))...)
			continue
		}
		updated, moved, err := h.orchestrator.FailInProgress(ctx, meeting, HeartbeatActor)
		if err != nil && !moved {
			logging.ErrorWithContext(h.logger, "stale claim could not be failed", "stale_claim_fail_failed",
				append(attrs, logging.Error(err))...)
			continue
		}
		if moved {
			logging.WarnWithContext(h.logger, "stale claim failed", "stale_claim",
				append(attrs,
					logging.String("to", string(updated.Status)),
					logging.String(logging.FieldImpact, "meeting needs a retry"),
				)...)
		}
	}
	return stale, nil
}

// Run checks for stale claims every heartbeat interval until ctx ends.
func (h *HeartbeatMonitor) Run(ctx context.Context, fail bool) {
	if h.heartbeatTimeout <= 0 || h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.DetectStale(ctx, fail); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Warn("stale claim scan failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "stale_scan_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}
	}
}

// StartLoop runs a heartbeat updater for a specific meeting until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, meetingID int64) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, meetingID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
