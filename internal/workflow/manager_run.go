package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// Start launches every configured worker slot and the stale claim monitor.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	lanes := make([]*laneState, 0, len(m.lanes))
	slots := 0
	for _, lane := range m.lanes {
		if lane == nil || lane.stage.handler == nil {
			continue
		}
		lanes = append(lanes, lane)
		slots += lane.workers
	}
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, lane := range lanes {
		lane.logger = m.laneLogger(lane)
	}
	m.wg.Add(slots + 1)
	m.mu.Unlock()

	for _, lane := range lanes {
		for slot := 1; slot <= lane.workers; slot++ {
			go m.runSlot(runCtx, lane, slot)
		}
	}
	go func() {
		defer m.wg.Done()
		m.heartbeat.Run(runCtx, m.cfg.Workflow.FailStaleClaims)
	}()

	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// runSlot is one worker: claim, process, then wait for more work.
func (m *Manager) runSlot(ctx context.Context, lane *laneState, slot int) {
	defer m.wg.Done()
	logger := lane.logger.With(logging.Int("slot", slot))
	actor := slotActor(lane, slot)
	wakeups := m.subscribe(ctx, lane, logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		meeting, err := m.store.Claim(ctx, lane.stage.eligible, actor.String())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if meeting == nil {
			m.waitForWork(ctx, wakeups)
			continue
		}

		if err := m.processMeeting(ctx, lane, logger, actor, meeting); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func slotActor(lane *laneState, slot int) Actor {
	return Actor(fmt.Sprintf("worker-%s-%d", lane.name, slot))
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	if services.Retryable(err) {
		logging.WarnWithContext(logger, "claim skipped; store unavailable", "claim_store_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "claim retried after error_retry_interval"),
		)
	} else {
		logging.ErrorWithContext(logger, "claim failed", "claim_failed",
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
		)
	}
	m.sleep(ctx, m.retryDelay)
}

// ClaimOnce claims one meeting eligible for lane and runs it synchronously.
// It reports false when nothing was claimable.
func (m *Manager) ClaimOnce(ctx context.Context, stageName string) (*queue.Meeting, bool, error) {
	m.mu.RLock()
	var lane *laneState
	for _, candidate := range m.lanes {
		if candidate.name == stageName {
			lane = candidate
			break
		}
	}
	m.mu.RUnlock()
	if lane == nil {
		return nil, false, services.Wrap(services.ErrConfiguration, "workflow", "claim once", "stage "+stageName+" not configured", nil)
	}
	if lane.logger == nil {
		lane.logger = m.laneLogger(lane)
	}
	actor := slotActor(lane, 0)
	meeting, err := m.store.Claim(ctx, lane.stage.eligible, actor.String())
	if err != nil || meeting == nil {
		return nil, false, err
	}
	err = m.processMeeting(ctx, lane, lane.logger, actor, meeting)
	current, getErr := m.store.GetByID(ctx, meeting.ID)
	if getErr != nil {
		return meeting, true, errors.Join(err, getErr)
	}
	return current, true, err
}
