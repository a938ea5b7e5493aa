package workflow

import (
	"context"
	"log/slog"
	"time"

	"meetingflow/internal/logging"
	"meetingflow/internal/notifications"
)

// subscribe opens the wake-up feed for lane. A nil channel blocks forever,
// leaving the slot on its poll interval.
func (m *Manager) subscribe(ctx context.Context, lane *laneState, logger *slog.Logger) <-chan notifications.Wakeup {
	if m.bus == nil {
		return nil
	}
	ch, err := m.bus.Subscribe(ctx, lane.name)
	if err != nil {
		logging.WarnWithContext(logger, "wake-up subscription unavailable", "wakeup_subscribe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.redis_addr"),
			logging.String(logging.FieldImpact, "lane falls back to polling"),
		)
		return nil
	}
	return ch
}

// waitForWork blocks until the poll interval elapses, a wake-up arrives or
// ctx ends. A closed wake-up channel degrades to polling.
func (m *Manager) waitForWork(ctx context.Context, wakeups <-chan notifications.Wakeup) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case _, ok := <-wakeups:
		if !ok {
			m.sleep(ctx, m.pollInterval)
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
