package notifications

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"meetingflow/internal/config"
	"meetingflow/internal/logging"
)

// Wakeup announces that a meeting entered a status some stage claims from.
type Wakeup struct {
	Stage     string `json:"stage"`
	MeetingID int64  `json:"meeting_id"`
	Status    string `json:"status"`
}

// Bus publishes and delivers wake-ups.
type Bus interface {
	Publish(ctx context.Context, wakeup Wakeup) error
	// Subscribe delivers wake-ups for stages until ctx ends, then closes the
	// returned channel. Slow subscribers miss wake-ups rather than block
	// publishers.
	Subscribe(ctx context.Context, stages ...string) (<-chan Wakeup, error)
	Close() error
}

// NewBus returns a Redis bus when an address is configured and an
// in-process bus otherwise.
func NewBus(ctx context.Context, cfg config.Notifications, logger *slog.Logger) (Bus, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return NewLocalBus(), nil
	}
	return NewRedisBus(ctx, cfg, logger)
}

const subscriberBuffer = 16

// LocalBus fans wake-ups out to subscribers in the same process.
type LocalBus struct {
	mu     sync.Mutex
	subs   map[chan Wakeup]map[string]struct{}
	closed bool
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[chan Wakeup]map[string]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, wakeup Wakeup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, stages := range b.subs {
		if _, ok := stages[wakeup.Stage]; !ok {
			continue
		}
		select {
		case ch <- wakeup:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, stages ...string) (<-chan Wakeup, error) {
	ch := make(chan Wakeup, subscriberBuffer)
	set := make(map[string]struct{}, len(stages))
	for _, stage := range stages {
		set[stage] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = set
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()
	return ch, nil
}

// Close ends every subscription.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}

// NoopBus drops every wake-up. Lanes then rely on polling alone.
type NoopBus struct{}

func (NoopBus) Publish(context.Context, Wakeup) error { return nil }

func (NoopBus) Subscribe(ctx context.Context, _ ...string) (<-chan Wakeup, error) {
	ch := make(chan Wakeup)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (NoopBus) Close() error { return nil }

func logDropped(logger *slog.Logger, reason string, err error) {
	logging.WarnWithContext(logger, "wake-up dropped", "wakeup_dropped",
		logging.String("reason", reason),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check redis connectivity"),
		logging.String(logging.FieldImpact, "workers fall back to polling"),
	)
}
