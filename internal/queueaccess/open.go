// Package queueaccess opens the configured queue.Repository backend.
package queueaccess

import (
	"context"
	"fmt"
	"strings"

	"meetingflow/internal/config"
	"meetingflow/internal/queue"
	"meetingflow/internal/queue/postgres"
	"meetingflow/internal/services"
)

// Session represents a repository handle and its cleanup function.
type Session struct {
	Repository queue.Repository
	Driver     string
	close      func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the store named by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Session, error) {
	if cfg == nil {
		return Session{}, services.Wrap(services.ErrConfiguration, "queue", "open", "config is nil", nil)
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch driver {
	case "", "sqlite":
		store, err := queue.Open(cfg)
		if err != nil {
			return Session{}, fmt.Errorf("open sqlite store: %w", err)
		}
		return Session{Repository: store, Driver: "sqlite", close: store.Close}, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg)
		if err != nil {
			return Session{}, fmt.Errorf("open postgres store: %w", err)
		}
		return Session{Repository: store, Driver: "postgres", close: store.Close}, nil
	default:
		return Session{}, services.Wrap(services.ErrConfiguration, "queue", "open",
			fmt.Sprintf("unsupported store driver %q", cfg.Store.Driver), nil)
	}
}
