package queue

import (
	"context"
	"time"
)

// Repository is the transactional store behind the pipeline. The SQLite Store
// and the Postgres store satisfy it identically.
//
// Every method that can fail because the database is busy, locked, or its
// pool is exhausted returns an error matching services.ErrStoreUnavailable.
type Repository interface {
	// Create inserts a meeting in its initial status (capture_pending or
	// import_pending). No transition record is written.
	Create(ctx context.Context, meeting *Meeting) (*Meeting, error)
	// GetByID returns services.ErrNotFound when the meeting does not exist.
	GetByID(ctx context.Context, id int64) (*Meeting, error)
	List(ctx context.Context, statuses ...Status) ([]*Meeting, error)

	// Claim takes the oldest meeting in eligible, moves it to the claim
	// target and appends the record, all in one transaction. It returns
	// nil, nil when nothing is claimable.
	Claim(ctx context.Context, eligible Status, actor string) (*Meeting, error)
	// Transition applies a guarded status change and appends its record.
	Transition(ctx context.Context, tr Transition) (*Meeting, *TransitionRecord, error)

	CurrentTransition(ctx context.Context, meetingID int64) (*TransitionRecord, error)
	Transitions(ctx context.Context, meetingID int64) ([]TransitionRecord, error)

	// CountAhead counts meetings in status with an id lower than beforeID.
	CountAhead(ctx context.Context, status Status, beforeID int64) (int, error)
	UpdateHeartbeat(ctx context.Context, id int64) error
	// StaleClaims lists in-progress meetings whose heartbeat is older than
	// cutoff. It never modifies them.
	StaleClaims(ctx context.Context, cutoff time.Time, statuses ...Status) ([]*Meeting, error)
	// Retry moves failed meetings along their re-entry edge. With no ids it
	// retries every failed meeting.
	Retry(ctx context.Context, actor string, ids ...int64) ([]*Meeting, error)

	Stats(ctx context.Context) (map[Status]int, error)
	Ping(ctx context.Context) error
	Close() error
}
