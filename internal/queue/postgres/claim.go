package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// Claim locks the oldest meeting in eligible that no other transaction holds,
// moves it to the claim target and appends the record before committing.
// Rows locked by concurrent claimers are skipped, so an empty result means
// nothing was free to take.
func (s *Store) Claim(ctx context.Context, eligible queue.Status, actor string) (*queue.Meeting, error) {
	edge, ok := queue.ClaimEdge(eligible)
	if !ok {
		return nil, services.Wrap(services.ErrInvalidTransition, "queue", "claim",
			fmt.Sprintf("%s is not a claimable status", eligible), nil)
	}
	bounded, cancel := s.boundedContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(bounded)
	if err != nil {
		return nil, classify(ctx, "claim", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var id int64
	err = tx.QueryRow(bounded,
		`SELECT id FROM meetings WHERE status = $1 ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED`,
		string(eligible),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, "claim select", err)
	}

	at := now()
	meeting, err := scanMeeting(tx.QueryRow(bounded,
		`UPDATE meetings SET status = $1, last_heartbeat = $2, updated_at = $2
         WHERE id = $3 RETURNING `+meetingColumns,
		string(edge.To), at, id,
	))
	if err != nil {
		return nil, classify(ctx, "claim update", err)
	}
	if _, err := appendRecord(bounded, tx, id, edge.To, edge.Event, actor, at, nil); err != nil {
		return nil, classify(ctx, "claim record", err)
	}
	if err := tx.Commit(bounded); err != nil {
		return nil, classify(ctx, "claim commit", err)
	}
	return meeting, nil
}

func appendRecord(ctx context.Context, q querier, meetingID int64, status queue.Status, event queue.Event, actor string, at time.Time, predicted *time.Time) (queue.TransitionRecord, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = queue.DefaultActor
	}
	var predictedAt *time.Time
	if predicted != nil {
		p := predicted.UTC().Truncate(time.Microsecond)
		predictedAt = &p
	}
	return scanRecord(q.QueryRow(ctx,
		`INSERT INTO transition_records (meeting_id, status, event, actor, created_at, predicted_next_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+recordColumns,
		meetingID, string(status), string(event), actor, at, predictedAt,
	))
}
