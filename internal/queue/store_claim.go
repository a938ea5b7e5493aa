package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"meetingflow/internal/services"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Claim takes the oldest meeting waiting in eligible. It reads a small batch
// of candidate ids and compare-and-swaps each in turn; zero rows affected
// means another claimer won that row, so the next candidate is tried. There is
// no retry loop: a busy database surfaces as ErrStoreUnavailable and the
// caller polls again on its next tick.
func (s *Store) Claim(ctx context.Context, eligible Status, actor string) (*Meeting, error) {
	edge, ok := ClaimEdge(eligible)
	if !ok {
		return nil, services.Wrap(services.ErrInvalidTransition, "queue", "claim",
			fmt.Sprintf("%s is not a claimable status", eligible), nil)
	}
	parent := ensureContext(ctx)
	ctx, cancel := s.boundedContext(parent)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(parent, "claim", err)
	}
	defer func() { _ = tx.Rollback() }()

	candidates, err := claimCandidates(ctx, tx, eligible, s.claimBatch)
	if err != nil {
		return nil, classify(parent, "claim candidates", err)
	}

	now := time.Now()
	for _, id := range candidates {
		res, err := tx.ExecContext(ctx,
			`UPDATE meetings SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(edge.To), formatTime(now), formatTime(now), id, string(eligible),
		)
		if err != nil {
			return nil, classify(parent, "claim update", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, classify(parent, "claim update", err)
		}
		if affected == 0 {
			continue
		}
		if _, err := appendRecord(ctx, tx, id, edge.To, edge.Event, actor, now, nil); err != nil {
			return nil, classify(parent, "claim record", err)
		}
		meeting, err := scanMeeting(tx.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id))
		if err != nil {
			return nil, classify(parent, "claim reload", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, classify(parent, "claim commit", err)
		}
		return meeting, nil
	}
	return nil, nil
}

func claimCandidates(ctx context.Context, tx *sql.Tx, eligible Status, limit int) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM meetings WHERE status = ? ORDER BY id LIMIT ?`,
		string(eligible), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func appendRecord(ctx context.Context, tx execer, meetingID int64, status Status, event Event, actor string, at time.Time, predicted *time.Time) (TransitionRecord, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = DefaultActor
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transition_records (meeting_id, status, event, actor, created_at, predicted_next_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		meetingID, string(status), string(event), actor, formatTime(at), nullableTime(predicted),
	)
	if err != nil {
		return TransitionRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TransitionRecord{}, err
	}
	record := TransitionRecord{
		ID:        id,
		MeetingID: meetingID,
		Status:    status,
		Event:     event,
		Actor:     actor,
		CreatedAt: at.UTC(),
	}
	if predicted != nil {
		p := predicted.UTC()
		record.PredictedNextAt = &p
	}
	return record, nil
}
