package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// Create inserts a new meeting in its initial status.
func (s *Store) Create(ctx context.Context, meeting *queue.Meeting) (*queue.Meeting, error) {
	if meeting == nil {
		return nil, services.Wrap(services.ErrValidation, "queue", "create meeting", "meeting is nil", nil)
	}
	if err := meeting.Validate(); err != nil {
		return nil, err
	}
	status := queue.InitialStatus(*meeting)
	if !queue.CanTransition(queue.StatusNone, status) {
		return nil, services.Wrap(services.ErrInvalidTransition, "queue", "create meeting",
			fmt.Sprintf("meetings cannot start in %s", status), nil)
	}

	bounded, cancel := s.boundedContext(ctx)
	defer cancel()
	timestamp := now()
	created, err := scanMeeting(s.pool.QueryRow(bounded,
		`INSERT INTO meetings (name, platform, url, platform_id, password, owner_id, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6::uuid, $7, $8, $8)
         RETURNING `+meetingColumns,
		meeting.Name,
		string(meeting.Platform),
		nullable(meeting.URL),
		nullable(meeting.PlatformID),
		nullable(meeting.Password),
		meeting.OwnerID.String(),
		string(status),
		timestamp,
	))
	if err != nil {
		return nil, classify(ctx, "insert meeting", err)
	}
	return created, nil
}

// GetByID fetches a meeting by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*queue.Meeting, error) {
	return getByID(ctx, ctx, s.pool, id)
}

func getByID(ctx, parent context.Context, q querier, id int64) (*queue.Meeting, error) {
	meeting, err := scanMeeting(q.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get meeting", fmt.Sprintf("meeting %d", id), nil)
	}
	if err != nil {
		return nil, classify(parent, "get meeting", err)
	}
	return meeting, nil
}

// List returns meetings ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statusStrings(statuses))
	}
	query += ` ORDER BY id`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, "list meetings", err)
	}
	meetings, err := collectMeetings(rows)
	if err != nil {
		return nil, classify(ctx, "list meetings", err)
	}
	return meetings, nil
}

// CountAhead counts meetings waiting in status with a lower id than beforeID.
func (s *Store) CountAhead(ctx context.Context, status queue.Status, beforeID int64) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM meetings WHERE status = $1 AND id < $2`, string(status), beforeID,
	).Scan(&count); err != nil {
		return 0, classify(ctx, "count ahead", err)
	}
	return count, nil
}

// Stats returns a count of meetings grouped by status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(1) FROM meetings GROUP BY status`)
	if err != nil {
		return nil, classify(ctx, "meeting stats", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, classify(ctx, "meeting stats", err)
		}
		stats[queue.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "meeting stats", err)
	}
	return stats, nil
}
