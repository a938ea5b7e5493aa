package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"meetingflow/internal/services"
)

// InitialStatus returns the status a new meeting starts in. Imports skip
// capture and wait in import_pending.
func InitialStatus(meeting Meeting) Status {
	switch meeting.Status {
	case "", StatusNone:
		if meeting.Platform == PlatformMCRImport {
			return StatusImportPending
		}
		return StatusCapturePending
	default:
		return meeting.Status
	}
}

// Create inserts a new meeting in its initial status.
func (s *Store) Create(ctx context.Context, meeting *Meeting) (*Meeting, error) {
	ctx = ensureContext(ctx)
	if meeting == nil {
		return nil, services.Wrap(services.ErrValidation, "queue", "create meeting", "meeting is nil", nil)
	}
	if err := meeting.Validate(); err != nil {
		return nil, err
	}
	status := InitialStatus(*meeting)
	if !CanTransition(StatusNone, status) {
		return nil, services.Wrap(services.ErrInvalidTransition, "queue", "create meeting",
			fmt.Sprintf("meetings cannot start in %s", status), nil)
	}

	timestamp := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO meetings (
            name, platform, url, platform_id, password, owner_id, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meeting.Name,
		string(meeting.Platform),
		nullableString(meeting.URL),
		nullableString(meeting.PlatformID),
		nullableString(meeting.Password),
		meeting.OwnerID.String(),
		string(status),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, classify(ctx, "insert meeting", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a meeting by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Meeting, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	meeting, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get meeting", "meeting "+strconv.FormatInt(id, 10), nil)
	}
	if err != nil {
		return nil, classify(ctx, "get meeting", err)
	}
	return meeting, nil
}

// List returns meetings ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Meeting, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + meetingColumns + ` FROM meetings`
	args := statusArgs(statuses)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
	}
	query += ` ORDER BY id`
	return s.queryMeetings(ctx, "list meetings", query, args...)
}

func (s *Store) queryMeetings(ctx context.Context, operation, query string, args ...any) ([]*Meeting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, operation, err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", operation, err)
		}
		meetings = append(meetings, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, operation, err)
	}
	return meetings, nil
}

// CountAhead counts meetings waiting in status with a lower id than beforeID.
func (s *Store) CountAhead(ctx context.Context, status Status, beforeID int64) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM meetings WHERE status = ? AND id < ?`,
		string(status), beforeID,
	).Scan(&count)
	if err != nil {
		return 0, classify(ctx, "count ahead", err)
	}
	return count, nil
}

// Stats returns a count of meetings grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM meetings GROUP BY status`)
	if err != nil {
		return nil, classify(ctx, "meeting stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
