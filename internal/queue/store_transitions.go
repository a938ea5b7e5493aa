package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"meetingflow/internal/services"
)

// Transition applies a guarded status change: the update only matches while
// the meeting is still in tr.From, and the transition record is appended in
// the same transaction.
func (s *Store) Transition(ctx context.Context, tr Transition) (*Meeting, *TransitionRecord, error) {
	if err := tr.Validate(); err != nil {
		return nil, nil, err
	}
	parent := ensureContext(ctx)
	ctx, cancel := s.boundedContext(parent)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, classify(parent, "transition", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	query, args := buildTransitionUpdate(tr, now)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, nil, classify(parent, "transition update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, classify(parent, "transition update", err)
	}
	if affected == 0 {
		return nil, nil, s.explainMiss(ctx, parent, tx, tr)
	}

	record, err := appendRecord(ctx, tx, tr.MeetingID, tr.To, tr.Event, tr.Actor, now, tr.PredictedNextAt)
	if err != nil {
		return nil, nil, classify(parent, "transition record", err)
	}
	meeting, err := scanMeeting(tx.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, tr.MeetingID))
	if err != nil {
		return nil, nil, classify(parent, "transition reload", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, classify(parent, "transition commit", err)
	}
	return meeting, &record, nil
}

func buildTransitionUpdate(tr Transition, now time.Time) (string, []any) {
	sets := []string{"status = ?", "updated_at = ?", "last_heartbeat = ?"}
	var heartbeat any
	if tr.To.IsInProgress() {
		heartbeat = formatTime(now)
	}
	args := []any{string(tr.To), formatTime(now), heartbeat}
	if tr.Update.StartDate != nil {
		sets = append(sets, "start_date = ?")
		args = append(args, formatTime(*tr.Update.StartDate))
	}
	if tr.Update.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, formatTime(*tr.Update.EndDate))
	}
	if tr.Update.TranscriptionFilename != nil {
		sets = append(sets, "transcription_filename = ?")
		args = append(args, nullableString(*tr.Update.TranscriptionFilename))
	}
	if tr.Update.ReportFilename != nil {
		sets = append(sets, "report_filename = ?")
		args = append(args, nullableString(*tr.Update.ReportFilename))
	}
	args = append(args, tr.MeetingID, string(tr.From))
	return `UPDATE meetings SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`, args
}

// explainMiss distinguishes a missing meeting from one that moved on.
func (s *Store) explainMiss(ctx, parent context.Context, tx *sql.Tx, tr Transition) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM meetings WHERE id = ?`, tr.MeetingID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "queue", "transition", fmt.Sprintf("meeting %d", tr.MeetingID), nil)
	}
	if err != nil {
		return classify(parent, "transition lookup", err)
	}
	return services.Wrap(services.ErrInvalidTransition, "queue", "transition",
		fmt.Sprintf("meeting %d is %s, %s expects %s", tr.MeetingID, current, tr.Event, tr.From), nil)
}

// CurrentTransition returns the newest record whose status matches the
// meeting's live status. A meeting with no records at all yields
// ErrNotFound; records that all disagree with the live status yield
// ErrInconsistent.
func (s *Store) CurrentTransition(ctx context.Context, meetingID int64) (*TransitionRecord, error) {
	ctx = ensureContext(ctx)
	meeting, err := s.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM transition_records WHERE meeting_id = ? AND status = ? ORDER BY id DESC LIMIT 1`,
		meetingID, string(meeting.Status),
	)
	record, err := scanRecord(row)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(ctx, "current transition", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transition_records WHERE meeting_id = ?`, meetingID,
	).Scan(&total); err != nil {
		return nil, classify(ctx, "current transition", err)
	}
	if total == 0 {
		return nil, services.Wrap(services.ErrNotFound, "queue", "current transition",
			fmt.Sprintf("meeting %d has not transitioned yet", meetingID), nil)
	}
	return nil, services.Wrap(services.ErrInconsistent, "queue", "current transition",
		fmt.Sprintf("meeting %d is %s but no record matches", meetingID, meeting.Status), nil)
}

// Transitions returns the full history of a meeting in id order.
func (s *Store) Transitions(ctx context.Context, meetingID int64) ([]TransitionRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM transition_records WHERE meeting_id = ? ORDER BY id`, meetingID,
	)
	if err != nil {
		return nil, classify(ctx, "list transitions", err)
	}
	defer rows.Close()

	var records []TransitionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "list transitions", err)
	}
	return records, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight
// meeting. Meetings that already left their in-progress status are skipped.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())
	inProgress := inProgressOrAll(nil)
	args := append([]any{now, now, id}, statusArgs(inProgress)...)
	if _, err := s.execWithRetry(ctx,
		`UPDATE meetings SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status IN (`+makePlaceholders(len(inProgress))+`)`,
		args...,
	); err != nil {
		return classify(ctx, "update heartbeat", err)
	}
	return nil
}

// StaleClaims lists in-progress meetings whose heartbeat is older than cutoff.
// With no statuses every in-progress status is checked.
func (s *Store) StaleClaims(ctx context.Context, cutoff time.Time, statuses ...Status) ([]*Meeting, error) {
	ctx = ensureContext(ctx)
	statuses = inProgressOrAll(statuses)
	args := statusArgs(statuses)
	args = append(args, formatTime(cutoff))
	query := `SELECT ` + meetingColumns + ` FROM meetings
        WHERE status IN (` + makePlaceholders(len(statuses)) + `)
          AND COALESCE(last_heartbeat, updated_at) < ?
        ORDER BY id`
	return s.queryMeetings(ctx, "stale claims", query, args...)
}

func inProgressOrAll(statuses []Status) []Status {
	filtered := make([]Status, 0, len(statuses))
	for _, status := range statuses {
		if status.IsInProgress() {
			filtered = append(filtered, status)
		}
	}
	if len(filtered) > 0 {
		return filtered
	}
	for _, status := range allStatuses {
		if status.IsInProgress() {
			filtered = append(filtered, status)
		}
	}
	return filtered
}

// FailedStatuses lists every failure status.
func FailedStatuses() []Status {
	out := make([]Status, 0, 4)
	for _, status := range allStatuses {
		if status.IsFailed() {
			out = append(out, status)
		}
	}
	return out
}

// Retry moves failed meetings along their re-entry edge and records each move.
// Meetings that are not failed are skipped.
func (s *Store) Retry(ctx context.Context, actor string, ids ...int64) ([]*Meeting, error) {
	parent := ensureContext(ctx)
	ctx, cancel := s.boundedContext(parent)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(parent, "retry", err)
	}
	defer func() { _ = tx.Rollback() }()

	failed := FailedStatuses()
	query := `SELECT id, status FROM meetings WHERE status IN (` + makePlaceholders(len(failed)) + `)`
	args := statusArgs(failed)
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	type candidate struct {
		id     int64
		status Status
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(parent, "retry candidates", err)
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var status string
		if err := rows.Scan(&c.id, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan retry candidate: %w", err)
		}
		c.status = Status(status)
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(parent, "retry candidates", err)
	}

	now := time.Now()
	retried := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		edge, ok := ReentryFor(c.status)
		if !ok {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE meetings SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ? AND status = ?`,
			string(edge.To), formatTime(now), c.id, string(c.status),
		)
		if err != nil {
			return nil, classify(parent, "retry update", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			continue
		}
		if _, err := appendRecord(ctx, tx, c.id, edge.To, edge.Event, actor, now, nil); err != nil {
			return nil, classify(parent, "retry record", err)
		}
		retried = append(retried, c.id)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(parent, "retry commit", err)
	}

	meetings := make([]*Meeting, 0, len(retried))
	for _, id := range retried {
		meeting, err := s.GetByID(parent, id)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, nil
}
