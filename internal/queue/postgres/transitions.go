package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// Transition applies a guarded status change: the update only matches while
// the meeting is still in tr.From, and the record is appended in the same
// transaction.
func (s *Store) Transition(ctx context.Context, tr queue.Transition) (*queue.Meeting, *queue.TransitionRecord, error) {
	if err := tr.Validate(); err != nil {
		return nil, nil, err
	}
	bounded, cancel := s.boundedContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(bounded)
	if err != nil {
		return nil, nil, classify(ctx, "transition", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	at := now()
	query, args := buildTransitionUpdate(tr, at)
	meeting, err := scanMeeting(tx.QueryRow(bounded, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, explainMiss(bounded, ctx, tx, tr)
	}
	if err != nil {
		return nil, nil, classify(ctx, "transition update", err)
	}

	record, err := appendRecord(bounded, tx, tr.MeetingID, tr.To, tr.Event, tr.Actor, at, tr.PredictedNextAt)
	if err != nil {
		return nil, nil, classify(ctx, "transition record", err)
	}
	if err := tx.Commit(bounded); err != nil {
		return nil, nil, classify(ctx, "transition commit", err)
	}
	return meeting, &record, nil
}

func buildTransitionUpdate(tr queue.Transition, at time.Time) (string, []any) {
	var heartbeat *time.Time
	if tr.To.IsInProgress() {
		heartbeat = &at
	}
	sets := []string{"status = $1", "updated_at = $2", "last_heartbeat = $3"}
	args := []any{string(tr.To), at, heartbeat}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if tr.Update.StartDate != nil {
		add("start_date", tr.Update.StartDate.UTC())
	}
	if tr.Update.EndDate != nil {
		add("end_date", tr.Update.EndDate.UTC())
	}
	if tr.Update.TranscriptionFilename != nil {
		add("transcription_filename", nullable(*tr.Update.TranscriptionFilename))
	}
	if tr.Update.ReportFilename != nil {
		add("report_filename", nullable(*tr.Update.ReportFilename))
	}
	args = append(args, tr.MeetingID, string(tr.From))
	idParam := "$" + strconv.Itoa(len(args)-1)
	fromParam := "$" + strconv.Itoa(len(args))
	return `UPDATE meetings SET ` + strings.Join(sets, ", ") +
		` WHERE id = ` + idParam + ` AND status = ` + fromParam +
		` RETURNING ` + meetingColumns, args
}

// explainMiss distinguishes a missing meeting from one that moved on.
func explainMiss(ctx, parent context.Context, q querier, tr queue.Transition) error {
	var current string
	err := q.QueryRow(ctx, `SELECT status FROM meetings WHERE id = $1`, tr.MeetingID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "queue", "transition", fmt.Sprintf("meeting %d", tr.MeetingID), nil)
	}
	if err != nil {
		return classify(parent, "transition lookup", err)
	}
	return services.Wrap(services.ErrInvalidTransition, "queue", "transition",
		fmt.Sprintf("meeting %d is %s, %s expects %s", tr.MeetingID, current, tr.Event, tr.From), nil)
}

// CurrentTransition returns the newest record matching the meeting's live
// status. No records at all is ErrNotFound; records that all disagree with
// the live status is ErrInconsistent.
func (s *Store) CurrentTransition(ctx context.Context, meetingID int64) (*queue.TransitionRecord, error) {
	meeting, err := s.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	record, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM transition_records
         WHERE meeting_id = $1 AND status = $2 ORDER BY id DESC LIMIT 1`,
		meetingID, string(meeting.Status),
	))
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify(ctx, "current transition", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM transition_records WHERE meeting_id = $1`, meetingID,
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
func (s *Store) Transitions(ctx context.Context, meetingID int64) ([]queue.TransitionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM transition_records WHERE meeting_id = $1 ORDER BY id`, meetingID,
	)
	if err != nil {
		return nil, classify(ctx, "list transitions", err)
	}
	defer rows.Close()

	var records []queue.TransitionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, classify(ctx, "list transitions", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "list transitions", err)
	}
	return records, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight meeting.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	at := now()
	var inProgress []queue.Status
	for _, status := range queue.AllStatuses() {
		if status.IsInProgress() {
			inProgress = append(inProgress, status)
		}
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE meetings SET last_heartbeat = $1, updated_at = $1 WHERE id = $2 AND status = ANY($3)`,
		at, id, statusStrings(inProgress),
	); err != nil {
		return classify(ctx, "update heartbeat", err)
	}
	return nil
}

// StaleClaims lists in-progress meetings whose heartbeat is older than cutoff.
func (s *Store) StaleClaims(ctx context.Context, cutoff time.Time, statuses ...queue.Status) ([]*queue.Meeting, error) {
	var watched []queue.Status
	for _, status := range statuses {
		if status.IsInProgress() {
			watched = append(watched, status)
		}
	}
	if len(watched) == 0 {
		for _, status := range queue.AllStatuses() {
			if status.IsInProgress() {
				watched = append(watched, status)
			}
		}
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingColumns+` FROM meetings
         WHERE status = ANY($1) AND COALESCE(last_heartbeat, updated_at) < $2
         ORDER BY id`,
		statusStrings(watched), cutoff.UTC(),
	)
	if err != nil {
		return nil, classify(ctx, "stale claims", err)
	}
	meetings, err := collectMeetings(rows)
	if err != nil {
		return nil, classify(ctx, "stale claims", err)
	}
	return meetings, nil
}

// Retry moves failed meetings along their re-entry edge and records each
// move. Meetings that are not failed are skipped.
func (s *Store) Retry(ctx context.Context, actor string, ids ...int64) ([]*queue.Meeting, error) {
	bounded, cancel := s.boundedContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(bounded)
	if err != nil {
		return nil, classify(ctx, "retry", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	query := `SELECT id, status FROM meetings WHERE status = ANY($1)`
	args := []any{statusStrings(queue.FailedStatuses())}
	if len(ids) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, ids)
	}
	query += ` ORDER BY id FOR UPDATE SKIP LOCKED`

	type candidate struct {
		id     int64
		status queue.Status
	}
	rows, err := tx.Query(bounded, query, args...)
	if err != nil {
		return nil, classify(ctx, "retry candidates", err)
	}
	var candidates []candidate
	for rows.Next() {
		var (
			c      candidate
			status string
		)
		if err := rows.Scan(&c.id, &status); err != nil {
			rows.Close()
			return nil, classify(ctx, "retry candidates", err)
		}
		c.status = queue.Status(status)
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "retry candidates", err)
	}

	at := now()
	meetings := make([]*queue.Meeting, 0, len(candidates))
	for _, c := range candidates {
		edge, ok := queue.ReentryFor(c.status)
		if !ok {
			continue
		}
		meeting, err := scanMeeting(tx.QueryRow(bounded,
			`UPDATE meetings SET status = $1, last_heartbeat = NULL, updated_at = $2
             WHERE id = $3 RETURNING `+meetingColumns,
			string(edge.To), at, c.id,
		))
		if err != nil {
			return nil, classify(ctx, "retry update", err)
		}
		if _, err := appendRecord(bounded, tx, c.id, edge.To, edge.Event, actor, at, nil); err != nil {
			return nil, classify(ctx, "retry record", err)
		}
		meetings = append(meetings, meeting)
	}
	if err := tx.Commit(bounded); err != nil {
		return nil, classify(ctx, "retry commit", err)
	}
	return meetings, nil
}
