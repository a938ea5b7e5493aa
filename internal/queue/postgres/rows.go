package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"meetingflow/internal/queue"
)

const meetingColumns = "id, name, platform, url, platform_id, password, owner_id::text, status, created_at, updated_at, start_date, end_date, transcription_filename, report_filename, last_heartbeat"

const recordColumns = "id, meeting_id, status, event, actor, created_at, predicted_next_at"

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanMeeting(row pgx.Row) (*queue.Meeting, error) {
	var (
		meeting               queue.Meeting
		platform              string
		meetingURL            *string
		platformID            *string
		password              *string
		ownerRaw              string
		status                string
		transcriptionFilename *string
		reportFilename        *string
	)
	if err := row.Scan(
		&meeting.ID,
		&meeting.Name,
		&platform,
		&meetingURL,
		&platformID,
		&password,
		&ownerRaw,
		&status,
		&meeting.CreatedAt,
		&meeting.UpdatedAt,
		&meeting.StartDate,
		&meeting.EndDate,
		&transcriptionFilename,
		&reportFilename,
		&meeting.LastHeartbeat,
	); err != nil {
		return nil, err
	}
	meeting.Platform = queue.Platform(platform)
	meeting.Status = queue.Status(status)
	meeting.URL = deref(meetingURL)
	meeting.PlatformID = deref(platformID)
	meeting.Password = deref(password)
	meeting.TranscriptionFilename = deref(transcriptionFilename)
	meeting.ReportFilename = deref(reportFilename)
	if owner, err := uuid.Parse(ownerRaw); err == nil {
		meeting.OwnerID = owner
	}
	meeting.CreatedAt = meeting.CreatedAt.UTC()
	meeting.UpdatedAt = meeting.UpdatedAt.UTC()
	return &meeting, nil
}

func scanRecord(row pgx.Row) (queue.TransitionRecord, error) {
	var (
		record queue.TransitionRecord
		status string
		event  string
	)
	if err := row.Scan(
		&record.ID,
		&record.MeetingID,
		&status,
		&event,
		&record.Actor,
		&record.CreatedAt,
		&record.PredictedNextAt,
	); err != nil {
		return queue.TransitionRecord{}, err
	}
	record.Status = queue.Status(status)
	record.Event = queue.Event(event)
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func collectMeetings(rows pgx.Rows) ([]*queue.Meeting, error) {
	defer rows.Close()
	var meetings []*queue.Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func statusStrings(statuses []queue.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

// now truncates to the microsecond precision TIMESTAMPTZ stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
