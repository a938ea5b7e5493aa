package queue

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const meetingColumns = "id, name, platform, url, platform_id, password, owner_id, status, created_at, updated_at, start_date, end_date, transcription_filename, report_filename, last_heartbeat"

const recordColumns = "id, meeting_id, status, event, actor, created_at, predicted_next_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(scanner rowScanner) (*Meeting, error) {
	var (
		id                    int64
		name                  string
		platform              string
		meetingURL            sql.NullString
		platformID            sql.NullString
		password              sql.NullString
		ownerRaw              string
		statusStr             string
		createdRaw            string
		updatedRaw            string
		startRaw              sql.NullString
		endRaw                sql.NullString
		transcriptionFilename sql.NullString
		reportFilename        sql.NullString
		heartbeatRaw          sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&name,
		&platform,
		&meetingURL,
		&platformID,
		&password,
		&ownerRaw,
		&statusStr,
		&createdRaw,
		&updatedRaw,
		&startRaw,
		&endRaw,
		&transcriptionFilename,
		&reportFilename,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	meeting := &Meeting{
		ID:                    id,
		Name:                  name,
		Platform:              Platform(platform),
		URL:                   meetingURL.String,
		PlatformID:            platformID.String,
		Password:              password.String,
		Status:                Status(statusStr),
		TranscriptionFilename: transcriptionFilename.String,
		ReportFilename:        reportFilename.String,
		StartDate:             parseNullableTime(startRaw),
		EndDate:               parseNullableTime(endRaw),
		LastHeartbeat:         parseNullableTime(heartbeatRaw),
	}
	if owner, err := uuid.Parse(ownerRaw); err == nil {
		meeting.OwnerID = owner
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		meeting.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		meeting.UpdatedAt = updated
	}
	return meeting, nil
}

func scanRecord(scanner rowScanner) (TransitionRecord, error) {
	var (
		record       TransitionRecord
		statusStr    string
		eventStr     string
		createdRaw   string
		predictedRaw sql.NullString
	)
	if err := scanner.Scan(
		&record.ID,
		&record.MeetingID,
		&statusStr,
		&eventStr,
		&record.Actor,
		&createdRaw,
		&predictedRaw,
	); err != nil {
		return TransitionRecord{}, err
	}
	record.Status = Status(statusStr)
	record.Event = Event(eventStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	record.PredictedNextAt = parseNullableTime(predictedRaw)
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timeLayout keeps a fixed fraction width so stored timestamps sort
// lexically in SQL comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}
