package logging

import (
	"context"
	"log/slog"

	"meetingflow/internal/services"
)

const (
	// FieldComponent names the subsystem that logged.
	FieldComponent = "component"
		FieldMeetingID = "meeting_id"
		FieldStage = "stage"
	// FieldLane names the worker lane: capture, transcription or report.
	FieldLane = "lane"
	// FieldStatus carries a meeting status.
	FieldStatus = "status"
	// FieldCorrelationID carries the API request id.
	FieldCorrelationID = "correlation_id"
	// FieldAlert marks lines an operator should notice.
	FieldAlert = "alert"
)

func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.MeetingIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldMeetingID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if lane, ok := services.LaneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext adds the meeting, stage, lane and request id carried by ctx to
// logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
