package services

import "context"

type contextKey string

const (
	meetingIDKey contextKey = "meeting_id"
	stageKey     contextKey = "stage"
	laneKey      contextKey = "lane"
	requestIDKey contextKey = "request_id"
)

func withText(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func textFrom(ctx context.Context, key contextKey) (string, bool) {
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}

// WithMeetingID annotates ctx with the meeting being worked on.
func WithMeetingID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, meetingIDKey, id)
}

func MeetingIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(meetingIDKey).(int64)
	return id, ok
}

// WithStage annotates ctx with a stage name. Empty names leave ctx unchanged,
// as do the other string setters.
func WithStage(ctx context.Context, stage string) context.Context {
	return withText(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return textFrom(ctx, stageKey) }

// WithLane annotates ctx with a worker lane such as "capture-1".
func WithLane(ctx context.Context, lane string) context.Context {
	return withText(ctx, laneKey, lane)
}

func LaneFromContext(ctx context.Context) (string, bool) { return textFrom(ctx, laneKey) }

// WithRequestID annotates ctx with the id of the API request being served.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withText(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return textFrom(ctx, requestIDKey) }
