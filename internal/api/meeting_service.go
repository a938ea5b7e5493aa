package api

import (
	"context"

	"meetingflow/internal/queue"
)

// MeetingReader is the read side of queue.Repository.
type MeetingReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Meeting, error)
	GetByID(ctx context.Context, id int64) (*queue.Meeting, error)
	Transitions(ctx context.Context, meetingID int64) ([]queue.TransitionRecord, error)
}

// MeetingService exposes read-only meeting queries returning API DTOs.
type MeetingService struct {
	store MeetingReader
}

// NewMeetingService constructs a MeetingService around the provided reader.
func NewMeetingService(store MeetingReader) *MeetingService {
	return &MeetingService{store: store}
}

// List returns meetings filtered by status.
func (s *MeetingService) List(ctx context.Context, statuses ...queue.Status) ([]Meeting, error) {
	meetings, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromMeetings(meetings), nil
}

// Describe returns a meeting with its history. A missing meeting is reported
// as services.ErrNotFound by the store.
func (s *MeetingService) Describe(ctx context.Context, id int64) (MeetingResponse, error) {
	meeting, err := s.store.GetByID(ctx, id)
	if err != nil {
		return MeetingResponse{}, err
	}
	records, err := s.store.Transitions(ctx, id)
	if err != nil {
		return MeetingResponse{}, err
	}
	return MeetingResponse{Meeting: FromMeeting(meeting), History: FromTransitions(records)}, nil
}
