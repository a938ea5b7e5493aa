package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"meetingflow/internal/logging"
	"meetingflow/internal/notifications"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// Actor identifies who asked for a transition. It is stored on every
// transition record.
type Actor string

// SystemActor is used when no caller identity is available.
const SystemActor Actor = queue.DefaultActor

func (a Actor) String() string {
	if strings.TrimSpace(string(a)) == "" {
		return string(SystemActor)
	}
	return string(a)
}

// Trigger runs the side effect that accompanies a transition, such as the
// downstream webhook. It is called before the store update.
type Trigger interface {
	Fire(ctx context.Context, meeting *queue.Meeting, tr queue.Transition) error
}

// TriggerFunc adapts a plain function to Trigger.
type TriggerFunc func(ctx context.Context, meeting *queue.Meeting, tr queue.Transition) error

func (f TriggerFunc) Fire(ctx context.Context, meeting *queue.Meeting, tr queue.Transition) error {
	return f(ctx, meeting, tr)
}

// NoopTrigger accepts every transition.
type NoopTrigger struct{}

func (NoopTrigger) Fire(context.Context, *queue.Meeting, queue.Transition) error { return nil }

// Orchestrator applies status graph events to meetings. Each event is
// validated against the meeting's current status, its side effect is fired,
// and the status change is committed together with its record.
type Orchestrator struct {
	store   queue.Repository
	trigger Trigger
	bus     notifications.Bus
	logger  *slog.Logger
	now     func() time.Time

	transcriptionAverage time.Duration
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTrigger sets the side effect fired before each transition.
func WithTrigger(trigger Trigger) OrchestratorOption {
	return func(o *Orchestrator) {
		if trigger != nil {
			o.trigger = trigger
		}
	}
}

// WithBus publishes a wake-up after each transition into a claimable status.
func WithBus(bus notifications.Bus) OrchestratorOption {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTranscriptionAverage sets the expected duration of one transcription,
// used to predict when a queued meeting will be picked up.
func WithTranscriptionAverage(avg time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.transcriptionAverage = avg }
}

// NewOrchestrator builds an orchestrator over store. Without options it
// fires no side effects and publishes no wake-ups.
func NewOrchestrator(store queue.Repository, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		trigger: NoopTrigger{},
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o
}

// ApplyOption carries event-specific inputs.
type ApplyOption func(*applyRequest)

type applyRequest struct {
	transcriptionFilename string
	reportFilename        string
}

// WithTranscriptionFilename names the stored transcript for complete_transcription.
func WithTranscriptionFilename(name string) ApplyOption {
	return func(r *applyRequest) { r.transcriptionFilename = strings.TrimSpace(name) }
}

// WithReportFilename names the stored report for complete_report.
func WithReportFilename(name string) ApplyOption {
	return func(r *applyRequest) { r.reportFilename = strings.TrimSpace(name) }
}

// Apply moves the meeting along event. It returns services.ErrNotFound for a
// missing meeting and services.ErrInvalidTransition, with nothing changed,
// when the meeting's status is not a source of event.
//
// When the side effect fails the meeting is moved to the event's failure
// status instead and services.ErrDownstreamCall is returned alongside the
// updated meeting.
func (o *Orchestrator) Apply(ctx context.Context, meetingID int64, event queue.Event, actor Actor, opts ...ApplyOption) (*queue.Meeting, error) {
	edge, ok := queue.EdgeFor(event)
	if !ok {
		return nil, services.Wrap(services.ErrInvalidTransition, "workflow", string(event), "unknown event", nil)
	}
	req := applyRequest{}
	for _, opt := range opts {
		opt(&req)
	}

	meeting, err := o.store.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !edge.Allows(meeting.Status) {
		return nil, services.Wrap(services.ErrInvalidTransition, "workflow", string(event),
			fmt.Sprintf("meeting %d is %s", meeting.ID, meeting.Status), nil)
	}

	now := o.now().UTC()
	tr := queue.Transition{
		MeetingID: meeting.ID,
		From:      meeting.Status,
		To:        edge.To,
		Event:     event,
		Actor:     actor.String(),
	}
	if err := o.prepare(ctx, meeting, &tr, req, now); err != nil {
		return nil, err
	}

	logger := logging.WithContext(ctx, o.logger).With(
		logging.Int64(logging.FieldMeetingID, meeting.ID),
		logging.String("event", string(event)),
		logging.String("actor", tr.Actor),
	)

	if fireErr := o.trigger.Fire(ctx, meeting, tr); fireErr != nil {
		return o.failAfterTrigger(ctx, logger, meeting, edge, tr, now, fireErr)
	}

	updated, record, err := o.store.Transition(ctx, tr)
	if err != nil {
		logging.ErrorWithContext(logger, "transition not committed after side effect", "transition_commit_failed",
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.String(logging.FieldErrorHint, "compare the meeting status with its transition history"),
			logging.Error(err),
		)
		return nil, err
	}
	logger.Info("meeting transitioned",
		logging.String(logging.FieldEventType, "transition_applied"),
		logging.String("from", string(tr.From)),
		logging.String("to", string(updated.Status)),
		logging.Int64("record_id", record.ID),
	)
	o.wake(ctx, updated)
	return updated, nil
}

// prepare fills in the meeting fields the event sets and checks its inputs.
func (o *Orchestrator) prepare(ctx context.Context, meeting *queue.Meeting, tr *queue.Transition, req applyRequest, now time.Time) error {
	switch tr.Event {
	case queue.EventStartCapture:
		tr.Update.StartDate = &now
	case queue.EventCompleteCapture, queue.EventFailCapture:
		tr.Update.EndDate = &now
	case queue.EventCompleteTranscription:
		if req.transcriptionFilename == "" {
			return services.Wrap(services.ErrValidation, "workflow", string(tr.Event), "transcription filename is required", nil)
		}
		tr.Update.TranscriptionFilename = &req.transcriptionFilename
	case queue.EventStartReport:
		if strings.TrimSpace(meeting.TranscriptionFilename) == "" {
			return services.Wrap(services.ErrNotFound, "workflow", string(tr.Event),
				fmt.Sprintf("meeting %d has no transcription", meeting.ID), nil)
		}
	case queue.EventCompleteReport:
		if req.reportFilename == "" {
			return services.Wrap(services.ErrValidation, "workflow", string(tr.Event), "report filename is required", nil)
		}
		tr.Update.ReportFilename = &req.reportFilename
	}
	if tr.To == queue.StatusTranscriptionPending {
		ahead, err := o.store.CountAhead(ctx, queue.StatusTranscriptionPending, meeting.ID)
		if err != nil {
			return err
		}
		predicted := now.Add(time.Duration(ahead+1) * o.transcriptionAverage)
		tr.PredictedNextAt = &predicted
	}
	return nil
}

func (o *Orchestrator) failAfterTrigger(ctx context.Context, logger *slog.Logger, meeting *queue.Meeting, edge queue.Edge, tr queue.Transition, now time.Time, fireErr error) (*queue.Meeting, error) {
	downstream := fireErr
	if !errors.Is(fireErr, services.ErrDownstreamCall) {
		downstream = services.Wrap(services.ErrDownstreamCall, "workflow", string(tr.Event), "side effect failed", fireErr)
	}
	if edge.Failure == "" {
		logging.WarnWithContext(logger, "side effect failed; meeting left unchanged", "transition_side_effect_failed",
			logging.String(logging.FieldImpact, "meeting stays in "+string(meeting.Status)),
			logging.Error(fireErr),
		)
		return nil, downstream
	}

	failEvent, ok := queue.FailureEvent(edge.Failure)
	if !ok {
		return nil, errors.Join(downstream, services.Wrap(services.ErrInconsistent, "workflow", string(tr.Event),
			"no event records "+string(edge.Failure), nil))
	}
	failTr := queue.Transition{
		MeetingID: meeting.ID,
		From:      meeting.Status,
		To:        edge.Failure,
		Event:     failEvent,
		Actor:     tr.Actor,
	}
	if failEvent == queue.EventFailCapture {
		failTr.Update.EndDate = &now
	}
	updated, _, err := o.store.Transition(ctx, failTr)
	if err != nil {
		logging.ErrorWithContext(logger, "failure transition not committed", "transition_failure_commit_failed",
			logging.String(logging.FieldErrorHint, "meeting stays in progress until stale claim detection flags it"),
			logging.Error(err),
		)
		return nil, errors.Join(downstream, err)
	}
	logging.WarnWithContext(logger, "side effect failed; meeting moved to failure status", "transition_side_effect_failed",
		logging.String("to", string(updated.Status)),
		logging.String(logging.FieldImpact, "meeting needs a retry"),
		logging.Alert("downstream_call"),
		logging.Error(fireErr),
	)
	return updated, downstream
}

// wake tells the stage that claims the meeting's new status to poll now.
func (o *Orchestrator) wake(ctx context.Context, meeting *queue.Meeting) {
	if o.bus == nil || meeting == nil || !meeting.Status.IsClaimable() {
		return
	}
	wakeup := notifications.Wakeup{
		Stage:     meeting.Status.Stage(),
		MeetingID: meeting.ID,
		Status:    string(meeting.Status),
	}
	if err := o.bus.Publish(ctx, wakeup); err != nil {
		o.logger.Debug("wake-up publish failed", logging.Int64(logging.FieldMeetingID, meeting.ID), logging.Error(err))
	}
}

// Retry re-submits failed meetings along their re-entry edge and wakes the
// stages that claim them.
func (o *Orchestrator) Retry(ctx context.Context, actor Actor, ids ...int64) ([]*queue.Meeting, error) {
	moved, err := o.store.Retry(ctx, actor.String(), ids...)
	if err != nil {
		return nil, err
	}
	for _, meeting := range moved {
		o.wake(ctx, meeting)
	}
	return moved, nil
}

// StartCapture marks the recorder as connected.
func (o *Orchestrator) StartCapture(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventStartCapture, actor)
}

// FailCaptureBot records that the recorder could not join.
func (o *Orchestrator) FailCaptureBot(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventFailCaptureBot, actor)
}

// FailCapture ends a capture that went wrong.
func (o *Orchestrator) FailCapture(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventFailCapture, actor)
}

// CompleteCapture ends a capture and queues the meeting for transcription.
func (o *Orchestrator) CompleteCapture(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventCompleteCapture, actor)
}

// InitTranscription queues an imported or failed meeting for transcription.
func (o *Orchestrator) InitTranscription(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventInitTranscription, actor)
}

func (o *Orchestrator) StartTranscription(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventStartTranscription, actor)
}

func (o *Orchestrator) FailTranscription(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventFailTranscription, actor)
}

// CompleteTranscription records the stored transcript filename.
func (o *Orchestrator) CompleteTranscription(ctx context.Context, meetingID int64, actor Actor, filename string) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventCompleteTranscription, actor, WithTranscriptionFilename(filename))
}

// StartReport queues a transcribed meeting for report generation.
func (o *Orchestrator) StartReport(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventStartReport, actor)
}

func (o *Orchestrator) FailReport(ctx context.Context, meetingID int64, actor Actor) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventFailReport, actor)
}

// CompleteReport records the stored report filename.
func (o *Orchestrator) CompleteReport(ctx context.Context, meetingID int64, actor Actor, filename string) (*queue.Meeting, error) {
	return o.Apply(ctx, meetingID, queue.EventCompleteReport, actor, WithReportFilename(filename))
}

// FailInProgress moves a meeting that is still in an in-progress status to
// that status's failure. It reports false when the meeting had already left
// the in-progress status.
func (o *Orchestrator) FailInProgress(ctx context.Context, meeting *queue.Meeting, actor Actor) (*queue.Meeting, bool, error) {
	failed, ok := queue.FailureFor(meeting.Status)
	if !ok {
		return meeting, false, nil
	}
	event, ok := queue.FailureEvent(failed)
	if !ok {
		return nil, false, services.Wrap(services.ErrInconsistent, "workflow", "fail in progress",
			"no event records "+string(failed), nil)
	}
	updated, err := o.Apply(ctx, meeting.ID, event, actor)
	if err != nil && updated == nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			return meeting, false, nil
		}
		return nil, false, err
	}
	return updated, true, err
}
