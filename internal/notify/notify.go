// Package notify is the fire-and-forget notification sink of the core and
// the local inbox the worker delivers into.
package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/queue"
)

// MessageType tags notification events on the queue.
const MessageType = "notification"

// Kind is the notification category.
type Kind string

const (
	KindAbsence Kind = "absence"
	KindLeave   Kind = "leave"
)

// Outcome is the result of a leave review.
type Outcome string

const (
	Approved Outcome = "approved"
	Rejected Outcome = "rejected"
)

// Event is what a sink receives and what travels on the queue.
type Event struct {
	Kind      Kind      `json:"kind"`
	SubjectID string    `json:"subjectId"`
	Date      string    `json:"date,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives notifications. Implementations must not block the caller
// on delivery and report no errors.
type Sink interface {
	NotifyAbsence(ctx context.Context, subjectID, date string)
	NotifyLeaveDecision(ctx context.Context, subjectID string, outcome Outcome)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) NotifyAbsence(context.Context, string, string) {}
func (Nop) NotifyLeaveDecision(context.Context, string, Outcome) {}

// LogSink writes notifications to the log only.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) NotifyAbsence(_ context.Context, subjectID, date string) {
	s.Log.Info("absence notification", zap.String("subject_id", subjectID), zap.String("date", date))
}

func (s LogSink) NotifyLeaveDecision(_ context.Context, subjectID string, outcome Outcome) {
	s.Log.Info("leave decision notification", zap.String("subject_id", subjectID), zap.String("outcome", string(outcome)))
}

// publishTimeout bounds a publish on queues that cannot fail fast.
const publishTimeout = 2 * time.Second

// tryPublisher is implemented by queues that can refuse instead of wait.
type tryPublisher interface {
	TryPublish(msg queue.Message) error
}

// QueueSink publishes events for the worker to deliver. Events that cannot
// be enqueued right away are dropped and counted.
type QueueSink struct {
	q   queue.Queue
	log *zap.Logger
	now func() time.Time

	// OnDrop, when set, is called for every dropped event.
	OnDrop  func(kind Kind)
	dropped atomic.Int64
}

// NewQueueSink wraps q.
func NewQueueSink(q queue.Queue, log *zap.Logger) *QueueSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueueSink{q: q, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *QueueSink) NotifyAbsence(ctx context.Context, subjectID, date string) {
	s.publish(ctx, Event{Kind: KindAbsence, SubjectID: subjectID, Date: date})
}

func (s *QueueSink) NotifyLeaveDecision(ctx context.Context, subjectID string, outcome Outcome) {
	s.publish(ctx, Event{Kind: KindLeave, SubjectID: subjectID, Outcome: outcome})
}

// Dropped reports how many events were not enqueued.
func (s *QueueSink) Dropped() int64 { return s.dropped.Load() }

func (s *QueueSink) publish(ctx context.Context, evt Event) {
	evt.At = s.now()
	body, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("encode notification", zap.Error(err))
		return
	}
	msg := queue.Message{Type: MessageType, Body: body}

	if tp, ok := s.q.(tryPublisher); ok {
		err = tp.TryPublish(msg)
	} else {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = s.q.Publish(pctx, msg)
		cancel()
	}
	if err == nil {
		return
	}
	s.dropped.Add(1)
	if s.OnDrop != nil {
		s.OnDrop(evt.Kind)
	}
	s.log.Warn("notification publish failed",
		zap.String("kind", string(evt.Kind)),
		zap.String("subject_id", evt.SubjectID),
		zap.Error(err))
}

// InboxSink delivers straight into an Inbox, for processes that run no
// worker.
type InboxSink struct {
	Inbox *Inbox
	Log   *zap.Logger
}

func (s InboxSink) NotifyAbsence(ctx context.Context, subjectID, date string) {
	s.deliver(ctx, Event{Kind: KindAbsence, SubjectID: subjectID, Date: date})
}

func (s InboxSink) NotifyLeaveDecision(ctx context.Context, subjectID string, outcome Outcome) {
	s.deliver(ctx, Event{Kind: KindLeave, SubjectID: subjectID, Outcome: outcome})
}

func (s InboxSink) deliver(ctx context.Context, evt Event) {
	evt.At = s.Inbox.clock.Now()
	if _, _, err := s.Inbox.Deliver(ctx, evt); err != nil && s.Log != nil {
		s.Log.Error("notification delivery failed",
			zap.String("kind", string(evt.Kind)),
			zap.String("subject_id", evt.SubjectID),
			zap.Error(err))
	}
}

// Decode extracts an Event from a queue message.
func Decode(msg queue.Message) (Event, error) {
	var evt Event
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}
