package notify

import (
	"context"

	"go.uber.org/zap"

	"rollcall/internal/logger"
	"rollcall/internal/queue"
)

// Worker drains notification events from a queue into an Inbox.
type Worker struct {
	Queue queue.Queue
	Inbox *Inbox
	Log   *zap.Logger
	// Observe is called once per handled message with its kind and one of
	// "delivered", "dropped" or "failed".
	Observe func(kind, result string)
}

// Run consumes until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	observe := w.Observe
	if observe == nil {
		observe = func(string, string) {}
	}

	messages, err := w.Queue.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		evt, err := Decode(msg)
		if err != nil {
			log.Warn("undecodable notification", zap.Error(err))
			observe("unknown", "failed")
			continue
		}
		n, ok, err := w.Inbox.Deliver(ctx, evt)
		switch {
		case err != nil:
			log.Error("notification delivery failed",
				zap.String("kind", string(evt.Kind)),
				zap.String("subject_id", evt.SubjectID),
				zap.Error(err))
			observe(string(evt.Kind), "failed")
		case !ok:
			observe(string(evt.Kind), "dropped")
		default:
			log.Info("notification delivered",
				zap.String("notification_id", n.ID),
				zap.String("kind", string(n.Kind)),
				zap.String("recipient_id", n.RecipientID),
				zap.String("contact", logger.MaskPhone(n.RecipientContact)))
			observe(string(evt.Kind), "delivered")
		}
	}
	return nil
}
