package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/store"
	"rollcall/internal/subject"
)

// InboxKey is the store key of delivered notifications.
const InboxKey = "notifications"

var ErrNotFound = fmt.Errorf("notification %w", apperr.ErrNotFound)

// Notification is one delivered message.
type Notification struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	RecipientID      string    `json:"recipientId"`
	RecipientContact string    `json:"recipientContact,omitempty"`
	SentAt           time.Time `json:"sentAt"`
	Read             bool      `json:"read"`
}

// SubjectLookup resolves the subject an event concerns.
type SubjectLookup interface {
	Get(ctx context.Context, id string) (subject.Subject, error)
}

// Inbox stores notifications per recipient.
type Inbox struct {
	items    *store.Collection[Notification]
	subjects SubjectLookup
	clock    clock.Clock
	log      *zap.Logger
}

// NewInbox binds an Inbox to s.
func NewInbox(s *store.Store, subjects SubjectLookup, c clock.Clock, log *zap.Logger) *Inbox {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Inbox{
		items:    store.NewCollection[Notification](s, InboxKey),
		subjects: subjects,
		clock:    c,
		log:      log,
	}
}

// Deliver turns evt into a stored notification addressed to the subject.
// Events for subjects no longer on the roster are dropped.
func (in *Inbox) Deliver(ctx context.Context, evt Event) (Notification, bool, error) {
	subj, err := in.subjects.Get(ctx, evt.SubjectID)
	if errors.Is(err, subject.ErrNotFound) {
		in.log.Warn("notification for unknown subject dropped", zap.String("subject_id", evt.SubjectID))
		return Notification{}, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}

	n := Notification{
		ID:               uuid.NewString(),
		Kind:             evt.Kind,
		RecipientID:      subj.ID,
		RecipientContact: subj.Contact,
		SentAt:           in.clock.Now(),
	}
	switch evt.Kind {
	case KindAbsence:
		n.Title = "Absence notice"
		n.Message = fmt.Sprintf("%s (%s) has no attendance record on %s.", subj.Name, subj.Group, evt.Date)
	case KindLeave:
		n.Title = "Leave request " + string(evt.Outcome)
		n.Message = fmt.Sprintf("The leave request of %s has been %s.", subj.Name, evt.Outcome)
	default:
		return Notification{}, false, fmt.Errorf("notification kind %q: %w", evt.Kind, apperr.ErrInvalid)
	}

	if err := in.items.Update(ctx, func(items []Notification) ([]Notification, error) {
		return append(items, n), nil
	}); err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

// ByRecipient lists a recipient's notifications, newest first.
func (in *Inbox) ByRecipient(ctx context.Context, recipientID string) ([]Notification, error) {
	items, err := in.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, n := range items {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

// UnreadCount counts a recipient's unread notifications.
func (in *Inbox) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	items, err := in.ByRecipient(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead flags one notification as read.
func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	return in.items.Update(ctx, func(items []Notification) ([]Notification, error) {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
				return items, nil
			}
		}
		return nil, ErrNotFound
	})
}
