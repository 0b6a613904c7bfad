// Package leave handles leave requests and their review.
package leave

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/notify"
	"rollcall/internal/store"
	"rollcall/internal/subject"
)

// CollectionKey is the store key of leave requests.
const CollectionKey = "leave_requests"

var (
	ErrNotFound        = fmt.Errorf("leave request %w", apperr.ErrNotFound)
	ErrAlreadyReviewed = fmt.Errorf("leave request already reviewed: %w", apperr.ErrConflict)
	ErrInvalid         = fmt.Errorf("leave request %w", apperr.ErrInvalid)
)

// Type is the reason category of a request.
type Type string

const (
	Sick       Type = "sick"
	Permission Type = "permission"
	Family     Type = "family"
)

func (t Type) valid() bool {
	return t == Sick || t == Permission || t == Family
}

// Status is the review state of a request.
type Status string

const (
	Pending  Status = "pending"
	Approved Status = "approved"
	Rejected Status = "rejected"
)

// Request is one leave request.
type Request struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subjectId"`
	SubjectName string     `json:"subjectName"`
	Group       string     `json:"group"`
	Type        Type       `json:"type"`
	StartDate   string     `json:"startDate"`
	EndDate     string     `json:"endDate"`
	Reason      string     `json:"reason"`
	ProofRef    string     `json:"proofRef,omitempty"`
	Status      Status     `json:"status"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Days is the inclusive length of the request in calendar days.
func (r Request) Days() int {
	days, err := clock.DaysBetween(r.StartDate, r.EndDate)
	if err != nil {
		return 0
	}
	return len(days)
}

// Submission carries the caller-supplied fields of a new request.
type Submission struct {
	SubjectID string
	Type      Type
	StartDate string
	EndDate   string
	Reason    string
	ProofRef  string
}

// Stats counts requests by status.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Subjects resolves the requesting subject.
type Subjects interface {
	Get(ctx context.Context, id string) (subject.Subject, error)
}

// Service manages leave requests.
type Service struct {
	requests *store.Collection[Request]
	subjects Subjects
	sink     notify.Sink
	clock    clock.Clock
	log      *zap.Logger
}

// NewService binds a Service to s. A nil sink discards notifications.
func NewService(s *store.Store, subjects Subjects, sink notify.Sink, c clock.Clock, log *zap.Logger) *Service {
	if sink == nil {
		sink = notify.Nop{}
	}
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		requests: store.NewCollection[Request](s, CollectionKey),
		subjects: subjects,
		sink:     sink,
		clock:    c,
		log:      log,
	}
}

// Submit files a pending request for an existing subject.
func (s *Service) Submit(ctx context.Context, in Submission) (Request, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if !in.Type.valid() {
		return Request{}, fmt.Errorf("%w: type %q", ErrInvalid, in.Type)
	}
	if in.Reason == "" {
		return Request{}, fmt.Errorf("%w: reason is required", ErrInvalid)
	}
	if _, err := clock.DaysBetween(in.StartDate, in.EndDate); err != nil {
		return Request{}, fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}
	subj, err := s.subjects.Get(ctx, in.SubjectID)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ID:          uuid.NewString(),
		SubjectID:   subj.ID,
		SubjectName: subj.Name,
		Group:       subj.Group,
		Type:        in.Type,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Reason:      in.Reason,
		ProofRef:    in.ProofRef,
		Status:      Pending,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.requests.Update(ctx, func(items []Request) ([]Request, error) {
		return append(items, req), nil
	}); err != nil {
		return Request{}, err
	}
	s.log.Info("leave request submitted",
		zap.String("request_id", req.ID),
		zap.String("subject_id", req.SubjectID),
		zap.String("type", string(req.Type)))
	return req, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	items, err := s.requests.Load(ctx)
	if err != nil {
		return Request{}, err
	}
	for _, r := range items {
		if r.ID == id {
			return r, nil
		}
	}
	return Request{}, ErrNotFound
}

// All returns every request, newest first.
func (s *Service) All(ctx context.Context) ([]Request, error) {
	return s.filter(ctx, func(Request) bool { return true })
}

// BySubject returns a subject's requests, newest first.
func (s *Service) BySubject(ctx context.Context, subjectID string) ([]Request, error) {
	return s.filter(ctx, func(r Request) bool { return r.SubjectID == subjectID })
}

// ByStatus returns requests in status, newest first.
func (s *Service) ByStatus(ctx context.Context, status Status) ([]Request, error) {
	return s.filter(ctx, func(r Request) bool { return r.Status == status })
}

// Pending returns the requests awaiting review.
func (s *Service) Pending(ctx context.Context) ([]Request, error) {
	return s.ByStatus(ctx, Pending)
}

// Approve marks a pending request approved and notifies the subject.
func (s *Service) Approve(ctx context.Context, id, reviewer string) (Request, error) {
	return s.review(ctx, id, reviewer, Approved)
}

// Reject marks a pending request rejected and notifies the subject.
func (s *Service) Reject(ctx context.Context, id, reviewer string) (Request, error) {
	return s.review(ctx, id, reviewer, Rejected)
}

func (s *Service) review(ctx context.Context, id, reviewer string, outcome Status) (Request, error) {
	var out Request
	err := s.requests.Update(ctx, func(items []Request) ([]Request, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			if items[i].Status != Pending {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyReviewed, items[i].Status)
			}
			now := s.clock.Now()
			items[i].Status = outcome
			items[i].ReviewedBy = reviewer
			items[i].ReviewedAt = &now
			out = items[i]
			return items, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return Request{}, err
	}
	s.log.Info("leave request reviewed",
		zap.String("request_id", out.ID),
		zap.String("outcome", string(outcome)),
		zap.String("reviewer", reviewer))
	s.sink.NotifyLeaveDecision(ctx, out.SubjectID, notify.Outcome(outcome))
	return out, nil
}

// Stats counts requests by status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	items, err := s.requests.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, r := range items {
		switch r.Status {
		case Pending:
			st.Pending++
		case Approved:
			st.Approved++
		case Rejected:
			st.Rejected++
		}
	}
	return st, nil
}

func (s *Service) filter(ctx context.Context, keep func(Request) bool) ([]Request, error) {
	items, err := s.requests.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Request
	for _, r := range items {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
