// Package attendance records per-subject, per-day attendance against
// check-in sessions.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/notify"
	"rollcall/internal/payload"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/subject"
)

var (
	ErrNotFound        = fmt.Errorf("attendance record %w", apperr.ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", apperr.ErrNotFound)
	ErrSubjectNotFound = fmt.Errorf("subject %w", apperr.ErrNotFound)
	ErrSessionExpired  = fmt.Errorf("session %w", apperr.ErrExpired)
	// ErrTokenSuperseded is returned when a scanned session token was
	// replaced by regeneration.
	ErrTokenSuperseded = fmt.Errorf("session token superseded: %w", apperr.ErrExpired)
	ErrAlreadyRecorded = fmt.Errorf("attendance already recorded: %w", apperr.ErrConflict)
	ErrNoActiveSession = fmt.Errorf("no active session today: %w", apperr.ErrNotFound)
	// ErrWrongPayload is returned when a scanned payload is the other kind
	// than the redeem path expects.
	ErrWrongPayload = fmt.Errorf("payload kind not accepted here: %w", apperr.ErrInvalid)
)

// Sessions is the subset of the session manager the service depends on.
type Sessions interface {
	Get(ctx context.Context, id string) (session.Session, error)
	ActiveSession(ctx context.Context, date string) (session.Session, bool, error)
	Verify(ctx context.Context, id, token string) (session.Session, error)
	IsExpired(s session.Session) bool
}

// Subjects is the subset of the roster the service depends on.
type Subjects interface {
	Get(ctx context.Context, id string) (subject.Subject, error)
	Resolve(ctx context.Context, ref string) (subject.Subject, error)
	List(ctx context.Context) ([]subject.Subject, error)
}

// Options tune a Service.
type Options struct {
	Sink   notify.Sink
	Logger *zap.Logger
	// OnOutcome is called once per record attempt with the error kind
	// label ("ok" on success).
	OnOutcome func(outcome string)
}

// Service coordinates attendance recording and queries.
type Service struct {
	repo      *Repository
	sessions  Sessions
	subjects  Subjects
	clock     clock.Clock
	sink      notify.Sink
	log       *zap.Logger
	onOutcome func(string)
}

// NewService creates a service backed by the records collection of s.
func NewService(s *store.Store, sessions Sessions, subjects Subjects, c clock.Clock, opts Options) *Service {
	if c == nil {
		c = clock.Real{}
	}
	svc := &Service{
		repo:      NewRepository(s),
		sessions:  sessions,
		subjects:  subjects,
		clock:     c,
		sink:      opts.Sink,
		log:       opts.Logger,
		onOutcome: opts.OnOutcome,
	}
	if svc.sink == nil {
		svc.sink = notify.Nop{}
	}
	if svc.log == nil {
		svc.log = zap.NewNop()
	}
	if svc.onOutcome == nil {
		svc.onOutcome = func(string) {}
	}
	return svc
}

// Record creates the attendance record of subjectID under sessionID, dated
// the session's effective date. An empty status means Present. All checks
// and the append run under the records lock, so two concurrent calls for
// the same subject and date yield exactly one record.
func (s *Service) Record(ctx context.Context, subjectID, sessionID string, status Status) (Record, error) {
	rec, err := s.record(ctx, subjectID, sessionID, status)
	s.onOutcome(apperr.Kind(err))
	if err != nil {
		s.log.Debug("attendance rejected",
			zap.String("subject_id", subjectID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return Record{}, err
	}
	s.log.Info("attendance recorded",
		zap.String("record_id", rec.ID),
		zap.String("subject_id", rec.SubjectID),
		zap.String("date", rec.Date),
		zap.String("status", string(rec.Status)))
	return rec, nil
}

func (s *Service) record(ctx context.Context, subjectID, sessionID string, status Status) (Record, error) {
	if status == "" {
		status = Present
	}
	if !status.Valid() {
		return Record{}, fmt.Errorf("attendance status %q: %w", status, apperr.ErrInvalid)
	}

	var created Record
	err := s.repo.Mutate(ctx, func(items []Record) ([]Record, error) {
		sess, err := s.sessions.Get(ctx, sessionID)
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		subj, err := s.subjects.Get(ctx, subjectID)
		if errors.Is(err, subject.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		if err != nil {
			return nil, err
		}
		if s.sessions.IsExpired(sess) {
			return nil, ErrSessionExpired
		}
		for _, rec := range items {
			if rec.SubjectID == subj.ID && rec.Date == sess.EffectiveDate {
				return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyRecorded, subj.Name, rec.Date)
			}
		}

		now := s.clock.Now()
		created = Record{
			ID:        uuid.NewString(),
			SubjectID: subj.ID,
			Snapshot:  Snapshot{SubjectName: subj.Name, Group: subj.Group},
			Date:      sess.EffectiveDate,
			Time:      now.Format(TimeLayout),
			Status:    status,
			SessionID: sess.ID,
			CreatedAt: now,
		}
		return append(items, created), nil
	})
	return created, err
}

// UpdateStatus overrides the status of an existing record. A non-empty note
// replaces the stored one.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, note string) (Record, error) {
	if !status.Valid() {
		return Record{}, fmt.Errorf("attendance status %q: %w", status, apperr.ErrInvalid)
	}
	return s.modify(ctx, id, func(rec *Record) {
		rec.Status = status
		if note = strings.TrimSpace(note); note != "" {
			rec.Note = note
		}
	})
}

// AttachProof sets the proof reference (e.g. a sick note image) of a record.
func (s *Service) AttachProof(ctx context.Context, id, proofRef string) (Record, error) {
	return s.modify(ctx, id, func(rec *Record) { rec.ProofRef = proofRef })
}

func (s *Service) modify(ctx context.Context, id string, fn func(*Record)) (Record, error) {
	var out Record
	err := s.repo.Mutate(ctx, func(items []Record) ([]Record, error) {
		for i := range items {
			if items[i].ID == id {
				fn(&items[i])
				out = items[i]
				return items, nil
			}
		}
		return nil, ErrNotFound
	})
	return out, err
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	items, err := s.repo.Filter(ctx, func(r Record) bool { return r.ID == id })
	if err != nil {
		return Record{}, err
	}
	if len(items) == 0 {
		return Record{}, ErrNotFound
	}
	return items[0], nil
}

// ByDate returns the records of one date in insertion order.
func (s *Service) ByDate(ctx context.Context, date string) ([]Record, error) {
	return s.repo.Filter(ctx, func(r Record) bool { return r.Date == date })
}

// BySubject returns a subject's records, newest first.
func (s *Service) BySubject(ctx context.Context, subjectID string) ([]Record, error) {
	items, err := s.repo.Filter(ctx, func(r Record) bool { return r.SubjectID == subjectID })
	if err != nil {
		return nil, err
	}
	newestFirst(items)
	return items, nil
}

// ByGroup returns the records whose snapshot group is group, optionally
// restricted to one date.
func (s *Service) ByGroup(ctx context.Context, group, date string) ([]Record, error) {
	return s.repo.Filter(ctx, func(r Record) bool {
		return r.Group == group && (date == "" || r.Date == date)
	})
}

// ByDateRange returns records dated start through end inclusive.
func (s *Service) ByDateRange(ctx context.Context, start, end string) ([]Record, error) {
	if _, err := clock.ParseDate(start); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalid)
	}
	if _, err := clock.ParseDate(end); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalid)
	}
	return s.repo.Filter(ctx, func(r Record) bool { return r.Date >= start && r.Date <= end })
}

// All returns every record in insertion order.
func (s *Service) All(ctx context.Context) ([]Record, error) {
	return s.repo.All(ctx)
}

// Redeem handles a scanned subject identity: a subject payload or a bare
// external code. The subject is recorded Present against today's active
// session.
func (s *Service) Redeem(ctx context.Context, scanned string) (Record, error) {
	subj, err := s.subjectFromScan(ctx, scanned)
	if err != nil {
		s.onOutcome(apperr.Kind(err))
		return Record{}, err
	}
	active, ok, err := s.sessions.ActiveSession(ctx, clock.Today(s.clock))
	if err != nil {
		return Record{}, err
	}
	if !ok {
		s.onOutcome(apperr.Kind(ErrNoActiveSession))
		return Record{}, ErrNoActiveSession
	}
	return s.Record(ctx, subj.ID, active.ID, Present)
}

func (s *Service) subjectFromScan(ctx context.Context, scanned string) (subject.Subject, error) {
	msg, bare, err := payload.Parse(scanned)
	if err != nil {
		return subject.Subject{}, err
	}
	ref := bare
	if ref == "" {
		if msg.Kind != payload.KindSubject {
			return subject.Subject{}, fmt.Errorf("%w: session payload scanned in subject mode", ErrWrongPayload)
		}
		ref = msg.Subject.SubjectID
		if ref == "" {
			ref = msg.Subject.ExternalCode
		}
	}
	subj, err := s.subjects.Resolve(ctx, ref)
	if errors.Is(err, subject.ErrNotFound) {
		return subject.Subject{}, ErrSubjectNotFound
	}
	return subj, err
}

// RedeemSession handles a scanned session payload presented by the subject
// identified by subjectRef (id or external code).
func (s *Service) RedeemSession(ctx context.Context, scanned, subjectRef string) (Record, error) {
	sess, err := s.sessionFromScan(ctx, scanned)
	if err != nil {
		s.onOutcome(apperr.Kind(err))
		return Record{}, err
	}
	subj, err := s.subjects.Resolve(ctx, subjectRef)
	if errors.Is(err, subject.ErrNotFound) {
		s.onOutcome(apperr.Kind(ErrSubjectNotFound))
		return Record{}, ErrSubjectNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return s.Record(ctx, subj.ID, sess.ID, Present)
}

func (s *Service) sessionFromScan(ctx context.Context, scanned string) (session.Session, error) {
	msg, bare, err := payload.Parse(scanned)
	if err != nil {
		return session.Session{}, err
	}
	if bare != "" || msg.Kind != payload.KindSession {
		return session.Session{}, fmt.Errorf("%w: subject payload scanned in session mode", ErrWrongPayload)
	}
	sess, err := s.sessions.Verify(ctx, msg.Session.SessionID, msg.Session.Token)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return session.Session{}, ErrSessionNotFound
	case errors.Is(err, session.ErrTokenMismatch):
		return session.Session{}, ErrTokenSuperseded
	case errors.Is(err, session.ErrExpired):
		return session.Session{}, ErrSessionExpired
	}
	return sess, err
}

// NotifyAbsences sends an absence notification for every roster subject
// without a record on date, and returns their ids.
func (s *Service) NotifyAbsences(ctx context.Context, date string) ([]string, error) {
	if _, err := clock.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalid)
	}
	roster, err := s.subjects.List(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.ByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.SubjectID] = struct{}{}
	}
	var absent []string
	for _, subj := range roster {
		if _, ok := seen[subj.ID]; ok {
			continue
		}
		s.sink.NotifyAbsence(ctx, subj.ID, date)
		absent = append(absent, subj.ID)
	}
	s.log.Info("absence notifications sent", zap.String("date", date), zap.Int("count", len(absent)))
	return absent, nil
}
