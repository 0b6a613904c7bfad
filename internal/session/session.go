// Package session issues and governs time-bounded check-in sessions.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/payload"
	"rollcall/internal/store"
)

// CollectionKey is the store key of the session history.
const CollectionKey = "attendance_sessions"

// Validity is the lifetime of a session token from issue or regeneration.
const Validity = 24 * time.Hour

var (
	ErrNotFound = fmt.Errorf("session %w", apperr.ErrNotFound)
	ErrExpired  = fmt.Errorf("session %w", apperr.ErrExpired)
	// ErrTokenMismatch is returned when a presented token is not the
	// session's current one, e.g. after regeneration.
	ErrTokenMismatch = fmt.Errorf("session token superseded: %w", apperr.ErrExpired)
	ErrInvalid       = fmt.Errorf("session %w", apperr.ErrInvalid)
)

// Session is one issued check-in window. Sessions are never deleted.
type Session struct {
	ID            string    `json:"id"`
	Token         string    `json:"token"`
	EffectiveDate string    `json:"effectiveDate"`
	IssuedBy      string    `json:"issuedBy"`
	IssuedByName  string    `json:"issuedByName"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ExpiredAt reports whether s is unusable at now: deactivated, or now is at
// or past ExpiresAt.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.Active || !now.Before(s.ExpiresAt)
}

// Issuer identifies who opens a session.
type Issuer struct {
	ID   string
	Name string
}

// Options tune a Manager.
type Options struct {
	// Supersede deactivates other active sessions of the same date when a
	// new one is created.
	Supersede bool
	Logger    *zap.Logger
}

// Manager creates, resolves, regenerates and deactivates sessions.
type Manager struct {
	sessions  *store.Collection[Session]
	clock     clock.Clock
	supersede bool
	log       *zap.Logger
	newToken  func() (string, error)
}

// NewManager binds a Manager to s.
func NewManager(s *store.Store, c clock.Clock, opts Options) *Manager {
	if c == nil {
		c = clock.Real{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sessions:  store.NewCollection[Session](s, CollectionKey),
		clock:     c,
		supersede: opts.Supersede,
		log:       log,
		newToken:  randomToken,
	}
}

// CreateSession opens a session for today, valid for 24 hours.
func (m *Manager) CreateSession(ctx context.Context, issuer Issuer) (Session, error) {
	if issuer.ID == "" {
		return Session{}, fmt.Errorf("%w: issuer is required", ErrInvalid)
	}
	token, err := m.newToken()
	if err != nil {
		return Session{}, err
	}
	now := m.clock.Now()
	created := Session{
		ID:            uuid.NewString(),
		Token:         token,
		EffectiveDate: clock.DateOf(now),
		IssuedBy:      issuer.ID,
		IssuedByName:  issuer.Name,
		ExpiresAt:     now.Add(Validity),
		Active:        true,
		CreatedAt:     now,
	}
	superseded := 0
	err = m.sessions.Update(ctx, func(items []Session) ([]Session, error) {
		if m.supersede {
			for i := range items {
				if items[i].EffectiveDate == created.EffectiveDate && items[i].Active {
					items[i].Active = false
					superseded++
				}
			}
		}
		return append(items, created), nil
	})
	if err != nil {
		return Session{}, err
	}
	m.log.Info("session created",
		zap.String("session_id", created.ID),
		zap.String("date", created.EffectiveDate),
		zap.String("issued_by", issuer.ID),
		zap.Int("superseded", superseded))
	return created, nil
}

// ActiveSession returns the usable session for date. When several qualify
// the most recently created wins, later insertion breaking ties.
func (m *Manager) ActiveSession(ctx context.Context, date string) (Session, bool, error) {
	items, err := m.sessions.Load(ctx)
	if err != nil {
		return Session{}, false, err
	}
	now := m.clock.Now()
	var best Session
	found := false
	for _, s := range items {
		if s.EffectiveDate != date || s.ExpiredAt(now) {
			continue
		}
		if !found || !s.CreatedAt.Before(best.CreatedAt) {
			best, found = s, true
		}
	}
	return best, found, nil
}

// Get returns the session with id.
func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	items, err := m.sessions.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, s := range items {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

// Verify checks that token is the current token of session id and that the
// session is still usable.
func (m *Manager) Verify(ctx context.Context, id, token string) (Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Token != token {
		return Session{}, ErrTokenMismatch
	}
	if m.IsExpired(s) {
		return Session{}, ErrExpired
	}
	return s, nil
}

// Regenerate issues a fresh token for the session, restarts its validity
// window from now and reactivates it.
func (m *Manager) Regenerate(ctx context.Context, id string) (Session, error) {
	var updated Session
	err := m.sessions.Update(ctx, func(items []Session) ([]Session, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		token, err := m.newToken()
		if err != nil {
			return nil, err
		}
		for token == items[idx].Token {
			if token, err = m.newToken(); err != nil {
				return nil, err
			}
		}
		items[idx].Token = token
		items[idx].ExpiresAt = m.clock.Now().Add(Validity)
		items[idx].Active = true
		updated = items[idx]
		return items, nil
	})
	if err != nil {
		return Session{}, err
	}
	m.log.Info("session regenerated", zap.String("session_id", id), zap.Time("expires_at", updated.ExpiresAt))
	return updated, nil
}

// Deactivate permanently closes the session.
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	err := m.sessions.Update(ctx, func(items []Session) ([]Session, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		items[idx].Active = false
		return items, nil
	})
	if err != nil {
		return err
	}
	m.log.Info("session deactivated", zap.String("session_id", id))
	return nil
}

// IsExpired evaluates s against the current time.
func (m *Manager) IsExpired(s Session) bool {
	return s.ExpiredAt(m.clock.Now())
}

// ListByDate returns every session issued for date, oldest first.
func (m *Manager) ListByDate(ctx context.Context, date string) ([]Session, error) {
	items, err := m.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, s := range items {
		if s.EffectiveDate == date {
			out = append(out, s)
		}
	}
	return out, nil
}

// History returns every session ever issued.
func (m *Manager) History(ctx context.Context) ([]Session, error) {
	return m.sessions.Load(ctx)
}

// Payload renders the scannable payload of s.
func Payload(s Session) (string, error) {
	return payload.EncodeSession(payload.Session{
		SessionID:     s.ID,
		Token:         s.Token,
		EffectiveDate: s.EffectiveDate,
		ExpiresAt:     s.ExpiresAt,
	})
}

func indexOf(items []Session, id string) int {
	for i, s := range items {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
