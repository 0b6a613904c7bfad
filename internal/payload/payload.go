// Package payload encodes and decodes the message carried by a scannable
// check-in code.
package payload

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rollcall/internal/apperr"
)

// Kind discriminates the two payload variants.
type Kind string

const (
	KindSession Kind = "session"
	KindSubject Kind = "subject"
)

// ErrMalformed is returned for input that looks structured but cannot be
// decoded into a known variant.
var ErrMalformed = fmt.Errorf("payload %w", apperr.ErrMalformed)

// Session is the check-in session variant.
type Session struct {
	SessionID     string    `json:"sessionId"`
	Token         string    `json:"token"`
	EffectiveDate string    `json:"effectiveDate"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Subject is the subject-identity variant.
type Subject struct {
	SubjectID      string `json:"subjectId"`
	ExternalCode   string `json:"externalCode"`
	IssuedAtMillis int64  `json:"issuedAtMillis"`
}

// Message is a decoded payload; exactly one of Session or Subject is set.
type Message struct {
	Kind    Kind
	Session *Session
	Subject *Subject
}

type envelope struct {
	Kind Kind `json:"kind"`
	*Session
	*Subject
}

// EncodeSession renders a session payload.
func EncodeSession(s Session) (string, error) {
	return encode(envelope{Kind: KindSession, Session: &s})
}

// EncodeSubject renders a subject-identity payload.
func EncodeSubject(s Subject) (string, error) {
	return encode(envelope{Kind: KindSubject, Subject: &s})
}

func encode(e envelope) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(raw), nil
}

// Decode parses a structured payload.
func Decode(text string) (Message, error) {
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(text), &head); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch head.Kind {
	case KindSession:
		var s Session
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if s.SessionID == "" || s.Token == "" {
			return Message{}, fmt.Errorf("%w: session payload needs sessionId and token", ErrMalformed)
		}
		return Message{Kind: KindSession, Session: &s}, nil
	case KindSubject:
		var s Subject
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if s.SubjectID == "" && s.ExternalCode == "" {
			return Message{}, fmt.Errorf("%w: subject payload needs subjectId or externalCode", ErrMalformed)
		}
		return Message{Kind: KindSubject, Subject: &s}, nil
	default:
		return Message{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, head.Kind)
	}
}

// Parse decodes text when it is a JSON object and otherwise returns it as a
// bare code for directory lookup. A JSON object that fails to decode is an
// error, not a bare code.
func Parse(text string) (msg Message, bare string, err error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, "", fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return Message{}, trimmed, nil
	}
	msg, err = Decode(trimmed)
	return msg, "", err
}
