package attendance

import (
	"fmt"
	"strings"
	"time"

	"rollcall/internal/apperr"
)

// Status is the attendance status of a record.
type Status string

const (
	Present          Status = "present"
	ExcusedAbsence   Status = "excused"
	Sick             Status = "sick"
	UnexcusedAbsence Status = "unexcused"
)

// Statuses lists every valid status.
var Statuses = []Status{Present, ExcusedAbsence, Sick, UnexcusedAbsence}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Present, ExcusedAbsence, Sick, UnexcusedAbsence:
		return true
	}
	return false
}

// ParseStatus accepts a status name, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("attendance status %q: %w", raw, apperr.ErrInvalid)
	}
	return s, nil
}

// Snapshot is the subject's name and group as they were when the record was
// created. Later roster edits do not change it.
type Snapshot struct {
	SubjectName string `json:"subjectName"`
	Group       string `json:"group"`
}

// Record is one subject's attendance on one date.
type Record struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	Snapshot
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    Status    `json:"status"`
	SessionID string    `json:"sessionId"`
	Note      string    `json:"note,omitempty"`
	ProofRef  string    `json:"proofRef,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TimeLayout is the wall-clock format of Record.Time.
const TimeLayout = "15:04:05"

// IsLate reports whether r was recorded after threshold ("HH:MM" or
// "HH:MM:SS"). Only present records can be late.
func (r Record) IsLate(threshold string) (bool, error) {
	if r.Status != Present {
		return false, nil
	}
	limit, err := parseClock(threshold)
	if err != nil {
		return false, err
	}
	at, err := parseClock(r.Time)
	if err != nil {
		return false, err
	}
	return at.After(limit), nil
}

func parseClock(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time of day %q: %w", s, apperr.ErrInvalid)
}
