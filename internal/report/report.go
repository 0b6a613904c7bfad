// Package report derives attendance statistics from records and the roster.
//
// A roster subject with no record on a date counts as an implicit
// unexcused absence. An explicit record always wins over that inference,
// and records of subjects no longer on the roster still count by status.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/subject"
)

// Records is the record query surface the aggregator reads.
type Records interface {
	ByDate(ctx context.Context, date string) ([]attendance.Record, error)
	ByDateRange(ctx context.Context, start, end string) ([]attendance.Record, error)
	BySubject(ctx context.Context, subjectID string) ([]attendance.Record, error)
}

// Roster lists the current subjects.
type Roster interface {
	List(ctx context.Context) ([]subject.Subject, error)
}

// DayStats is the status breakdown of one date.
type DayStats struct {
	Date    string `json:"date"`
	Present int    `json:"present"`
	Excused int    `json:"excused"`
	Sick    int    `json:"sick"`
	// Absent is explicit plus implicit unexcused absences.
	Absent         int `json:"absent"`
	AbsentExplicit int `json:"absentExplicit"`
	AbsentImplicit int `json:"absentImplicit"`
	Recorded       int `json:"recorded"`
	Total          int `json:"total"`
}

// Aggregator computes statistics.
type Aggregator struct {
	records Records
	roster  Roster
	clock   clock.Clock
}

// NewAggregator builds an aggregator.
func NewAggregator(records Records, roster Roster, c clock.Clock) *Aggregator {
	if c == nil {
		c = clock.Real{}
	}
	return &Aggregator{records: records, roster: roster, clock: c}
}

// StatsForDate breaks down one date.
func (a *Aggregator) StatsForDate(ctx context.Context, date string) (DayStats, error) {
	if err := validDate(date); err != nil {
		return DayStats{}, err
	}
	roster, err := a.roster.List(ctx)
	if err != nil {
		return DayStats{}, err
	}
	records, err := a.records.ByDate(ctx, date)
	if err != nil {
		return DayStats{}, err
	}
	return tally(date, roster, records), nil
}

// Today breaks down the current date.
func (a *Aggregator) Today(ctx context.Context) (DayStats, error) {
	return a.StatsForDate(ctx, clock.Today(a.clock))
}

// StatsForRange breaks down every date from start to end inclusive.
func (a *Aggregator) StatsForRange(ctx context.Context, start, end string) ([]DayStats, error) {
	days, err := clock.DaysBetween(start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalid)
	}
	roster, err := a.roster.List(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.records.ByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string][]attendance.Record, len(days))
	for _, r := range records {
		byDay[r.Date] = append(byDay[r.Date], r)
	}
	out := make([]DayStats, 0, len(days))
	for _, d := range days {
		out = append(out, tally(d, roster, byDay[d]))
	}
	return out, nil
}

// Monthly breaks down every date of the given month.
func (a *Aggregator) Monthly(ctx context.Context, year int, month time.Month) ([]DayStats, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("month %d: %w", month, apperr.ErrInvalid)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return a.StatsForRange(ctx, clock.DateOf(first), clock.DateOf(last))
}

// StatsForGroup breaks down one date restricted to the subjects and
// records of group.
func (a *Aggregator) StatsForGroup(ctx context.Context, group, date string) (DayStats, error) {
	if err := validDate(date); err != nil {
		return DayStats{}, err
	}
	roster, err := a.roster.List(ctx)
	if err != nil {
		return DayStats{}, err
	}
	records, err := a.records.ByDate(ctx, date)
	if err != nil {
		return DayStats{}, err
	}
	var members []subject.Subject
	for _, s := range roster {
		if s.Group == group {
			members = append(members, s)
		}
	}
	var inGroup []attendance.Record
	for _, r := range records {
		if r.Group == group {
			inGroup = append(inGroup, r)
		}
	}
	return tally(date, members, inGroup), nil
}

// RateForSubject is the rounded percentage of a subject's records that are
// Present, optionally bounded by start and/or end. It is 0 when there are
// no records. Days without a record are not part of the denominator.
func (a *Aggregator) RateForSubject(ctx context.Context, subjectID, start, end string) (int, error) {
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if err := validDate(d); err != nil {
			return 0, err
		}
	}
	records, err := a.records.BySubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	total, present := 0, 0
	for _, r := range records {
		if (start != "" && r.Date < start) || (end != "" && r.Date > end) {
			continue
		}
		total++
		if r.Status == attendance.Present {
			present++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return int(math.Round(float64(present) * 100 / float64(total))), nil
}

func tally(date string, roster []subject.Subject, records []attendance.Record) DayStats {
	st := DayStats{Date: date, Total: len(roster), Recorded: len(records)}
	recorded := make(map[string]struct{}, len(records))
	for _, r := range records {
		recorded[r.SubjectID] = struct{}{}
		switch r.Status {
		case attendance.Present:
			st.Present++
		case attendance.ExcusedAbsence:
			st.Excused++
		case attendance.Sick:
			st.Sick++
		case attendance.UnexcusedAbsence:
			st.AbsentExplicit++
		}
	}
	for _, s := range roster {
		if _, ok := recorded[s.ID]; !ok {
			st.AbsentImplicit++
		}
	}
	st.Absent = st.AbsentExplicit + st.AbsentImplicit
	return st
}

func validDate(d string) error {
	if _, err := clock.ParseDate(d); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalid)
	}
	return nil
}
