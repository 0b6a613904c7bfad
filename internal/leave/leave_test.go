package leave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/notify"
	"rollcall/internal/store"
	"rollcall/internal/subject"
)

type decision struct {
	subjectID string
	outcome   notify.Outcome
}

type recordingSink struct {
	decisions []decision
}

func (r *recordingSink) NotifyAbsence(context.Context, string, string) {}

func (r *recordingSink) NotifyLeaveDecision(_ context.Context, subjectID string, outcome notify.Outcome) {
	r.decisions = append(r.decisions, decision{subjectID, outcome})
}

func newService(t *testing.T) (*Service, subject.Subject, *recordingSink, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	s := store.New(store.NewMemory(), store.Options{Clock: fake})
	dir := subject.NewDirectory(s, fake, nil)
	subj, err := dir.Create(context.Background(), subject.NewSubject{ExternalCode: "S1", Name: "Ahmad Rizki", Group: "XII IPA 1"})
	require.NoError(t, err)
	sink := &recordingSink{}
	return NewService(s, dir, sink, fake, nil), subj, sink, fake
}

func TestSubmitAndApprove(t *testing.T) {
	ctx := context.Background()
	svc, subj, sink, _ := newService(t)

	req, err := svc.Submit(ctx, Submission{
		SubjectID: subj.ID, Type: Sick, StartDate: "2024-03-04", EndDate: "2024-03-06", Reason: "flu",
	})
	require.NoError(t, err)
	assert.Equal(t, Pending, req.Status)
	assert.Equal(t, "Ahmad Rizki", req.SubjectName)
	assert.Equal(t, 3, req.Days())

	approved, err := svc.Approve(ctx, req.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, Approved, approved.Status)
	assert.Equal(t, "admin", approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, []decision{{subj.ID, notify.Approved}}, sink.decisions)

	_, err = svc.Reject(ctx, req.ID, "admin")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, sink.decisions, 1)
}

func TestSubmitValidates(t *testing.T) {
	ctx := context.Background()
	svc, subj, _, _ := newService(t)

	cases := []Submission{
		{SubjectID: subj.ID, Type: "vacation", StartDate: "2024-03-04", EndDate: "2024-03-04", Reason: "x"},
		{SubjectID: subj.ID, Type: Sick, StartDate: "2024-03-04", EndDate: "2024-03-04", Reason: "  "},
		{SubjectID: subj.ID, Type: Sick, StartDate: "2024-03-05", EndDate: "2024-03-04", Reason: "x"},
		{SubjectID: subj.ID, Type: Sick, StartDate: "4 March", EndDate: "2024-03-04", Reason: "x"},
	}
	for _, in := range cases {
		_, err := svc.Submit(ctx, in)
		assert.ErrorIs(t, err, apperr.ErrInvalid, "%+v", in)
	}

	_, err := svc.Submit(ctx, Submission{SubjectID: "ghost", Type: Family, StartDate: "2024-03-04", EndDate: "2024-03-04", Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestQueriesAndStats(t *testing.T) {
	ctx := context.Background()
	svc, subj, sink, fake := newService(t)

	var ids []string
	for i := 0; i < 3; i++ {
		req, err := svc.Submit(ctx, Submission{
			SubjectID: subj.ID, Type: Permission, StartDate: "2024-03-04", EndDate: "2024-03-04", Reason: "event",
		})
		require.NoError(t, err)
		ids = append(ids, req.ID)
		fake.Advance(time.Minute)
	}
	_, err := svc.Reject(ctx, ids[0], "teacher")
	require.NoError(t, err)
	assert.Equal(t, notify.Rejected, sink.decisions[0].outcome)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[2], pending[0].ID)

	mine, err := svc.BySubject(ctx, subj.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 2, Rejected: 1}, st)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Approve(ctx, "missing", "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}
