package attendance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/notify"
	"rollcall/internal/payload"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/subject"
)

type recordingSink struct {
	mu       sync.Mutex
	absences []string
}

func (r *recordingSink) NotifyAbsence(_ context.Context, subjectID, _ string) {
	r.mu.Lock()
	r.absences = append(r.absences, subjectID)
	r.mu.Unlock()
}

func (r *recordingSink) NotifyLeaveDecision(context.Context, string, notify.Outcome) {}

type fixture struct {
	svc      *Service
	store    *store.Store
	sessions *session.Manager
	dir      *subject.Directory
	clock    *clock.Fake
	sink     *recordingSink
	outcomes map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC))
	s := store.New(store.NewMemory(), store.Options{Clock: fake})
	f := &fixture{
		store:    s,
		sessions: session.NewManager(s, fake, session.Options{}),
		dir:      subject.NewDirectory(s, fake, nil),
		clock:    fake,
		sink:     &recordingSink{},
		outcomes: map[string]int{},
	}
	var mu sync.Mutex
	f.svc = NewService(s, f.sessions, f.dir, fake, Options{
		Sink: f.sink,
		OnOutcome: func(outcome string) {
			mu.Lock()
			f.outcomes[outcome]++
			mu.Unlock()
		},
	})
	return f
}

func (f *fixture) subject(t *testing.T, code, name, group string) subject.Subject {
	t.Helper()
	s, err := f.dir.Create(context.Background(), subject.NewSubject{ExternalCode: code, Name: name, Group: group})
	require.NoError(t, err)
	return s
}

func (f *fixture) session(t *testing.T) session.Session {
	t.Helper()
	s, err := f.sessions.CreateSession(context.Background(), session.Issuer{ID: "admin", Name: "Admin"})
	require.NoError(t, err)
	return s
}

func TestRecordExpiryAndRegenerate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "2024001", "Ahmad Rizki", "XII IPA 1")
	b := f.subject(t, "2024002", "Siti Nurhaliza", "XII IPA 1")
	sess := f.session(t)
	require.Equal(t, "2024-03-01", sess.EffectiveDate)

	rec, err := f.svc.Record(ctx, a.ID, sess.ID, Present)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", rec.Date)
	assert.Equal(t, "07:00:00", rec.Time)
	assert.Equal(t, Snapshot{SubjectName: "Ahmad Rizki", Group: "XII IPA 1"}, rec.Snapshot)

	_, err = f.svc.Record(ctx, a.ID, sess.ID, Present)
	assert.ErrorIs(t, err, ErrAlreadyRecorded)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.Record(ctx, b.ID, sess.ID, Present)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = f.sessions.Regenerate(ctx, sess.ID)
	require.NoError(t, err)
	rec, err = f.svc.Record(ctx, b.ID, sess.ID, Present)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", rec.Date)

	day, err := f.svc.ByDate(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, day, 2)

	assert.Equal(t, 2, f.outcomes["ok"])
	assert.Equal(t, 1, f.outcomes["conflict"])
	assert.Equal(t, 1, f.outcomes["expired"])
}

func TestRecordCheckOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.session(t)

	_, err := f.svc.Record(ctx, "ghost", "no-session", Present)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.Record(ctx, "ghost", sess.ID, Present)
	assert.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestRecordRejectsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	sess := f.session(t)
	_, err := f.svc.Record(context.Background(), a.ID, sess.ID, "late")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestRecordDefaultsToPresent(t *testing.T) {
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	sess := f.session(t)
	rec, err := f.svc.Record(context.Background(), a.ID, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, Present, rec.Status)
}

func TestRecordConcurrentUniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	sess := f.session(t)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Record(ctx, a.ID, sess.ID, Present)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyRecorded)
	}
	assert.Equal(t, 1, ok)

	recs, err := f.svc.BySubject(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecordsSurviveSubjectChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "Ahmad Rizki", "XII IPA 1")
	sess := f.session(t)
	rec, err := f.svc.Record(ctx, a.ID, sess.ID, Present)
	require.NoError(t, err)

	name := "Ahmad R."
	_, err = f.dir.Update(ctx, a.ID, subject.Patch{Name: &name})
	require.NoError(t, err)
	require.NoError(t, f.dir.Delete(ctx, a.ID))

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ahmad Rizki", got.SubjectName)

	byGroup, err := f.svc.ByGroup(ctx, "XII IPA 1", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, byGroup, 1)
}

func TestUpdateStatusAndProof(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	sess := f.session(t)
	rec, err := f.svc.Record(ctx, a.ID, sess.ID, Present)
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(ctx, rec.ID, Sick, "fever")
	require.NoError(t, err)
	assert.Equal(t, Sick, updated.Status)
	assert.Equal(t, "fever", updated.Note)

	updated, err = f.svc.UpdateStatus(ctx, rec.ID, ExcusedAbsence, "")
	require.NoError(t, err)
	assert.Equal(t, "fever", updated.Note)

	updated, err = f.svc.AttachProof(ctx, rec.ID, "https://img.example/proof.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/proof.jpg", updated.ProofRef)
	assert.Equal(t, ExcusedAbsence, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, "missing", Sick, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.UpdateStatus(ctx, rec.ID, "bogus", "")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestQueriesOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G1")
	b := f.subject(t, "S2", "B", "G2")

	for day := 0; day < 3; day++ {
		sess := f.session(t)
		_, err := f.svc.Record(ctx, a.ID, sess.ID, Present)
		require.NoError(t, err)
		if day == 1 {
			_, err = f.svc.Record(ctx, b.ID, sess.ID, Sick)
			require.NoError(t, err)
		}
		f.clock.Advance(24 * time.Hour)
	}

	hist, err := f.svc.BySubject(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "2024-03-03", hist[0].Date)
	assert.Equal(t, "2024-03-01", hist[2].Date)

	ranged, err := f.svc.ByDateRange(ctx, "2024-03-02", "2024-03-03")
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	_, err = f.svc.ByDateRange(ctx, "03/02/2024", "2024-03-03")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	g2, err := f.svc.ByGroup(ctx, "G2", "")
	require.NoError(t, err)
	assert.Len(t, g2, 1)
}

func TestRedeemSubjectScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "2024001", "A", "G")
	b := f.subject(t, "2024002", "B", "G")

	_, err := f.svc.Redeem(ctx, "2024001")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	f.session(t)
	rec, err := f.svc.Redeem(ctx, "2024001")
	require.NoError(t, err)
	assert.Equal(t, a.ID, rec.SubjectID)

	scan, err := payload.EncodeSubject(payload.Subject{SubjectID: b.ID, ExternalCode: b.ExternalCode})
	require.NoError(t, err)
	rec, err = f.svc.Redeem(ctx, scan)
	require.NoError(t, err)
	assert.Equal(t, b.ID, rec.SubjectID)

	_, err = f.svc.Redeem(ctx, "2024001")
	assert.ErrorIs(t, err, ErrAlreadyRecorded)

	_, err = f.svc.Redeem(ctx, "unknown-code")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = f.svc.Redeem(ctx, `{"kind":`)
	assert.ErrorIs(t, err, apperr.ErrMalformed)
}

func TestRedeemRejectsWrongKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	sess := f.session(t)
	sessionScan, err := session.Payload(sess)
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, sessionScan)
	assert.ErrorIs(t, err, ErrWrongPayload)

	_, err = f.svc.RedeemSession(ctx, "S1", a.ID)
	assert.ErrorIs(t, err, ErrWrongPayload)
}

func TestRedeemSessionScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	b := f.subject(t, "S2", "B", "G")
	sess := f.session(t)
	stale, err := session.Payload(sess)
	require.NoError(t, err)

	rec, err := f.svc.RedeemSession(ctx, stale, "S1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, rec.SubjectID)

	regenerated, err := f.sessions.Regenerate(ctx, sess.ID)
	require.NoError(t, err)

	_, err = f.svc.RedeemSession(ctx, stale, b.ID)
	assert.ErrorIs(t, err, ErrTokenSuperseded)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	fresh, err := session.Payload(regenerated)
	require.NoError(t, err)
	_, err = f.svc.RedeemSession(ctx, fresh, b.ID)
	require.NoError(t, err)

	_, err = f.svc.RedeemSession(ctx, fresh, "nobody")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.RedeemSession(ctx, fresh, b.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestNotifyAbsences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.subject(t, "S1", "A", "G")
	b := f.subject(t, "S2", "B", "G")
	c := f.subject(t, "S3", "C", "G")
	sess := f.session(t)
	_, err := f.svc.Record(ctx, b.ID, sess.ID, Present)
	require.NoError(t, err)

	absent, err := f.svc.NotifyAbsences(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, absent)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, f.sink.absences)

	_, err = f.svc.NotifyAbsences(ctx, "yesterday")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestNotifyAbsencesBeyondQueueCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 300; i++ {
		f.subject(t, fmt.Sprintf("S%03d", i), fmt.Sprintf("Subject %d", i), "G")
	}
	q := queue.NewInMemory(256)
	sink := notify.NewQueueSink(q, nil)
	svc := NewService(f.store, f.sessions, f.dir, f.clock, Options{Sink: sink})

	type result struct {
		absent []string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		absent, err := svc.NotifyAbsences(ctx, "2024-03-01")
		done <- result{absent, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Len(t, res.absent, 300)
	case <-time.After(3 * time.Second):
		t.Fatal("NotifyAbsences blocked on a full notification queue")
	}
	assert.Equal(t, 256, q.Len())
	assert.EqualValues(t, 44, sink.Dropped())
}

func TestIsLate(t *testing.T) {
	rec := Record{Status: Present, Time: "07:31:00"}
	late, err := rec.IsLate("07:30")
	require.NoError(t, err)
	assert.True(t, late)

	rec.Time = "07:30:00"
	late, err = rec.IsLate("07:30")
	require.NoError(t, err)
	assert.False(t, late)

	rec.Status = Sick
	rec.Time = "09:00:00"
	late, err = rec.IsLate("07:30")
	require.NoError(t, err)
	assert.False(t, late)

	rec.Status = Present
	_, err = rec.IsLate("7.30")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Sick ")
	require.NoError(t, err)
	assert.Equal(t, Sick, s)
	_, err = ParseStatus("late")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
