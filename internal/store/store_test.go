package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
)

type item struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

func newTestStore(t *testing.T, opts Options) (*Store, *Memory, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	if opts.Clock == nil {
		opts.Clock = fake
	}
	mem := NewMemory()
	return New(mem, opts), mem, fake
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t, Options{})
	ctx := context.Background()
	in := []item{{ID: "1", Name: "Ahmad", Tags: []string{"a"}}, {ID: "2", Name: "Siti"}}

	require.NoError(t, s.Put(ctx, "students", in, StatusAuto))

	var out []item
	found, err := s.Get(ctx, "students", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetMissingKey(t *testing.T) {
	s, _, _ := newTestStore(t, Options{})
	var out []item
	found, err := s.Get(context.Background(), "nothing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutDefaultStatusFollowsConnectivity(t *testing.T) {
	toggle := NewToggle(false)
	s, _, _ := newTestStore(t, Options{Connectivity: toggle})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []int{1}, StatusAuto))
	entry, ok, err := s.Entry(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Pending, entry.SyncStatus)

	toggle.Set(true)
	require.NoError(t, s.Put(ctx, "a", []int{1, 2}, StatusAuto))
	entry, _, err = s.Entry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Synced, entry.SyncStatus)
}

func TestPutExplicitHint(t *testing.T) {
	s, _, _ := newTestStore(t, Options{Connectivity: Static(false)})
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", []int{1}, Synced))
	entry, _, err := s.Entry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Synced, entry.SyncStatus)

	err = s.Put(ctx, "a", []int{1}, SyncStatus("bogus"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestLastModifiedNeverDecreases(t *testing.T) {
	s, _, fake := newTestStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []int{1}, StatusAuto))
	first, _, _ := s.Entry(ctx, "a")

	fake.Advance(-time.Hour)
	require.NoError(t, s.Put(ctx, "a", []int{2}, StatusAuto))
	second, _, _ := s.Entry(ctx, "a")
	assert.False(t, second.LastModifiedAt.Before(first.LastModifiedAt))

	fake.Advance(2 * time.Hour)
	require.NoError(t, s.Put(ctx, "a", []int{3}, StatusAuto))
	third, _, _ := s.Entry(ctx, "a")
	assert.True(t, third.LastModifiedAt.After(second.LastModifiedAt))
}

func TestMarkSyncedKeepsPayloadAndTimestamp(t *testing.T) {
	s, _, fake := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", []int{7}, StatusAuto))
	before, _, _ := s.Entry(ctx, "a")

	fake.Advance(time.Minute)
	require.NoError(t, s.MarkSynced(ctx, "a"))
	after, _, _ := s.Entry(ctx, "a")

	assert.Equal(t, Synced, after.SyncStatus)
	assert.Equal(t, before.LastModifiedAt, after.LastModifiedAt)
	assert.JSONEq(t, string(before.Payload), string(after.Payload))

	assert.ErrorIs(t, s.MarkSynced(ctx, "missing"), apperr.ErrNotFound)
}

func TestListPendingKeys(t *testing.T) {
	s, mem, _ := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "b", []int{1}, StatusAuto))
	require.NoError(t, s.Put(ctx, "a", []int{1}, StatusAuto))
	require.NoError(t, s.Put(ctx, "c", []int{1}, Synced))
	require.NoError(t, mem.Write(ctx, "junk", []byte("{not json")))

	keys, err := s.ListPendingKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, s.MarkError(ctx, "b"))
	keys, err = s.ListPendingKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	errKeys, err := s.ListErrorKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, errKeys)
}

func TestCorruptEntryFailOpen(t *testing.T) {
	s, mem, _ := newTestStore(t, Options{FailMode: FailOpen})
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, "students", []byte("{garbage")))

	var out []item
	found, err := s.Get(ctx, "students", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// payload that decodes as an entry but not as the requested type
	require.NoError(t, mem.Write(ctx, "students", []byte(`{"payload":{"x":1},"syncStatus":"synced","lastModifiedAt":"2024-03-01T08:00:00Z"}`)))
	found, err = s.Get(ctx, "students", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCorruptEntryFailClosed(t *testing.T) {
	s, mem, _ := newTestStore(t, Options{FailMode: FailClosed})
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, "students", []byte("{garbage")))

	var out []item
	_, err := s.Get(ctx, "students", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.True(t, errors.Is(err, apperr.ErrCorruptState))
}

func TestOnWriteObserver(t *testing.T) {
	var seen []SyncStatus
	s, _, _ := newTestStore(t, Options{OnWrite: func(_ string, st SyncStatus) { seen = append(seen, st) }})
	require.NoError(t, s.Put(context.Background(), "a", 1, StatusAuto))
	require.NoError(t, s.Put(context.Background(), "a", 2, Synced))
	assert.Equal(t, []SyncStatus{Pending, Synced}, seen)
}

func TestRemoveAndKeys(t *testing.T) {
	s, _, _ := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "b", 1, StatusAuto))
	require.NoError(t, s.Put(ctx, "a", 1, StatusAuto))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, s.Remove(ctx, "a"))
	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

func TestParseFailMode(t *testing.T) {
	m, err := ParseFailMode("closed")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, m)
	m, err = ParseFailMode("")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, m)
	_, err = ParseFailMode("sideways")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
