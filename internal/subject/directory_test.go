package subject

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/store"
)

func newDirectory(t *testing.T) (*Directory, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC))
	s := store.New(store.NewMemory(), store.Options{Clock: fake})
	return NewDirectory(s, fake, nil), fake
}

func seed(t *testing.T, d *Directory, code, name, group string) Subject {
	t.Helper()
	s, err := d.Create(context.Background(), NewSubject{ExternalCode: code, Name: name, Group: group})
	require.NoError(t, err)
	return s
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	d, _ := newDirectory(t)
	seed(t, d, "S1", "Ahmad Rizki", "XII IPA 1")
	seed(t, d, "S2", "Siti Nurhaliza", "XII IPA 1")

	_, err := d.Create(context.Background(), NewSubject{ExternalCode: "S1", Name: "Other", Group: "X"})
	assert.ErrorIs(t, err, ErrDuplicateCode)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	all, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateValidates(t *testing.T) {
	d, _ := newDirectory(t)
	_, err := d.Create(context.Background(), NewSubject{ExternalCode: " ", Name: "A", Group: "G"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestLookups(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	a := seed(t, d, "2024001", "Ahmad Rizki", "XII IPA 1")
	seed(t, d, "2024004", "Dewi Anggraini", "XII IPS 1")

	got, err := d.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = d.GetByCode(ctx, "2024001")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = d.Resolve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	got, err = d.Resolve(ctx, " 2024001 ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = d.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	groups, err := d.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"XII IPA 1", "XII IPS 1"}, groups)

	ips, err := d.ListByGroup(ctx, "XII IPS 1")
	require.NoError(t, err)
	assert.Len(t, ips, 1)

	found, err := d.Search(ctx, "dewi")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Dewi Anggraini", found[0].Name)

	st, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByGroup["XII IPA 1"])
}

func TestUpdate(t *testing.T) {
	d, fake := newDirectory(t)
	ctx := context.Background()
	a := seed(t, d, "S1", "Ahmad", "A")
	seed(t, d, "S2", "Budi", "A")

	fake.Advance(time.Hour)
	name := "Ahmad Rizki"
	updated, err := d.Update(ctx, a.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ahmad Rizki", updated.Name)
	assert.Equal(t, "S1", updated.ExternalCode)
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))

	taken := "S2"
	_, err = d.Update(ctx, a.ID, Patch{ExternalCode: &taken})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	same := "S1"
	_, err = d.Update(ctx, a.ID, Patch{ExternalCode: &same})
	assert.NoError(t, err)

	_, err = d.Update(ctx, "missing", Patch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsHard(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	a := seed(t, d, "S1", "Ahmad", "A")

	require.NoError(t, d.Delete(ctx, a.ID))
	_, err := d.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.Delete(ctx, a.ID), ErrNotFound)

	// the code is free again
	_, err = d.Create(ctx, NewSubject{ExternalCode: "S1", Name: "New", Group: "A"})
	assert.NoError(t, err)
}
