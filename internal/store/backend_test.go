package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Write(ctx, "sessions", []byte(`{"a":1}`)))
	require.NoError(t, b.Write(ctx, "sessions", []byte(`{"a":2}`)))
	require.NoError(t, b.Write(ctx, "students", []byte(`[]`)))

	v, err := b.Read(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(v))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sessions", "students"}, keys)

	require.NoError(t, b.Delete(ctx, "sessions"))
	_, err = b.Read(ctx, "sessions")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "rollcall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollcall.db")
	ctx := context.Background()

	b, err := NewSQLite(path)
	require.NoError(t, err)
	s := New(b, Options{})
	require.NoError(t, s.Put(ctx, "students", []item{{ID: "1", Name: "Ahmad"}}, StatusAuto))
	require.NoError(t, s.Close())

	b, err = NewSQLite(path)
	require.NoError(t, err)
	s = New(b, Options{})
	t.Cleanup(func() { _ = s.Close() })

	var out []item
	found, err := s.Get(ctx, "students", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ahmad", out[0].Name)

	pending, err := s.ListPendingKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"students"}, pending)
}

func TestRedisBackend(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := NewRedisClient(server.Addr())
	t.Cleanup(func() { _ = client.Close() })

	// a foreign key outside the prefix must stay invisible
	server.Set("other:thing", "x")

	b := NewRedis(client, "rollcall:")
	assert.True(t, b.Healthy(context.Background()))
	exerciseBackend(t, b)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("ROLLCALL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ROLLCALL_TEST_DATABASE_URL not set")
	}
	b, err := NewPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = b.db.Exec(`DELETE FROM record_entries`)
		_ = b.Close()
	})
	_, err = b.db.Exec(`DELETE FROM record_entries`)
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestOpenBackend(t *testing.T) {
	b, err := OpenBackend(BackendConfig{Kind: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	_, err = OpenBackend(BackendConfig{Kind: "tape"})
	assert.Error(t, err)
}
