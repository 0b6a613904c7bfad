package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	schema string
	read   string
	write  string
	delete string
	keys   string
}

var sqliteDialect = dialect{
	schema: `
	CREATE TABLE IF NOT EXISTS record_entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	read:   `SELECT value FROM record_entries WHERE key = ?`,
	write:  `INSERT INTO record_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	delete: `DELETE FROM record_entries WHERE key = ?`,
	keys:   `SELECT key FROM record_entries`,
}

var postgresDialect = dialect{
	schema: `
	CREATE TABLE IF NOT EXISTS record_entries (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	read:   `SELECT value FROM record_entries WHERE key = $1`,
	write:  `INSERT INTO record_entries (key, value, updated_at) VALUES ($1, $2, NOW())
	         ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	delete: `DELETE FROM record_entries WHERE key = $1`,
	keys:   `SELECT key FROM record_entries`,
}

// SQL is a Backend over database/sql. Each write is one upsert statement.
type SQL struct {
	db *sql.DB
	q  dialect
}

// NewSQLite opens (and migrates) a sqlite file, creating its directory.
func NewSQLite(path string) (*SQL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newSQL(db, sqliteDialect)
}

// NewPostgres connects to Postgres through pgx with sane pool defaults.
func NewPostgres(connString string) (*SQL, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return newSQL(db, postgresDialect)
}

func newSQL(db *sql.DB, q dialect) (*SQL, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ExecContext(ctx, q.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQL{db: db, q: q}, nil
}

func (s *SQL) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.q.read, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *SQL) Write(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.q.write, key, value)
	return err
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q.delete, key)
	return err
}

func (s *SQL) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q.keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying connection.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
