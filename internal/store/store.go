// Package store is the local-first persistence layer.
//
// Every key holds one whole collection snapshot wrapped in an Entry that also
// records whether the snapshot is reconciled with the remote system of record
// (Synced), only accepted locally (Pending), or failed reconciliation (Error).
// Writes replace the full value of a key; there are no row-level updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
)

// SyncStatus tells a remote reconciler what to do with an entry.
type SyncStatus string

const (
	// StatusAuto asks Put to derive the status from current connectivity.
	StatusAuto SyncStatus = ""
	Synced     SyncStatus = "synced"
	Pending    SyncStatus = "pending"
	Error      SyncStatus = "error"
)

// Valid reports whether s is one of the persisted statuses.
func (s SyncStatus) Valid() bool {
	return s == Synced || s == Pending || s == Error
}

// FailMode selects how undecodable stored entries are surfaced on read.
type FailMode int

const (
	// FailOpen treats a corrupt entry as absent.
	FailOpen FailMode = iota
	// FailClosed returns ErrCorrupt for a corrupt entry.
	FailClosed
)

// ParseFailMode accepts "open" or "closed".
func ParseFailMode(s string) (FailMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown fail mode %q: %w", s, apperr.ErrInvalid)
	}
}

func (m FailMode) String() string {
	if m == FailClosed {
		return "closed"
	}
	return "open"
}

var (
	// ErrNotFound is returned by backends for an absent key and by the
	// status operations when there is nothing to flip.
	ErrNotFound = fmt.Errorf("store: entry %w", apperr.ErrNotFound)
	// ErrCorrupt wraps decode failures of stored entries.
	ErrCorrupt = fmt.Errorf("store: %w", apperr.ErrCorruptState)
)

// Entry is the persisted layout of one key.
type Entry struct {
	Payload        json.RawMessage `json:"payload"`
	SyncStatus     SyncStatus      `json:"syncStatus"`
	LastModifiedAt time.Time       `json:"lastModifiedAt"`
}

// Backend stores opaque bytes per key. Write must replace the value
// atomically; Read returns ErrNotFound for an absent key.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Options tune a Store. Zero values are usable.
type Options struct {
	Connectivity Connectivity
	FailMode     FailMode
	Clock        clock.Clock
	Logger       *zap.Logger
	// OnWrite is called after every successful Put.
	OnWrite func(key string, status SyncStatus)
}

// Store wraps a Backend with sync-status bookkeeping.
type Store struct {
	backend Backend
	conn    Connectivity
	mode    FailMode
	clock   clock.Clock
	log     *zap.Logger
	onWrite func(string, SyncStatus)

	// metaMu serializes read-modify-write of entry metadata.
	metaMu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Store over backend.
func New(backend Backend, opts Options) *Store {
	s := &Store{
		backend: backend,
		conn:    opts.Connectivity,
		mode:    opts.FailMode,
		clock:   opts.Clock,
		log:     opts.Logger,
		onWrite: opts.OnWrite,
		locks:   make(map[string]*sync.Mutex),
	}
	if s.conn == nil {
		s.conn = Static(false)
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Online reports the current connectivity assertion.
func (s *Store) Online() bool { return s.conn.Online() }

// FailMode returns the configured corrupt-entry policy.
func (s *Store) FailMode() FailMode { return s.mode }

// Put writes a full snapshot of payload under key. With StatusAuto the status
// is Synced when online and Pending otherwise.
func (s *Store) Put(ctx context.Context, key string, payload any, hint SyncStatus) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	status := hint
	if status == StatusAuto {
		status = Pending
		if s.conn.Online() {
			status = Synced
		}
	}
	if !status.Valid() {
		return fmt.Errorf("store: sync status %q: %w", status, apperr.ErrInvalid)
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	now := s.clock.Now()
	if prev, ok := s.readEntry(ctx, key); ok && now.Before(prev.LastModifiedAt) {
		now = prev.LastModifiedAt
	}
	if err := s.writeEntry(ctx, key, Entry{Payload: raw, SyncStatus: status, LastModifiedAt: now}); err != nil {
		return err
	}
	if s.onWrite != nil {
		s.onWrite(key, status)
	}
	return nil
}

// Get decodes the payload under key into out. found is false when the key is
// absent, or corrupt under FailOpen; out is unspecified in that case.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	entry, ok, err := s.Entry(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		return false, s.corrupt(key, err)
	}
	return true, nil
}

// Entry returns the full stored entry for key.
func (s *Store) Entry(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.backend.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: read %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, s.corrupt(key, err)
	}
	return entry, true, nil
}

// ListPendingKeys returns every key whose status is Pending, sorted.
// Undecodable entries are skipped.
func (s *Store) ListPendingKeys(ctx context.Context) ([]string, error) {
	return s.keysWithStatus(ctx, Pending)
}

// ListErrorKeys returns every key whose reconciliation failed, sorted.
func (s *Store) ListErrorKeys(ctx context.Context) ([]string, error) {
	return s.keysWithStatus(ctx, Error)
}

func (s *Store) keysWithStatus(ctx context.Context, status SyncStatus) ([]string, error) {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	var out []string
	for _, key := range keys {
		entry, ok := s.readEntry(ctx, key)
		if ok && entry.SyncStatus == status {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MarkSynced flips the status of key to Synced, leaving payload and
// timestamp untouched.
func (s *Store) MarkSynced(ctx context.Context, key string) error {
	return s.setStatus(ctx, key, Synced)
}

// MarkError flags key as having failed reconciliation.
func (s *Store) MarkError(ctx context.Context, key string) error {
	return s.setStatus(ctx, key, Error)
}

func (s *Store) setStatus(ctx context.Context, key string, status SyncStatus) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	raw, err := s.backend.Read(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("store: read %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	entry.SyncStatus = status
	return s.writeEntry(ctx, key, entry)
}

// Remove deletes key entirely.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// lockFor returns the exclusive lock guarding read-modify-write of key.
func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}

func (s *Store) readEntry(ctx context.Context, key string) (Entry, bool) {
	raw, err := s.backend.Read(ctx, key)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (s *Store) writeEntry(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: encode entry %s: %w", key, err)
	}
	if err := s.backend.Write(ctx, key, raw); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) corrupt(key string, cause error) error {
	if s.mode == FailClosed {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, cause)
	}
	s.log.Warn("corrupt entry treated as empty", zap.String("key", key), zap.Error(cause))
	return nil
}
