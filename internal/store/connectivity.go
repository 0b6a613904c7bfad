package store

import "sync/atomic"

// Connectivity reports whether the remote system of record is reachable.
type Connectivity interface {
	Online() bool
}

// Static is a fixed connectivity assertion.
type Static bool

// Online implements Connectivity.
func (s Static) Online() bool { return bool(s) }

// Toggle is a connectivity flag flipped at runtime by an operator or a health check.
type Toggle struct {
	online atomic.Bool
}

// NewToggle returns a Toggle starting at online.
func NewToggle(online bool) *Toggle {
	t := &Toggle{}
	t.online.Store(online)
	return t
}

// Online implements Connectivity.
func (t *Toggle) Online() bool { return t.online.Load() }

// Set changes the flag and returns the previous value.
func (t *Toggle) Set(online bool) bool { return t.online.Swap(online) }
