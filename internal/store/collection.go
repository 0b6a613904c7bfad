package store

import "context"

// Collection is a typed view of one key holding a []T snapshot.
type Collection[T any] struct {
	store *Store
	key   string
}

// NewCollection binds a collection to key. Every Collection over the same
// Store and key shares one lock.
func NewCollection[T any](s *Store, key string) *Collection[T] {
	return &Collection[T]{store: s, key: key}
}

// Key returns the storage key.
func (c *Collection[T]) Key() string { return c.key }

// Load returns the current snapshot; a missing key is an empty collection.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	var items []T
	ok, err := c.store.Get(ctx, c.key, &items)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return items, nil
}

// Update runs fn on the current snapshot under the collection's exclusive
// lock and persists its result. If fn fails nothing is written. fn must not
// call Update on the same collection.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	mu := c.store.lockFor(c.key)
	mu.Lock()
	defer mu.Unlock()

	items, err := c.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	if next == nil {
		next = []T{}
	}
	return c.store.Put(ctx, c.key, next, StatusAuto)
}
