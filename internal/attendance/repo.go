package attendance

import (
	"context"
	"sort"

	"rollcall/internal/store"
)

// CollectionKey is the store key of the attendance records.
const CollectionKey = "attendances"

// Repository persists attendance records as one store collection.
type Repository struct {
	records *store.Collection[Record]
}

// NewRepository creates a repo.
func NewRepository(s *store.Store) *Repository {
	return &Repository{records: store.NewCollection[Record](s, CollectionKey)}
}

// All returns every record in insertion order.
func (r *Repository) All(ctx context.Context) ([]Record, error) {
	return r.records.Load(ctx)
}

// Filter returns the records keep accepts, in insertion order.
func (r *Repository) Filter(ctx context.Context, keep func(Record) bool) ([]Record, error) {
	items, err := r.records.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range items {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Mutate applies fn under the collection lock.
func (r *Repository) Mutate(ctx context.Context, fn func([]Record) ([]Record, error)) error {
	return r.records.Update(ctx, fn)
}

// newestFirst orders records by date then time, descending.
func newestFirst(items []Record) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date > items[j].Date
		}
		return items[i].Time > items[j].Time
	})
}
