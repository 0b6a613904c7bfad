// Package subject manages the roster of trackable subjects.
package subject

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/store"
)

// CollectionKey is the store key of the roster.
const CollectionKey = "students"

var (
	ErrNotFound      = fmt.Errorf("subject %w", apperr.ErrNotFound)
	ErrDuplicateCode = fmt.Errorf("subject external code already in use: %w", apperr.ErrConflict)
	ErrInvalid       = fmt.Errorf("subject %w", apperr.ErrInvalid)
)

// Subject is one roster entry.
type Subject struct {
	ID           string    `json:"id"`
	ExternalCode string    `json:"externalCode"`
	OwnerRef     string    `json:"ownerRef"`
	Name         string    `json:"name"`
	Group        string    `json:"group"`
	Contact      string    `json:"contact,omitempty"`
	PhotoRef     string    `json:"photoRef,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewSubject holds the fields supplied on create.
type NewSubject struct {
	ExternalCode string
	OwnerRef     string
	Name         string
	Group        string
	Contact      string
	PhotoRef     string
}

// Patch carries optional field replacements; nil leaves a field unchanged.
type Patch struct {
	ExternalCode *string
	OwnerRef     *string
	Name         *string
	Group        *string
	Contact      *string
	PhotoRef     *string
}

// Stats summarizes the roster.
type Stats struct {
	Total   int            `json:"total"`
	ByGroup map[string]int `json:"byGroup"`
}

// Directory is CRUD over the roster collection.
type Directory struct {
	subjects *store.Collection[Subject]
	clock    clock.Clock
	log      *zap.Logger
}

// NewDirectory binds a Directory to s.
func NewDirectory(s *store.Store, c clock.Clock, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Directory{
		subjects: store.NewCollection[Subject](s, CollectionKey),
		clock:    c,
		log:      log,
	}
}

// Create adds a subject. The external code must be unused.
func (d *Directory) Create(ctx context.Context, in NewSubject) (Subject, error) {
	in.ExternalCode = strings.TrimSpace(in.ExternalCode)
	in.Name = strings.TrimSpace(in.Name)
	in.Group = strings.TrimSpace(in.Group)
	if in.ExternalCode == "" || in.Name == "" || in.Group == "" {
		return Subject{}, fmt.Errorf("%w: external code, name and group are required", ErrInvalid)
	}

	now := d.clock.Now()
	created := Subject{
		ID:           uuid.NewString(),
		ExternalCode: in.ExternalCode,
		OwnerRef:     in.OwnerRef,
		Name:         in.Name,
		Group:        in.Group,
		Contact:      in.Contact,
		PhotoRef:     in.PhotoRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := d.subjects.Update(ctx, func(items []Subject) ([]Subject, error) {
		if codeTaken(items, created.ExternalCode, "") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, created.ExternalCode)
		}
		return append(items, created), nil
	})
	if err != nil {
		return Subject{}, err
	}
	d.log.Info("subject created", zap.String("subject_id", created.ID), zap.String("group", created.Group))
	return created, nil
}

// Get returns the subject with id.
func (d *Directory) Get(ctx context.Context, id string) (Subject, error) {
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return Subject{}, err
	}
	for _, s := range items {
		if s.ID == id {
			return s, nil
		}
	}
	return Subject{}, ErrNotFound
}

// GetByCode returns the subject with the given external code.
func (d *Directory) GetByCode(ctx context.Context, code string) (Subject, error) {
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return Subject{}, err
	}
	for _, s := range items {
		if s.ExternalCode == code {
			return s, nil
		}
	}
	return Subject{}, ErrNotFound
}

// Resolve looks ref up as an id first and as an external code second.
func (d *Directory) Resolve(ctx context.Context, ref string) (Subject, error) {
	ref = strings.TrimSpace(ref)
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return Subject{}, err
	}
	for _, s := range items {
		if s.ID == ref {
			return s, nil
		}
	}
	for _, s := range items {
		if s.ExternalCode == ref {
			return s, nil
		}
	}
	return Subject{}, ErrNotFound
}

// List returns the whole roster in insertion order.
func (d *Directory) List(ctx context.Context) ([]Subject, error) {
	return d.subjects.Load(ctx)
}

// ListByGroup returns the subjects of one group.
func (d *Directory) ListByGroup(ctx context.Context, group string) ([]Subject, error) {
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Subject
	for _, s := range items {
		if s.Group == group {
			out = append(out, s)
		}
	}
	return out, nil
}

// Groups returns the distinct group names, sorted.
func (d *Directory) Groups(ctx context.Context) ([]string, error) {
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, s := range items {
		if _, ok := seen[s.Group]; !ok {
			seen[s.Group] = struct{}{}
			out = append(out, s.Group)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Search matches query case-insensitively against name and group, and as a
// substring of the external code.
func (d *Directory) Search(ctx context.Context, query string) ([]Subject, error) {
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)
	var out []Subject
	for _, s := range items {
		if strings.Contains(strings.ToLower(s.Name), lower) ||
			strings.Contains(s.ExternalCode, query) ||
			strings.Contains(strings.ToLower(s.Group), lower) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Update applies p to the subject with id.
func (d *Directory) Update(ctx context.Context, id string, p Patch) (Subject, error) {
	var updated Subject
	err := d.subjects.Update(ctx, func(items []Subject) ([]Subject, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		s := items[idx]
		if p.ExternalCode != nil {
			code := strings.TrimSpace(*p.ExternalCode)
			if code == "" {
				return nil, fmt.Errorf("%w: external code is required", ErrInvalid)
			}
			if codeTaken(items, code, id) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, code)
			}
			s.ExternalCode = code
		}
		if p.Name != nil {
			if strings.TrimSpace(*p.Name) == "" {
				return nil, fmt.Errorf("%w: name is required", ErrInvalid)
			}
			s.Name = strings.TrimSpace(*p.Name)
		}
		if p.Group != nil {
			if strings.TrimSpace(*p.Group) == "" {
				return nil, fmt.Errorf("%w: group is required", ErrInvalid)
			}
			s.Group = strings.TrimSpace(*p.Group)
		}
		if p.OwnerRef != nil {
			s.OwnerRef = *p.OwnerRef
		}
		if p.Contact != nil {
			s.Contact = *p.Contact
		}
		if p.PhotoRef != nil {
			s.PhotoRef = *p.PhotoRef
		}
		s.UpdatedAt = d.clock.Now()
		items[idx] = s
		updated = s
		return items, nil
	})
	if err != nil {
		return Subject{}, err
	}
	return updated, nil
}

// Delete removes the subject with id. Attendance records keep their
// snapshot of the subject.
func (d *Directory) Delete(ctx context.Context, id string) error {
	err := d.subjects.Update(ctx, func(items []Subject) ([]Subject, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
	if err != nil {
		return err
	}
	d.log.Info("subject deleted", zap.String("subject_id", id))
	return nil
}

// Stats counts subjects overall and per group.
func (d *Directory) Stats(ctx context.Context) (Stats, error) {
	items, err := d.subjects.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(items), ByGroup: make(map[string]int)}
	for _, s := range items {
		st.ByGroup[s.Group]++
	}
	return st, nil
}

func indexOf(items []Subject, id string) int {
	for i, s := range items {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func codeTaken(items []Subject, code, exceptID string) bool {
	for _, s := range items {
		if s.ExternalCode == code && s.ID != exceptID {
			return true
		}
	}
	return false
}
