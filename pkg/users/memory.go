package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory for development and tests
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// FindByEmail returns the record owning email
func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return d.byID[id].Clone(), nil
}

// FindByID returns the record with the given ID
func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// FindAll returns every record ordered by creation time
func (d *MemoryDirectory) FindAll(ctx context.Context) ([]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	all := make([]*User, 0, len(d.byID))
	for _, u := range d.byID {
		all = append(all, u.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

// Save creates or updates a record. The check-and-insert runs under one lock,
// so concurrent creates for the same email yield exactly one record.
func (d *MemoryDirectory) Save(ctx context.Context, user *User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := user.Clone()
	if owner, ok := d.byEmail[rec.Email]; ok && owner != rec.ID {
		return nil, ErrEmailTaken
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if existing, ok := d.byID[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
		if existing.Email != rec.Email {
			delete(d.byEmail, existing.Email)
		}
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.now().UTC()
	}

	d.byID[rec.ID] = rec
	d.byEmail[rec.Email] = rec.ID
	return rec.Clone(), nil
}
