package users

import (
	"context"
	"errors"
	"time"
)

// Roles carried on user records. Only RoleStaff is ever assigned by login.
const (
	RoleStaff   = "staff"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// DefaultRole is the role assigned to every user created at first login
const DefaultRole = RoleStaff

var (
	// ErrNotFound is returned when no record matches a lookup
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Save when another record already owns the email
	ErrEmailTaken = errors.New("email already registered")
)

// User is the identity and profile of a principal.
// Name, AvatarURL and Department are optional and nil when absent.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       *string   `json:"name"`
	AvatarURL  *string   `json:"avatarUrl"`
	Role       string    `json:"role"`
	Department *string   `json:"department"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers can't mutate directory-owned records
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Name = cloneString(u.Name)
	c.AvatarURL = cloneString(u.AvatarURL)
	c.Department = cloneString(u.Department)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Directory is the persistent store of user records.
//
// Emails are unique and compared case-sensitively. Save assigns a new ID when
// the record has none and returns ErrEmailTaken when a different record already
// owns the email; it never merges two records.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindAll(ctx context.Context) ([]*User, error)
	Save(ctx context.Context, user *User) (*User, error)
}
