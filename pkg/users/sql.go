package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder style and error mapping for SQLDirectory.
// Values match the database/sql driver names.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const userColumns = "id, email, name, avatar_url, role, department, created_at"

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// SQLDirectory is a Directory backed by the users table
type SQLDirectory struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLDirectory creates a directory over an open database handle.
// The schema must already exist (see storage.Migrate).
func NewSQLDirectory(db *sql.DB, dialect Dialect) *SQLDirectory {
	return &SQLDirectory{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// rebind converts $N placeholders to ? for SQLite
func (d *SQLDirectory) rebind(query string) string {
	if d.dialect == DialectSQLite {
		return placeholderPattern.ReplaceAllString(query, "?")
	}
	return query
}

// FindByEmail returns the record owning email
func (d *SQLDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`), email)
	return scanUser(row)
}

// FindByID returns the record with the given ID. IDs that are not UUIDs
// cannot exist and are reported as ErrNotFound without a query.
func (d *SQLDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	row := d.db.QueryRowContext(ctx, d.rebind(`
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`), id)
	return scanUser(row)
}

// FindAll returns every record ordered by creation time
func (d *SQLDirectory) FindAll(ctx context.Context) ([]*User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	all := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return all, nil
}

// Save inserts a new record or updates an existing one keyed by ID.
// A unique-index violation on email is reported as ErrEmailTaken.
func (d *SQLDirectory) Save(ctx context.Context, user *User) (*User, error) {
	rec := user.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.now().UTC()
	}

	_, err := d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			role = excluded.role,
			department = excluded.department
	`), rec.ID, rec.Email, nullString(rec.Name), nullString(rec.AvatarURL),
		rec.Role, nullString(rec.Department), rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	saved, err := d.FindByID(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch saved user: %w", err)
	}
	return saved, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                        User
		name, avatar, department sql.NullString
	)

	err := row.Scan(&u.ID, &u.Email, &name, &avatar, &u.Role, &department, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Name = stringPtr(name)
	u.AvatarURL = stringPtr(avatar)
	u.Department = stringPtr(department)
	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either supported driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}
