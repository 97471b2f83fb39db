package users

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/authgate/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []string{"id", "email", "name", "avatar_url", "role", "department", "created_at"}

func TestSQLDirectory_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	id := uuid.NewString()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(testColumns).
		AddRow(id, "ana@example.com", "Ana", nil, "staff", nil, created)
	mock.ExpectQuery(`SELECT .* FROM users\s+WHERE email = \$1`).
		WithArgs("ana@example.com").
		WillReturnRows(rows)

	u, err := dir.FindByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Ana", *u.Name)
	assert.Nil(t, u.AvatarURL)
	assert.Nil(t, u.Department)
	assert.Equal(t, created, u.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_FindByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	mock.ExpectQuery(`SELECT .* FROM users`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(testColumns))

	_, err = dir.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_FindByIDNonUUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)

	_, err = dir.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query expected")
}

func TestSQLDirectory_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	mock.ExpectQuery(`SELECT .* FROM users`).
		WillReturnError(errors.New("connection reset"))

	_, err = dir.FindByEmail(context.Background(), "ana@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLDirectory_SaveCreates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir.now = func() time.Time { return created }

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "ana@example.com", "Ana", nil, "staff", nil, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM users\s+WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(testColumns).
			AddRow("11111111-1111-1111-1111-111111111111", "ana@example.com", "Ana", nil, "staff", nil, created))

	u, err := dir.Save(context.Background(), &User{Email: "ana@example.com", Name: strPtr("Ana"), Role: DefaultRole})
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_SaveUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err = dir.Save(context.Background(), &User{Email: "ana@example.com", Role: DefaultRole})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_SaveOtherError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "53300", Message: "too many connections"})

	_, err = dir.Save(context.Background(), &User{Email: "ana@example.com", Role: DefaultRole})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailTaken)
}

func TestSQLDirectory_FindAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM users\s+ORDER BY created_at, id`).
		WillReturnRows(sqlmock.NewRows(testColumns).
			AddRow(uuid.NewString(), "a@example.com", nil, nil, "staff", "Ops", t1).
			AddRow(uuid.NewString(), "b@example.com", "Bo", "https://img/b", "admin", nil, t1.Add(time.Hour)))

	all, err := dir.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ops", *all[0].Department)
	assert.Equal(t, "https://img/b", *all[1].AvatarURL)
	assert.Equal(t, RoleAdmin, all[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_FindAllEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSQLDirectory(db, DialectPostgres)
	mock.ExpectQuery(`SELECT .* FROM users`).WillReturnRows(sqlmock.NewRows(testColumns))

	all, err := dir.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestSQLDirectory_Rebind(t *testing.T) {
	pg := NewSQLDirectory(nil, DialectPostgres)
	lite := NewSQLDirectory(nil, DialectSQLite)

	q := "SELECT * FROM users WHERE id = $1 AND email = $2"
	assert.Equal(t, q, pg.rebind(q))
	assert.Equal(t, "SELECT * FROM users WHERE id = ? AND email = ?", lite.rebind(q))
}

func newSQLiteDirectory(t *testing.T) *SQLDirectory {
	t.Helper()

	cfg := storage.DefaultConfig()
	cfg.Driver = storage.DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "users.db")

	db, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, cfg.Driver))

	return NewSQLDirectory(db, DialectSQLite)
}

func TestSQLDirectory_SQLiteRoundTrip(t *testing.T) {
	dir := newSQLiteDirectory(t)
	ctx := context.Background()

	saved, err := dir.Save(ctx, &User{
		Email:     "ana@example.com",
		Name:      strPtr("Ana"),
		AvatarURL: strPtr("https://img/ana"),
		Role:      DefaultRole,
	})
	require.NoError(t, err)
	_, err = uuid.Parse(saved.ID)
	require.NoError(t, err)

	byEmail, err := dir.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byEmail.ID)
	assert.Equal(t, "Ana", *byEmail.Name)
	assert.Nil(t, byEmail.Department)

	byEmail.Department = strPtr("Engineering")
	updated, err := dir.Save(ctx, byEmail)
	require.NoError(t, err)
	assert.Equal(t, "Engineering", *updated.Department)

	all, err := dir.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLDirectory_SQLiteDuplicateEmail(t *testing.T) {
	dir := newSQLiteDirectory(t)
	ctx := context.Background()

	_, err := dir.Save(ctx, &User{Email: "ana@example.com", Role: DefaultRole})
	require.NoError(t, err)

	_, err = dir.Save(ctx, &User{Email: "ana@example.com", Role: DefaultRole})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSQLDirectory_SQLiteConcurrentCreate(t *testing.T) {
	dir := newSQLiteDirectory(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.Save(ctx, &User{Email: "race@example.com", Role: DefaultRole}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	all, err := dir.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
