package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPostgresStore(db)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock, db
}

var userRowColumns = []string{"id", "name", "email", "role", "is_email_verified", "created_at", "updated_at"}

func TestPostgresGet(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(userRowColumns).
			AddRow("u1", "Mona", "mona@example.com", "mentor", true, now, now)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, email, role, is_email_verified, created_at, updated_at FROM users WHERE id = $1`)).
			WithArgs("u1").
			WillReturnRows(rows)

		identity, err := s.FindIdentityByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", identity.ID)
		assert.Equal(t, permission.RoleMentor, identity.Role)
		assert.Equal(t, "Mona", identity.DisplayName)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retired role has no rights", func(t *testing.T) {
		rows := sqlmock.NewRows(userRowColumns).
			AddRow("u2", "Old", "old@example.com", "moderator", false, now, now)
		mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("u2").WillReturnRows(rows)

		u, err := s.Get(context.Background(), "u2")
		require.NoError(t, err)
		assert.Equal(t, permission.RoleUnknown, u.Role)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := s.FindIdentityByID(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("u3").WillReturnError(errors.New("connection reset"))

		_, err := s.Get(context.Background(), "u3")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresList(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WithArgs("student", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY name, id LIMIT $3 OFFSET $4`)).
		WithArgs("student", "", 2, 2).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("c", "Carol", "carol@example.com", "student", false, now, now))

	page, err := s.List(context.Background(), ListOptions{Role: permission.RoleStudent, Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalResults)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Carol", page.Results[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("u1", "Ann", "ann@example.com", "student", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		u, err := s.Create(context.Background(), User{ID: "u1", Name: "Ann", Email: "Ann@Example.com", Role: permission.RoleStudent})
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", u.Email)
		assert.Equal(t, s.now(), u.CreatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

		_, err := s.Create(context.Background(), User{Name: "Ann", Email: "ann@example.com", Role: permission.RoleStudent})
		assert.ErrorIs(t, err, ErrEmailTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid user never reaches the database", func(t *testing.T) {
		_, err := s.Create(context.Background(), User{Name: "Ann", Email: "nope", Role: permission.RoleStudent})
		assert.ErrorIs(t, err, ErrInvalidUser)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUpdateAndDelete(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("u1", "Ann", "ann@example.com", "student", false, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET name = $2, email = $3, role = $4, updated_at = $5 WHERE id = $1`)).
		WithArgs("u1", "Annie", "ann@example.com", "student", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := s.Update(context.Background(), "u1", UserUpdate{Name: ptr("Annie")})
	require.NoError(t, err)
	assert.Equal(t, "Annie", u.Name)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), "u1"))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Delete(context.Background(), "u1"), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHealth(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := &DB{DB: sqlDB}

	mock.ExpectPing()
	require.NoError(t, db.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, db.Health(context.Background()))

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.Migrate(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
}
