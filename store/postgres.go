package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultConnMaxIdleTime = 1 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// Schema creates the users table read by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	email             TEXT NOT NULL UNIQUE,
	role              TEXT NOT NULL,
	is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
)`

const pgUniqueViolation = "23505"

// DBTX is the subset of *sql.DB and *sql.Tx used by PostgresStore.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a pgx-backed connection pool.
type DB struct {
	*sql.DB
}

// OpenPostgres creates a connection pool and verifies connectivity.
func OpenPostgres(databaseURL string, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	db.SetConnMaxIdleTime(DefaultConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil && logger != nil {
			logger.Warn("failed to close database after ping failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Health checks database connectivity. Returns nil if healthy.
func (db *DB) Health(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPingTimeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Migrate applies Schema.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// PostgresStore is a Directory over the users table.
type PostgresStore struct {
	db  DBTX
	now func() time.Time
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const userColumns = `id, name, email, role, is_email_verified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.IsEmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Role, _ = permission.ParseRole(role)
	return u, nil
}

func (s *PostgresStore) FindIdentityByID(ctx context.Context, id string) (sessiongate.Identity, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return sessiongate.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) (Page, error) {
	opts = opts.normalized()

	role := ""
	if opts.Role != permission.RoleUnknown {
		role = opts.Role.String()
	}
	filter := ` FROM users WHERE ($1 = '' OR role = $1) AND ($2 = '' OR name ILIKE '%' || $2 || '%')`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+filter, role, opts.Name).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count users: %w", err)
	}

	query := `SELECT ` + userColumns + filter + ` ORDER BY name, id LIMIT $3 OFFSET $4`
	rows, err := s.db.QueryContext(ctx, query, role, opts.Name, opts.Limit, (opts.Page-1)*opts.Limit)
	if err != nil {
		return Page{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list users: %w", err)
	}
	return newPage(opts, total, users), nil
}

func (s *PostgresStore) Create(ctx context.Context, user User) (User, error) {
	user.Email = normalizeEmail(user.Email)
	if err := user.validate(); err != nil {
		return User{}, err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.Role.String(), user.IsEmailVerified,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return User{}, mapWriteError("create user", err)
	}
	return user, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, update UserUpdate) (User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	update.apply(&user)
	if err := user.validate(); err != nil {
		return User{}, err
	}
	user.UpdatedAt = s.now().UTC()

	query := `UPDATE users SET name = $2, email = $3, role = $4, updated_at = $5 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, user.Name, user.Email, user.Role.String(), user.UpdatedAt)
	if err != nil {
		return User{}, mapWriteError("update user", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrEmailTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}
