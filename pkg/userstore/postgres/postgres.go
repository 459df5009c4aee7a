// Package postgres provides a PostgreSQL implementation of auth.UserStore.
// It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/debug"
	"github.com/rhuss/securest/pkg/observability"
	"github.com/rhuss/securest/pkg/userstore"
)

// ErrConflict is returned by Create when the username is taken.
var ErrConflict = errors.New("user already exists")

// Store is a PostgreSQL-backed user store.
type Store struct {
	pool *pgxpool.Pool
}

var _ auth.UserStore = (*Store)(nil)

// New connects to PostgreSQL. If MigrateOnStart is set, schema migrations
// are applied before New returns.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// GetUser loads a user by username. An unknown username yields (nil, nil).
func (s *Store) GetUser(ctx context.Context, subjectID string) (auth.User, error) {
	var rec userstore.Record
	var email *string

	err := s.pool.QueryRow(ctx, `
		SELECT username, password, email, active, roles
		FROM users
		WHERE username = $1
	`, subjectID).Scan(&rec.Username, &rec.Password, &email, &rec.Active, &rec.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		observability.UserLookupsTotal.WithLabelValues("postgres", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		observability.UserLookupsTotal.WithLabelValues("postgres", "error").Inc()
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if email != nil {
		rec.Email = *email
	}

	observability.UserLookupsTotal.WithLabelValues("postgres", "hit").Inc()
	debug.Log("userstore", "user loaded", "store", "postgres", "subject", subjectID)
	return rec.User(), nil
}

// Create inserts a new user. It fails with ErrConflict if the username exists.
func (s *Store) Create(ctx context.Context, u *auth.RegisteredUser) error {
	rec := userstore.FromUser(u)
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password, email, active, roles)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Username, rec.Password, nullString(rec.Email), rec.Active, roleNames(rec))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// Upsert inserts a user or replaces an existing one.
func (s *Store) Upsert(ctx context.Context, u *auth.RegisteredUser) error {
	rec := userstore.FromUser(u)
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password, email, active, roles)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO UPDATE SET
			password = EXCLUDED.password,
			email = EXCLUDED.email,
			active = EXCLUDED.active,
			roles = EXCLUDED.roles,
			updated_at = now()
	`, rec.Username, rec.Password, nullString(rec.Email), rec.Active, roleNames(rec))
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// SetActive enables or disables a user. It reports auth.ErrUserNotFound
// for an unknown username.
func (s *Store) SetActive(ctx context.Context, username string, active bool) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE users SET active = $1, updated_at = now() WHERE username = $2",
		active, username,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// Delete removes a user. It reports auth.ErrUserNotFound for an unknown username.
func (s *Store) Delete(ctx context.Context, username string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM users WHERE username = $1", username)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// roleNames never returns nil so the NOT NULL roles column gets '{}'.
func roleNames(rec userstore.Record) []string {
	if rec.Roles == nil {
		return []string{}
	}
	return rec.Roles
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
