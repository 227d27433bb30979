package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sunnahaudio.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements the credential and grant store contracts over
// PostgreSQL.
type Store struct {
	db                *sql.DB
	overwriteRegrants bool
	retryBackoff      time.Duration
}

var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.GrantStore      = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithRegrantAuditOverwrite makes a repeated grant rewrite the creator
// and creation timestamp instead of only bumping updated_at.
func WithRegrantAuditOverwrite(overwrite bool) Option {
	return func(s *Store) { s.overwriteRegrants = overwrite }
}

// WithRetryBackoff sets the pause before the single retry on transient
// failures.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(s *Store) {
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, opts...), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, retryBackoff: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withRetry runs op, retrying once after a short backoff on transient
// failures, then surfaces ErrStoreUnavailable. Domain sentinels and
// context cancellation pass through untouched.
func (s *Store) withRetry(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !retryable(ctx, err) {
		return err
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, ctx.Err())
	case <-time.After(s.retryBackoff):
	}
	if err = op(ctx); err == nil || !retryable(ctx, err) {
		return err
	}
	return fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, auth.ErrAlreadyExists),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
