package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sunnahaudio.org/internal/auth"
	"sunnahaudio.org/internal/ids"
)

// Create inserts a new account row. Login names are unique and
// case-sensitive; a collision maps to ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, account *auth.Account) error {
	if account.ID == "" {
		account.ID = ids.New()
	}
	return s.withRetry(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			insert into accounts (id, login_name, password_hash, role, status)
			values ($1, $2, $3, $4, $5)
			returning created_at, updated_at
		`, account.ID, account.LoginName, account.PasswordHash, account.Role.String(), string(account.Status))
		if err := row.Scan(&account.CreatedAt, &account.UpdatedAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.ErrAlreadyExists
			}
			return err
		}
		return nil
	})
}

// FindByLogin looks up an account by its exact login name.
func (s *Store) FindByLogin(ctx context.Context, loginName string) (*auth.Account, error) {
	var account *auth.Account
	err := s.withRetry(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			select id, login_name, password_hash, role, status, created_at, updated_at
			from accounts
			where login_name = $1
		`, loginName)
		found, err := scanAccount(row)
		if err != nil {
			return err
		}
		account = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// FindByID looks up an account by identity.
func (s *Store) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	var account *auth.Account
	err := s.withRetry(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			select id, login_name, password_hash, role, status, created_at, updated_at
			from accounts
			where id = $1
		`, id)
		found, err := scanAccount(row)
		if err != nil {
			return err
		}
		account = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateStatus flips the account status flag.
func (s *Store) UpdateStatus(ctx context.Context, id string, status auth.Status) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			update accounts set status = $2, updated_at = now() where id = $1
		`, id, string(status))
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// UpdatePasswordHash replaces the stored digest.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, digest string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			update accounts set password_hash = $2, updated_at = now() where id = $1
		`, id, digest)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*auth.Account, error) {
	var (
		account auth.Account
		role    string
		status  string
	)
	err := row.Scan(&account.ID, &account.LoginName, &account.PasswordHash, &role, &status, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", account.ID, err)
	}
	account.Role = parsed
	account.Status = auth.Status(status)
	return &account, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
