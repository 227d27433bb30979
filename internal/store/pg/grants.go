package pg

import (
	"context"
	"database/sql"
	"errors"

	"sunnahaudio.org/internal/auth"
)

// FindGrant returns the grant for (account, scholar) or ErrNotFound.
func (s *Store) FindGrant(ctx context.Context, accountID, scholarID string) (*auth.AccessGrant, error) {
	var grant *auth.AccessGrant
	err := s.withRetry(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			select account_id, scholar_id, created_by, created_at, updated_at
			from access_grants
			where account_id = $1 and scholar_id = $2
		`, accountID, scholarID)
		found, err := scanGrant(row)
		if err != nil {
			return err
		}
		grant = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// UpsertGrant creates the grant or refreshes the existing row; the
// primary key on (account_id, scholar_id) keeps the pair unique. Whether
// a re-grant rewrites the creator audit fields is a deployment choice
// made at store construction.
func (s *Store) UpsertGrant(ctx context.Context, accountID, scholarID, creatorID string) (*auth.AccessGrant, error) {
	query := `
		insert into access_grants (account_id, scholar_id, created_by)
		values ($1, $2, $3)
		on conflict (account_id, scholar_id) do update
		set updated_at = now()
		returning account_id, scholar_id, created_by, created_at, updated_at
	`
	if s.overwriteRegrants {
		query = `
		insert into access_grants (account_id, scholar_id, created_by)
		values ($1, $2, $3)
		on conflict (account_id, scholar_id) do update
		set created_by = excluded.created_by, created_at = now(), updated_at = now()
		returning account_id, scholar_id, created_by, created_at, updated_at
	`
	}
	var grant *auth.AccessGrant
	err := s.withRetry(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, query, accountID, scholarID, creatorID)
		found, err := scanGrant(row)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
		grant = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// RevokeGrant deletes the grant row. Revoking an absent grant is a no-op.
func (s *Store) RevokeGrant(ctx context.Context, accountID, scholarID string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			delete from access_grants where account_id = $1 and scholar_id = $2
		`, accountID, scholarID)
		return err
	})
}

// ListByAccount returns every grant held by the account, oldest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]auth.AccessGrant, error) {
	var grants []auth.AccessGrant
	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			select account_id, scholar_id, created_by, created_at, updated_at
			from access_grants
			where account_id = $1
			order by created_at asc
		`, accountID)
		if err != nil {
			return err
		}
		defer rows.Close()

		var result []auth.AccessGrant
		for rows.Next() {
			var grant auth.AccessGrant
			if err := rows.Scan(&grant.AccountID, &grant.ScholarID, &grant.CreatedBy, &grant.CreatedAt, &grant.UpdatedAt); err != nil {
				return err
			}
			result = append(result, grant)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		grants = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func scanGrant(row rowScanner) (*auth.AccessGrant, error) {
	var grant auth.AccessGrant
	err := row.Scan(&grant.AccountID, &grant.ScholarID, &grant.CreatedBy, &grant.CreatedAt, &grant.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}
