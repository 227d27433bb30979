package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"sunnahaudio.org/internal/ids"
	"sunnahaudio.org/internal/obs"
)

const minPasswordLength = 8

// Directory is the administrative surface over the credential store:
// account creation, password changes and status toggles. It is the one
// writer that must push cache invalidation, because disabling an account
// is a security event that cannot wait out the cache window.
type Directory struct {
	creds CredentialStore
	cache PermissionCache
	log   zerolog.Logger
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory) error

// WithDirectoryCache wires the permission cache for proactive
// invalidation on disable.
func WithDirectoryCache(cache PermissionCache) DirectoryOption {
	return func(d *Directory) error {
		if cache == nil {
			return errors.New("auth: permission cache is required")
		}
		d.cache = cache
		return nil
	}
}

// WithDirectoryLogger overrides the process logger.
func WithDirectoryLogger(log zerolog.Logger) DirectoryOption {
	return func(d *Directory) error {
		d.log = log
		return nil
	}
}

// NewDirectory wires the credential store.
func NewDirectory(creds CredentialStore, opts ...DirectoryOption) (*Directory, error) {
	if creds == nil {
		return nil, errors.New("auth: credential store is required")
	}
	d := &Directory{creds: creds, log: obs.Logger()}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// CreateAccount registers an active account with the given role. Login
// names are case-sensitive and immutable once set.
func (d *Directory) CreateAccount(ctx context.Context, loginName, secret string, role Role) (*Account, error) {
	loginName = strings.TrimSpace(loginName)
	if loginName == "" {
		return nil, fmt.Errorf("%w: login name is required", ErrInvalidInput)
	}
	if len(secret) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: invalid role", ErrInvalidInput)
	}
	digest, err := HashPassword(secret)
	if err != nil {
		return nil, err
	}
	account := &Account{
		ID:           ids.New(),
		LoginName:    loginName,
		PasswordHash: digest,
		Role:         role,
		Status:       StatusActive,
	}
	if err := d.creds.Create(ctx, account); err != nil {
		return nil, err
	}
	d.log.Info().
		Str("type", "audit").
		Str("event", "account.created").
		Str("account_id", account.ID).
		Str("role", role.String()).
		Send()
	return account, nil
}

// ChangePassword re-hashes after verifying the current secret.
func (d *Directory) ChangePassword(ctx context.Context, accountID, current, next string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	account, err := d.creds.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	match, err := VerifyPassword(current, account.PasswordHash)
	if err != nil {
		d.log.Error().Err(err).Str("account_id", account.ID).Msg("stored password digest unreadable")
		return ErrInvalidCredentials
	}
	if !match {
		return ErrInvalidCredentials
	}
	digest, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := d.creds.UpdatePasswordHash(ctx, account.ID, digest); err != nil {
		return err
	}
	d.log.Info().
		Str("type", "audit").
		Str("event", "account.password_changed").
		Str("account_id", account.ID).
		Send()
	return nil
}

// SetStatus toggles the account status. Disabling pushes an explicit
// per-account cache purge so cached positive decisions die immediately
// rather than at TTL expiry.
func (d *Directory) SetStatus(ctx context.Context, accountID string, status Status) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if status != StatusActive && status != StatusDisabled {
		return fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	if err := d.creds.UpdateStatus(ctx, accountID, status); err != nil {
		return err
	}
	if status == StatusDisabled && d.cache != nil {
		if err := d.cache.InvalidateAccount(ctx, accountID); err != nil {
			// The store-backed status check already denies this account;
			// the purge only trims the cache. Still worth an operator's
			// attention.
			d.log.Error().Err(err).
				Str("account_id", accountID).
				Msg("account cache purge failed after disable")
		}
	}
	d.log.Info().
		Str("type", "audit").
		Str("event", "account.status_changed").
		Str("account_id", accountID).
		Str("status", string(status)).
		Send()
	return nil
}
