package auth

import (
	"context"
	"time"
)

// CredentialStore is the persistent account record. Implementations own
// read-after-write consistency; this package never caches accounts.
type CredentialStore interface {
	Create(ctx context.Context, account *Account) error
	FindByLogin(ctx context.Context, loginName string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdatePasswordHash(ctx context.Context, id, digest string) error
}

// GrantStore is the canonical record of scoped grants. FindGrant returns
// ErrNotFound when no grant exists for the pair.
type GrantStore interface {
	FindGrant(ctx context.Context, accountID, scholarID string) (*AccessGrant, error)
	UpsertGrant(ctx context.Context, accountID, scholarID, creatorID string) (*AccessGrant, error)
	RevokeGrant(ctx context.Context, accountID, scholarID string) error
	ListByAccount(ctx context.Context, accountID string) ([]AccessGrant, error)
}

// PermissionCache is a time-bounded side channel over the grant store.
// Get returns ok=false on a miss. Entries must be purgeable both per key
// (so grant writes take effect immediately) and per account (so disabling
// an account does not wait out the TTL).
type PermissionCache interface {
	Get(ctx context.Context, accountID, scholarID string) (granted, ok bool, err error)
	Set(ctx context.Context, accountID, scholarID string, granted bool, ttl time.Duration) error
	Invalidate(ctx context.Context, accountID, scholarID string) error
	InvalidateAccount(ctx context.Context, accountID string) error
}

// Clock abstracts time for token expiry tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the process wall clock in UTC.
func SystemClock() Clock { return systemClock{} }
