package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeClock is a deterministic Clock for token expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errStoreDown = errors.New("store down")

// fakeCredentialStore keeps accounts in memory and can simulate outages.
type fakeCredentialStore struct {
	mu       sync.Mutex
	accounts map[string]*Account // by id
	fail     bool
}

func newFakeCredentialStore(accounts ...*Account) *fakeCredentialStore {
	s := &fakeCredentialStore{accounts: make(map[string]*Account)}
	for _, a := range accounts {
		clone := *a
		s.accounts[a.ID] = &clone
	}
	return s
}

func (s *fakeCredentialStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	for _, a := range s.accounts {
		if a.LoginName == account.LoginName {
			return ErrAlreadyExists
		}
	}
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *fakeCredentialStore) FindByLogin(_ context.Context, loginName string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	for _, a := range s.accounts {
		if a.LoginName == loginName {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeCredentialStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *fakeCredentialStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeCredentialStore) UpdatePasswordHash(_ context.Context, id, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = digest
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// fakeGrantStore mirrors the pg upsert semantics: re-granting preserves
// the creator and only bumps updated_at.
type fakeGrantStore struct {
	mu        sync.Mutex
	grants    map[string]*AccessGrant
	findCalls int
	fail      bool
}

func newFakeGrantStore() *fakeGrantStore {
	return &fakeGrantStore{grants: make(map[string]*AccessGrant)}
}

func grantKey(accountID, scholarID string) string {
	return accountID + "/" + scholarID
}

func (s *fakeGrantStore) FindGrant(_ context.Context, accountID, scholarID string) (*AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.fail {
		return nil, errStoreDown
	}
	g, ok := s.grants[grantKey(accountID, scholarID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *g
	return &clone, nil
}

func (s *fakeGrantStore) UpsertGrant(_ context.Context, accountID, scholarID, creatorID string) (*AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	key := grantKey(accountID, scholarID)
	now := time.Now().UTC()
	if g, ok := s.grants[key]; ok {
		g.UpdatedAt = now
		clone := *g
		return &clone, nil
	}
	g := &AccessGrant{
		AccountID: accountID,
		ScholarID: scholarID,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.grants[key] = g
	clone := *g
	return &clone, nil
}

func (s *fakeGrantStore) RevokeGrant(_ context.Context, accountID, scholarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	delete(s.grants, grantKey(accountID, scholarID))
	return nil
}

func (s *fakeGrantStore) ListByAccount(_ context.Context, accountID string) ([]AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	var out []AccessGrant
	for _, g := range s.grants {
		if g.AccountID == accountID {
			out = append(out, *g)
		}
	}
	return out, nil
}

// fakePermissionCache records every call so tests can assert on cache
// traffic and invalidation pushes. TTLs are accepted but not enforced;
// staleness is simulated by deleting entries.
type fakePermissionCache struct {
	mu                  sync.Mutex
	entries             map[string]bool
	setCalls            int
	invalidatedPairs    []string
	invalidatedAccounts []string
	fail                bool
}

func newFakePermissionCache() *fakePermissionCache {
	return &fakePermissionCache{entries: make(map[string]bool)}
}

func (c *fakePermissionCache) Get(_ context.Context, accountID, scholarID string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return false, false, ErrCacheUnavailable
	}
	granted, ok := c.entries[grantKey(accountID, scholarID)]
	return granted, ok, nil
}

func (c *fakePermissionCache) Set(_ context.Context, accountID, scholarID string, granted bool, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrCacheUnavailable
	}
	c.setCalls++
	c.entries[grantKey(accountID, scholarID)] = granted
	return nil
}

func (c *fakePermissionCache) Invalidate(_ context.Context, accountID, scholarID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrCacheUnavailable
	}
	key := grantKey(accountID, scholarID)
	delete(c.entries, key)
	c.invalidatedPairs = append(c.invalidatedPairs, key)
	return nil
}

func (c *fakePermissionCache) InvalidateAccount(_ context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrCacheUnavailable
	}
	for key := range c.entries {
		if len(key) > len(accountID) && key[:len(accountID)+1] == accountID+"/" {
			delete(c.entries, key)
		}
	}
	c.invalidatedAccounts = append(c.invalidatedAccounts, accountID)
	return nil
}

func mustHash(password string) string {
	digest, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return digest
}

func mustTokenService(clock Clock) *TokenService {
	svc, err := NewTokenService([]byte("test-signing-secret"), WithTokenClock(clock))
	if err != nil {
		panic(err)
	}
	return svc
}
