package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"sunnahaudio.org/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
)

// Authenticator orchestrates login: credential verification, status
// check, token issuance. It persists nothing; there is no session table.
type Authenticator struct {
	creds      CredentialStore
	tokens     *TokenService
	accessTTL  time.Duration
	refreshTTL time.Duration
	limiter    *loginLimiter
	log        zerolog.Logger
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator) error

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) AuthenticatorOption {
	return func(a *Authenticator) error {
		if ttl <= 0 {
			return errors.New("auth: access ttl must be greater than zero")
		}
		a.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) AuthenticatorOption {
	return func(a *Authenticator) error {
		if ttl <= 0 {
			return errors.New("auth: refresh ttl must be greater than zero")
		}
		a.refreshTTL = ttl
		return nil
	}
}

// WithLoginRateLimit bounds attempts per login name with a token bucket.
// Zero perMinute disables limiting.
func WithLoginRateLimit(perMinute, burst int) AuthenticatorOption {
	return func(a *Authenticator) error {
		if perMinute <= 0 {
			a.limiter = nil
			return nil
		}
		if burst <= 0 {
			burst = perMinute
		}
		a.limiter = newLoginLimiter(rate.Limit(float64(perMinute)/60.0), burst)
		return nil
	}
}

// WithAuthenticatorLogger overrides the process logger.
func WithAuthenticatorLogger(log zerolog.Logger) AuthenticatorOption {
	return func(a *Authenticator) error {
		a.log = log
		return nil
	}
}

// NewAuthenticator wires the credential store and token service.
func NewAuthenticator(creds CredentialStore, tokens *TokenService, opts ...AuthenticatorOption) (*Authenticator, error) {
	if creds == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	a := &Authenticator{
		creds:      creds,
		tokens:     tokens,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		log:        obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Login verifies the credentials and issues an access/refresh pair
// carrying the account's current global role. The response shape and
// timing are kept constant across the unknown-name, wrong-password and
// disabled paths so callers cannot enumerate accounts.
func (a *Authenticator) Login(ctx context.Context, loginName, secret string) (*TokenPair, error) {
	loginName = strings.TrimSpace(loginName)
	if loginName == "" || secret == "" {
		obs.ObserveLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if a.limiter != nil && !a.limiter.allow(loginName) {
		obs.ObserveLogin("rate_limited")
		a.log.Warn().Str("login_name", loginName).Msg("login rate limited")
		return nil, ErrTooManyAttempts
	}

	account, err := a.creds.FindByLogin(ctx, loginName)
	switch {
	case errors.Is(err, ErrNotFound):
		// Burn a verification against the dummy digest so the miss is
		// timing-indistinguishable from a password mismatch.
		_, _ = VerifyPassword(secret, dummyVerificationDigest())
		obs.ObserveLogin("unknown_account")
		return nil, ErrInvalidCredentials
	case err != nil:
		obs.ObserveLogin("unavailable")
		a.log.Error().Err(err).Msg("credential store lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	match, err := VerifyPassword(secret, account.PasswordHash)
	if err != nil {
		// Malformed stored digest. Operators see the detail; the caller
		// gets the generic failure to avoid an oracle.
		obs.ObserveLogin("malformed_digest")
		a.log.Error().Err(err).Str("account_id", account.ID).Msg("stored password digest unreadable")
		return nil, ErrInvalidCredentials
	}
	if account.Disabled() {
		// Verification already ran above, so this path costs the same as
		// a mismatch.
		obs.ObserveLogin("disabled")
		a.log.Warn().Str("account_id", account.ID).Msg("login attempt on disabled account")
		return nil, ErrAccountDisabled
	}
	if !match {
		obs.ObserveLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	pair, err := a.issuePair(account)
	if err != nil {
		obs.ObserveLogin("issue_failed")
		return nil, err
	}
	obs.ObserveLogin("success")
	return pair, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. Status and
// role are re-read from the credential store: a disabled account cannot
// renew, and a demoted account renews at its current role.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := a.tokens.Validate(refreshToken)
	if err != nil {
		return nil, err
	}
	if TokenType(claims.TokenType) != TokenTypeRefresh {
		return nil, ErrTokenMalformed
	}
	account, err := a.creds.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Disabled() {
		return nil, ErrAccountDisabled
	}
	return a.issuePair(account)
}

func (a *Authenticator) issuePair(account *Account) (*TokenPair, error) {
	access, accessExp, err := a.tokens.Issue(account.ID, account.Role, TokenTypeAccess, a.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := a.tokens.Issue(account.ID, account.Role, TokenTypeRefresh, a.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// loginLimiter keeps a token bucket per login name. Idle buckets are
// swept opportunistically instead of by a background goroutine so the
// limiter needs no lifecycle management.
type loginLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*loginBucket
	lastSweep time.Time
}

type loginBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const loginBucketIdleTTL = 10 * time.Minute

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{
		limit:     limit,
		burst:     burst,
		buckets:   make(map[string]*loginBucket),
		lastSweep: time.Now(),
	}
}

func (l *loginLimiter) allow(loginName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > time.Minute {
		for name, b := range l.buckets {
			if now.Sub(b.seen) > loginBucketIdleTTL {
				delete(l.buckets, name)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[loginName]
	if !ok {
		b = &loginBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[loginName] = b
	}
	b.seen = now
	return b.lim.Allow()
}
