package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sunnahaudio.org/internal/obs"
)

const (
	defaultCacheTTL     = 30 * time.Second
	defaultCheckTimeout = 2 * time.Second
)

// Authorizer evaluates access checks. The grant store is canonical; the
// permission cache is a bounded-staleness optimization that never decides
// on its own. Infrastructure failure resolves to deny, never allow.
type Authorizer struct {
	tokens       *TokenService
	creds        CredentialStore
	grants       GrantStore
	cache        PermissionCache
	cacheTTL     time.Duration
	checkTimeout time.Duration
	log          zerolog.Logger
}

// AuthorizerOption configures an Authorizer.
type AuthorizerOption func(*Authorizer) error

// WithPermissionCache enables the cache with the given freshness window.
// The TTL is the system's staleness bound: a revocation racing a
// concurrent read is fully purged from decisions within it.
func WithPermissionCache(cache PermissionCache, ttl time.Duration) AuthorizerOption {
	return func(z *Authorizer) error {
		if cache == nil {
			return errors.New("auth: permission cache is required")
		}
		if ttl <= 0 {
			return errors.New("auth: cache ttl must be greater than zero")
		}
		z.cache = cache
		z.cacheTTL = ttl
		return nil
	}
}

// WithCheckTimeout bounds one authorization check end to end.
func WithCheckTimeout(timeout time.Duration) AuthorizerOption {
	return func(z *Authorizer) error {
		if timeout <= 0 {
			return errors.New("auth: check timeout must be greater than zero")
		}
		z.checkTimeout = timeout
		return nil
	}
}

// WithAuthorizerLogger overrides the process logger.
func WithAuthorizerLogger(log zerolog.Logger) AuthorizerOption {
	return func(z *Authorizer) error {
		z.log = log
		return nil
	}
}

// NewAuthorizer wires the token service against the credential and grant
// stores.
func NewAuthorizer(tokens *TokenService, creds CredentialStore, grants GrantStore, opts ...AuthorizerOption) (*Authorizer, error) {
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if creds == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if grants == nil {
		return nil, errors.New("auth: grant store is required")
	}
	z := &Authorizer{
		tokens:       tokens,
		creds:        creds,
		grants:       grants,
		checkTimeout: defaultCheckTimeout,
		log:          obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(z); err != nil {
			return nil, err
		}
	}
	return z, nil
}

// Authorize resolves whether the token's account may exercise the
// capability on the scholar. The decision is terminal; retrying
// authentication is the caller's concern.
func (z *Authorizer) Authorize(ctx context.Context, rawToken, scholarID string, capability Capability) Decision {
	decision, _ := z.authorize(ctx, rawToken, scholarID, capability)
	obs.ObserveDecision(outcomeLabel(decision.Allowed), string(decision.Reason))
	return decision
}

func outcomeLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func (z *Authorizer) authorize(ctx context.Context, rawToken, scholarID string, capability Capability) (Decision, *Account) {
	claims, err := z.tokens.Validate(rawToken)
	if err != nil {
		z.observeTokenFailure(err)
		return deny(ReasonUnauthenticated), nil
	}
	if TokenType(claims.TokenType) != TokenTypeAccess {
		z.log.Warn().Str("token_type", claims.TokenType).Msg("non-access token presented for authorization")
		return deny(ReasonUnauthenticated), nil
	}

	ctx, cancel := context.WithTimeout(ctx, z.checkTimeout)
	defer cancel()

	// Status and role come from the store, not the token, so disabling or
	// demoting an account logically invalidates outstanding tokens.
	account, err := z.creds.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		z.log.Warn().Str("account_id", claims.Subject).Msg("token subject no longer exists")
		return deny(ReasonUnauthenticated), nil
	case err != nil:
		z.log.Error().Err(err).Msg("credential store unreachable, failing closed")
		return deny(ReasonUnavailable), nil
	}
	if account.Disabled() {
		return deny(ReasonAccountDisabled), account
	}

	if account.Role.GlobalCapabilities().Has(capability) {
		return allow(ReasonGlobalRole), account
	}

	scholarID = strings.TrimSpace(scholarID)
	if scholarID == "" {
		return deny(ReasonNoGrant), account
	}

	granted, err := z.resolveGrant(ctx, account.ID, scholarID)
	if err != nil {
		z.log.Error().Err(err).
			Str("account_id", account.ID).
			Str("scholar_id", scholarID).
			Msg("grant resolution unavailable, failing closed")
		return deny(ReasonUnavailable), account
	}
	if !granted {
		return deny(ReasonNoGrant), account
	}
	if !account.Role.ScopedCeiling().Has(capability) {
		// The grant row exists but the role's ceiling excludes the
		// capability. The grant is a no-op for this check; flag it so an
		// operator can clean up the stray row.
		z.log.Warn().
			Str("account_id", account.ID).
			Str("scholar_id", scholarID).
			Str("role", account.Role.String()).
			Str("capability", capability.String()).
			Msg("grant exceeds role ceiling, treating as no-op")
		return deny(ReasonCeilingExceeded), account
	}
	return allow(ReasonScopedGrant), account
}

// resolveGrant answers "does a grant row exist" via the cache when fresh,
// falling back to the grant store. A cache failure alone degrades to the
// store; only both failing yields an error.
func (z *Authorizer) resolveGrant(ctx context.Context, accountID, scholarID string) (bool, error) {
	if z.cache != nil {
		granted, ok, err := z.cache.Get(ctx, accountID, scholarID)
		if err != nil {
			obs.ObserveCacheLookup("error")
			z.log.Warn().Err(err).Msg("permission cache read failed")
		} else if ok {
			obs.ObserveCacheLookup("hit")
			return granted, nil
		} else {
			obs.ObserveCacheLookup("miss")
		}
	}

	granted, err := z.lookupGrant(ctx, accountID, scholarID)
	if err != nil {
		return false, err
	}
	if z.cache != nil {
		if err := z.cache.Set(ctx, accountID, scholarID, granted, z.cacheTTL); err != nil {
			z.log.Warn().Err(err).Msg("permission cache write failed")
		}
	}
	return granted, nil
}

func (z *Authorizer) lookupGrant(ctx context.Context, accountID, scholarID string) (bool, error) {
	_, err := z.grants.FindGrant(ctx, accountID, scholarID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (z *Authorizer) observeTokenFailure(err error) {
	var kind string
	switch {
	case errors.Is(err, ErrTokenExpired):
		kind = "expired"
	case errors.Is(err, ErrTokenBadSignature):
		kind = "bad_signature"
	case errors.Is(err, ErrTokenNotYetValid):
		kind = "not_yet_valid"
	default:
		kind = "malformed"
	}
	obs.ObserveTokenFailure(kind)
	z.log.Warn().Str("kind", kind).Msg("token validation failed")
}

// Grant creates or refreshes a scoped grant for the target account. The
// actor must hold ManageGrants on the scholar; the cache entry for the
// pair is invalidated so the grant is visible to the next check without
// waiting out the TTL.
func (z *Authorizer) Grant(ctx context.Context, actorToken, targetAccountID, scholarID string) error {
	actor, err := z.requireCapability(ctx, actorToken, scholarID, CapManageGrants)
	if err != nil {
		return err
	}
	targetAccountID = strings.TrimSpace(targetAccountID)
	scholarID = strings.TrimSpace(scholarID)
	if targetAccountID == "" || scholarID == "" {
		return fmt.Errorf("%w: account id and scholar id are required", ErrInvalidInput)
	}
	target, err := z.creds.FindByID(ctx, targetAccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if target.Role.ScopedCeiling() == 0 {
		z.log.Warn().
			Str("account_id", target.ID).
			Str("role", target.Role.String()).
			Msg("granting to a role with an empty scoped ceiling")
	}

	grant, err := z.grants.UpsertGrant(ctx, target.ID, scholarID, actor.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	z.invalidatePair(ctx, target.ID, scholarID)
	z.log.Info().
		Str("type", "audit").
		Str("event", "grant.created").
		Str("actor_account_id", actor.ID).
		Str("target_account_id", target.ID).
		Str("scholar_id", scholarID).
		Time("granted_at", grant.UpdatedAt).
		Send()
	return nil
}

// Revoke removes the grant for (target, scholar). Revoking an absent
// grant is a no-op. The cache entry is invalidated immediately.
func (z *Authorizer) Revoke(ctx context.Context, actorToken, targetAccountID, scholarID string) error {
	actor, err := z.requireCapability(ctx, actorToken, scholarID, CapManageGrants)
	if err != nil {
		return err
	}
	targetAccountID = strings.TrimSpace(targetAccountID)
	scholarID = strings.TrimSpace(scholarID)
	if targetAccountID == "" || scholarID == "" {
		return fmt.Errorf("%w: account id and scholar id are required", ErrInvalidInput)
	}
	if err := z.grants.RevokeGrant(ctx, targetAccountID, scholarID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	z.invalidatePair(ctx, targetAccountID, scholarID)
	z.log.Info().
		Str("type", "audit").
		Str("event", "grant.revoked").
		Str("actor_account_id", actor.ID).
		Str("target_account_id", targetAccountID).
		Str("scholar_id", scholarID).
		Send()
	return nil
}

// Permissions resolves the full access view for the token's account: its
// global role and the capability set on every scholar it holds a grant
// for, clamped to the role's ceiling.
func (z *Authorizer) Permissions(ctx context.Context, rawToken string) (*AccountPermissions, error) {
	claims, err := z.tokens.Validate(rawToken)
	if err != nil {
		return nil, err
	}
	if TokenType(claims.TokenType) != TokenTypeAccess {
		return nil, ErrTokenMalformed
	}
	account, err := z.creds.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrUnauthorized
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Disabled() {
		return nil, ErrAccountDisabled
	}
	grants, err := z.grants.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	perms := &AccountPermissions{
		AccountID: account.ID,
		Role:      account.Role,
		Scholars:  make([]ScholarAccess, 0, len(grants)),
	}
	ceiling := account.Role.ScopedCeiling()
	global := account.Role.GlobalCapabilities()
	for _, grant := range grants {
		perms.Scholars = append(perms.Scholars, ScholarAccess{
			ScholarID:    grant.ScholarID,
			Capabilities: ceiling | global,
		})
	}
	return perms, nil
}

func (z *Authorizer) requireCapability(ctx context.Context, rawToken, scholarID string, capability Capability) (*Account, error) {
	decision, account := z.authorize(ctx, rawToken, scholarID, capability)
	obs.ObserveDecision(outcomeLabel(decision.Allowed), string(decision.Reason))
	if decision.Allowed {
		return account, nil
	}
	switch decision.Reason {
	case ReasonUnavailable:
		return nil, ErrStoreUnavailable
	case ReasonAccountDisabled:
		return nil, ErrAccountDisabled
	default:
		return nil, ErrUnauthorized
	}
}

func (z *Authorizer) invalidatePair(ctx context.Context, accountID, scholarID string) {
	if z.cache == nil {
		return
	}
	if err := z.cache.Invalidate(ctx, accountID, scholarID); err != nil {
		// The entry ages out within the TTL bound regardless; losing the
		// push only widens staleness for this one key.
		z.log.Warn().Err(err).
			Str("account_id", accountID).
			Str("scholar_id", scholarID).
			Msg("permission cache invalidation failed")
	}
}
