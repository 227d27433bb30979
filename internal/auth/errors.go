package auth

import "errors"

// Internal error taxonomy. Credential and token failures are collapsed to
// generic messages at the external boundary; the distinct values exist so
// operators get accurate logs and metrics.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrTooManyAttempts    = errors.New("auth: too many attempts")

	ErrTokenMalformed    = errors.New("auth: token malformed")
	ErrTokenBadSignature = errors.New("auth: token bad signature")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrTokenNotYetValid  = errors.New("auth: token not yet valid")

	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	ErrStoreUnavailable = errors.New("auth: store unavailable")
	ErrCacheUnavailable = errors.New("auth: cache unavailable")

	// ErrMalformedDigest distinguishes an unparsable stored password hash
	// from a plain mismatch. Both collapse to ErrInvalidCredentials at the
	// authenticator boundary.
	ErrMalformedDigest = errors.New("auth: malformed password digest")
)

// IsTokenError reports whether err belongs to the token validation class.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenBadSignature) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenNotYetValid)
}
