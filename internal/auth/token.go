package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "sunnahaudio"
	defaultLeeway = 5 * time.Second
)

// TokenType discriminates access tokens from refresh tokens. The
// authorizer only accepts access tokens; the authenticator only accepts
// refresh tokens for renewal.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the signed assertions carried by every token. Scoped grants
// are deliberately absent: they are resolved live so revocation does not
// wait for token expiry.
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// AccountRole returns the parsed global role claim.
func (c *Claims) AccountRole() (Role, error) {
	return ParseRole(c.Role)
}

// TokenService issues and validates HS256 JWTs. It is stateless beyond
// the signing secrets and the injected clock; validation never touches a
// store.
type TokenService struct {
	secret   []byte
	previous []byte
	issuer   string
	leeway   time.Duration
	clock    Clock
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService) error

// WithPreviousSecret accepts tokens signed with an older secret during a
// rollover window. Issuance always uses the current secret.
func WithPreviousSecret(secret []byte) TokenOption {
	return func(s *TokenService) error {
		if len(secret) == 0 {
			return nil
		}
		s.previous = append([]byte(nil), secret...)
		return nil
	}
}

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("auth: issuer must not be empty")
		}
		s.issuer = issuer
		return nil
	}
}

// WithLeeway sets the clock-skew tolerance applied to expiry and
// issued-at checks.
func WithLeeway(leeway time.Duration) TokenOption {
	return func(s *TokenService) error {
		if leeway < 0 {
			return errors.New("auth: leeway must not be negative")
		}
		s.leeway = leeway
		return nil
	}
}

// WithTokenClock injects the clock used for issuance and validation.
func WithTokenClock(clock Clock) TokenOption {
	return func(s *TokenService) error {
		if clock == nil {
			return errors.New("auth: clock is required")
		}
		s.clock = clock
		return nil
	}
}

// NewTokenService constructs a service around the process-wide signing
// secret. The secret is immutable for the process lifetime; rotation is a
// restart with WithPreviousSecret covering the rollover window.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		issuer: defaultIssuer,
		leeway: defaultLeeway,
		clock:  SystemClock(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Issue signs a token for the account with the given type and lifetime.
func (s *TokenService) Issue(accountID string, role Role, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: invalid role", ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
	}
	now := s.clock.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Role:      role.String(),
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies signature and time claims and returns the parsed
// claims. Only HS256 is accepted; any other algorithm header fails as a
// bad signature so algorithm-confusion tokens cannot downgrade checks.
func (s *TokenService) Validate(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	claims, err := s.parse(raw, s.secret)
	if err != nil && errors.Is(err, ErrTokenBadSignature) && len(s.previous) > 0 {
		claims, err = s.parse(raw, s.previous)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	if _, err := claims.AccountRole(); err != nil {
		return nil, ErrTokenMalformed
	}
	switch TokenType(claims.TokenType) {
	case TokenTypeAccess, TokenTypeRefresh:
	default:
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (s *TokenService) parse(raw string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenBadSignature
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now().UTC() }),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrTokenBadSignature):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrTokenBadSignature
	default:
		return ErrTokenMalformed
	}
}
