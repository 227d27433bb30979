package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

// HashPassword derives an argon2id digest with a fresh random salt. The
// parameters are embedded in the digest so they can be raised later
// without invalidating stored hashes.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword recomputes the digest with the stored salt and
// parameters and compares in constant time. A digest that cannot be
// parsed yields ErrMalformedDigest rather than a silent false.
func VerifyPassword(password, digest string) (bool, error) {
	params, salt, hash, err := decodeDigest(digest)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func decodeDigest(digest string) (argonParams, []byte, []byte, error) {
	var (
		params  argonParams
		version int
		saltB64 string
	)
	n, err := fmt.Sscanf(digest, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		&version, &params.memory, &params.iterations, &params.parallelism, &saltB64)
	if err != nil || n != 5 {
		return argonParams{}, nil, nil, ErrMalformedDigest
	}
	// Sscanf's %s is greedy; the salt and hash segments arrive joined.
	segments := splitDollar(saltB64)
	if len(segments) != 2 {
		return argonParams{}, nil, nil, ErrMalformedDigest
	}
	salt, err := base64.RawStdEncoding.DecodeString(segments[0])
	if err != nil {
		return argonParams{}, nil, nil, ErrMalformedDigest
	}
	hash, err := base64.RawStdEncoding.DecodeString(segments[1])
	if err != nil || len(hash) == 0 {
		return argonParams{}, nil, nil, ErrMalformedDigest
	}
	return params, salt, hash, nil
}

func splitDollar(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '$' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

var (
	dummyOnce   sync.Once
	dummyDigest string
)

// dummyVerificationDigest returns a digest used to equalize login timing
// when the account does not exist. Computed once; the password it encodes
// is never accepted because the comparison result is discarded.
func dummyVerificationDigest() string {
	dummyOnce.Do(func() {
		digest, err := HashPassword("sunnah-dummy-credential")
		if err != nil {
			// rand.Read failing means the process cannot do any
			// crypto work at all.
			panic(errors.Join(errors.New("auth: dummy digest"), err))
		}
		dummyDigest = digest
	})
	return dummyDigest
}
