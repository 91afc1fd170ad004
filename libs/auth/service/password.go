package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultPasswordIterations is the PBKDF2 round count used for new hashes.
	DefaultPasswordIterations = 310000

	passwordAlgorithm = "pbkdf2-sha256"
	passwordSaltLen   = 16
	passwordKeyLen    = 32

	// Upper bound for iterations read back from a stored hash.
	maxPasswordIterations = 10_000_000
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// dummySalt is used to burn the same amount of CPU when a stored hash cannot be parsed.
var dummySalt = make([]byte, passwordSaltLen)

// PasswordHasher hashes passwords with salted PBKDF2-HMAC-SHA256.
//
// Encoded hashes carry everything needed to verify them:
//
//	pbkdf2-sha256$<iterations>$<base64 salt>$<base64 digest>
//
// so the iteration count can be raised later without invalidating stored hashes.
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher creates a hasher using DefaultPasswordIterations.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{iterations: DefaultPasswordIterations}
}

// NewPasswordHasherWithIterations creates a hasher with a custom iteration count.
// Non-positive values fall back to DefaultPasswordIterations.
func NewPasswordHasherWithIterations(iterations int) *PasswordHasher {
	if iterations <= 0 {
		iterations = DefaultPasswordIterations
	}
	return &PasswordHasher{iterations: iterations}
}

// Iterations returns the round count applied to new hashes.
func (h *PasswordHasher) Iterations() int {
	return h.iterations
}

// Hash derives an encoded hash for the password using a fresh random salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	digest := pbkdf2.Key([]byte(password), salt, h.iterations, passwordKeyLen, sha256.New)

	return fmt.Sprintf("%s$%d$%s$%s",
		passwordAlgorithm,
		h.iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether password matches the encoded hash.
//
// A malformed hash is reported as a mismatch. A derivation is still performed in that
// case so callers cannot tell a broken hash from a wrong password by timing.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	iterations, salt, expected, err := parsePasswordHash(encoded)
	if err != nil {
		digest := pbkdf2.Key([]byte(password), dummySalt, h.iterations, passwordKeyLen, sha256.New)
		subtle.ConstantTimeCompare(digest, make([]byte, passwordKeyLen))
		return false
	}

	digest := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(digest, expected) == 1
}

// NeedsRehash reports whether the encoded hash was produced with weaker parameters than
// the hasher currently uses.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	iterations, _, _, err := parsePasswordHash(encoded)
	if err != nil {
		return true
	}
	return iterations < h.iterations
}

func parsePasswordHash(encoded string) (int, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 {
		return 0, nil, nil, fmt.Errorf("invalid hash format")
	}
	if parts[0] != passwordAlgorithm {
		return 0, nil, nil, fmt.Errorf("unsupported hash algorithm: %s", parts[0])
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 || iterations > maxPasswordIterations {
		return 0, nil, nil, fmt.Errorf("invalid iteration count")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, fmt.Errorf("invalid salt")
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(digest) == 0 || len(digest) > 64 {
		return 0, nil, nil, fmt.Errorf("invalid digest")
	}

	return iterations, salt, digest, nil
}
