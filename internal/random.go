package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const (
	refreshTokenRawSize = 48
	resetTokenRawSize   = 48
)

// NewRefreshToken generates an opaque refresh token: 48 random bytes,
// base64url without padding (64 characters, 384 bits of entropy).
func NewRefreshToken() (string, error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewResetToken generates an opaque password-reset token with the same
// shape as refresh tokens.
func NewResetToken() (string, error) {
	var raw [resetTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DigestToken returns the hex-encoded SHA-256 digest of an opaque token.
// Stores key records by digest so raw token values are never persisted.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenShape rejects values that cannot be a token we issued,
// before any store round trip.
func ValidateTokenShape(token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return err
	}
	if len(raw) != refreshTokenRawSize {
		return errors.New("invalid token size")
	}
	return nil
}

// ConstantTimeEqual compares two token digests without leaking a timing
// signal on the match prefix length.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
