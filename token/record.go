package token

import "time"

// Deactivation reasons recorded when a token leaves the active state.
const (
	ReasonNormalRotation   = "normal_rotation"
	ReasonManualRevocation = "manual_revocation"
	ReasonSecurityAction   = "security_action"
	ReasonPasswordReset    = "password_reset"
)

// Record is one stored refresh token. Digest is the hex SHA-256 of the
// opaque token value and doubles as the primary key; TokenID is a stable
// public identifier safe to expose in session listings.
type Record struct {
	TokenID   string
	UserID    string
	Digest    string
	CreatedAt time.Time
	ExpiresAt time.Time

	Active             bool
	DeactivatedAt      time.Time
	DeactivationReason string

	LastUsedAt time.Time
	UsageCount int64
	IssuedIP   string
	LastIP     string
	UserAgent  string
	Location   string
}

// Expired reports whether the record's lifetime has elapsed at the given
// instant. Expiry is independent of the active flag: an active record can
// be expired and an inactive record can still be within its lifetime.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// LastSeen is the ordering timestamp for session listings: the last use
// when one is recorded, otherwise the creation time.
func (r *Record) LastSeen() time.Time {
	if r.LastUsedAt.IsZero() {
		return r.CreatedAt
	}
	return r.LastUsedAt
}

// Counts is a whole-store state breakdown.
type Counts struct {
	Active   int64
	Inactive int64
	Total    int64
}
