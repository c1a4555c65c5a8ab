package token

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps backend transport failures.
var ErrStoreUnavailable = errors.New("token store unavailable")

// ErrTokenNotFound is returned when no record exists for a digest or ID.
var ErrTokenNotFound = errors.New("token not found")

// ErrDuplicateToken is returned by Put when a record already exists under
// the same digest. Callers regenerate the token and retry.
var ErrDuplicateToken = errors.New("duplicate token digest")

// Store persists refresh-token records.
//
// Deactivate is the single-use gate: it flips active to inactive if and
// only if the record is still active, atomically with respect to every
// other Deactivate on the same digest. The boolean result reports whether
// this call performed the flip.
type Store interface {
	// Put creates a record. Fails with ErrDuplicateToken when the digest
	// is already present.
	Put(ctx context.Context, rec *Record) error

	// GetByDigest fetches the record stored under a token digest.
	GetByDigest(ctx context.Context, digest string) (*Record, error)

	// GetByID fetches a record by its public token ID.
	GetByID(ctx context.Context, tokenID string) (*Record, error)

	// Deactivate atomically moves an active record to inactive, stamping
	// the reason and timestamp. Returns (true, nil) when this call won the
	// flip, (false, nil) when the record was already inactive, and
	// ErrTokenNotFound when no record exists.
	Deactivate(ctx context.Context, digest, reason string, at time.Time) (bool, error)

	// Touch updates last-used bookkeeping on an active record. A missing
	// or inactive record is not an error; the update is simply skipped.
	Touch(ctx context.Context, digest, ip string, at time.Time) error

	// ListByUser returns the user's records, most recently used first;
	// records never used since issuance order by creation time. Inactive
	// records are included only when includeInactive is set.
	ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*Record, error)

	// DeactivateAllByUser deactivates every active record belonging to the
	// user and returns how many were flipped.
	DeactivateAllByUser(ctx context.Context, userID, reason string, at time.Time) (int, error)

	// PurgeExpired permanently removes records whose expiry precedes the
	// cutoff, regardless of state. Returns the number removed.
	PurgeExpired(ctx context.Context, before time.Time) (int, error)

	// PurgeInactive permanently removes inactive records deactivated
	// before the cutoff. Returns the number removed.
	PurgeInactive(ctx context.Context, before time.Time) (int, error)

	// CountByState returns the whole-store active/inactive breakdown.
	CountByState(ctx context.Context) (Counts, error)

	// Ping checks backend availability and reports round-trip latency.
	Ping(ctx context.Context) (time.Duration, error)
}
