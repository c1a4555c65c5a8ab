package flows

import (
	"context"
	"errors"
	"time"

	"github.com/authcore-io/authcore/token"
)

// Context is the per-request snapshot the host extracts from transport.
type Context struct {
	IP        string
	UserAgent string
	Location  string
}

// IPMismatchAction is the policy decision when the rotating request's IP
// differs from the one the token was issued to.
type IPMismatchAction int

const (
	IPMismatchAllow IPMismatchAction = iota
	IPMismatchFlag
	IPMismatchBlock
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureShape
	RefreshFailureRateLimited
	RefreshFailureNotFound
	RefreshFailureInactive
	RefreshFailureExpired
	RefreshFailureBlocked
	RefreshFailureLostRace
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the rotated token pair or failure metadata.
// OldRecord is populated whenever a record was located, including on
// failure paths, so the caller can audit reuse and mismatch signals
// without re-reading the store.
type RefreshResult struct {
	Failure    RefreshFailureKind
	Err        error
	UserID     string
	OldRecord  *token.Record
	NewToken   string
	NewRecord  *token.Record
	IPMismatch bool
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, digest string) error
}

type RefreshTokenStore interface {
	Put(ctx context.Context, rec *token.Record) error
	GetByDigest(ctx context.Context, digest string) (*token.Record, error)
	Deactivate(ctx context.Context, digest, reason string, at time.Time) (bool, error)
	Touch(ctx context.Context, digest, ip string, at time.Time) error
}

// IssueDeps captures what token issuance needs.
type IssueDeps struct {
	NewToken   func() (string, error)
	NewTokenID func() string
	Digest     func(string) string
	Now        func() time.Time
	TokenTTL   time.Duration
	Store      RefreshTokenStore
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	IssueDeps
	ValidateShape func(string) error
	IPPolicy      func(storedIP, currentIP string) IPMismatchAction
	RateLimiter   RefreshRateLimiter
	RateLimited   error
}

// RunIssue creates and persists a fresh token record. A digest collision
// is retried once with new randomness before giving up.
func RunIssue(ctx context.Context, userID string, reqCtx Context, deps IssueDeps) (string, *token.Record, error) {
	const maxAttempts = 2

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, err := deps.NewToken()
		if err != nil {
			return "", nil, err
		}

		now := deps.Now()
		rec := &token.Record{
			Digest:    deps.Digest(raw),
			TokenID:   deps.NewTokenID(),
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(deps.TokenTTL),
			Active:    true,
			IssuedIP:  reqCtx.IP,
			LastIP:    reqCtx.IP,
			UserAgent: reqCtx.UserAgent,
			Location:  reqCtx.Location,
		}

		if err := deps.Store.Put(ctx, rec); err != nil {
			if errors.Is(err, token.ErrDuplicateToken) {
				lastErr = err
				continue
			}
			return "", nil, err
		}

		return raw, rec, nil
	}

	return "", nil, lastErr
}

// RunRefresh executes validate-and-rotate. The single-use guarantee
// hangs on the store's Deactivate compare-and-swap: of N concurrent
// presentations of the same token, exactly one reaches issuance.
func RunRefresh(ctx context.Context, rawToken string, reqCtx Context, deps RefreshDeps) RefreshResult {
	if err := deps.ValidateShape(rawToken); err != nil {
		return RefreshResult{Failure: RefreshFailureShape, Err: err}
	}
	digest := deps.Digest(rawToken)

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, digest); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Err: err}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: err}
		}
	}

	rec, err := deps.Store.GetByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}

	now := deps.Now()
	if !rec.Active {
		return RefreshResult{
			Failure:   RefreshFailureInactive,
			Err:       token.ErrTokenNotFound,
			UserID:    rec.UserID,
			OldRecord: rec,
		}
	}
	if rec.Expired(now) {
		return RefreshResult{
			Failure:   RefreshFailureExpired,
			Err:       token.ErrTokenNotFound,
			UserID:    rec.UserID,
			OldRecord: rec,
		}
	}

	var mismatch bool
	if deps.IPPolicy != nil && rec.IssuedIP != "" && reqCtx.IP != "" && rec.IssuedIP != reqCtx.IP {
		switch deps.IPPolicy(rec.IssuedIP, reqCtx.IP) {
		case IPMismatchBlock:
			return RefreshResult{
				Failure:    RefreshFailureBlocked,
				Err:        token.ErrTokenNotFound,
				UserID:     rec.UserID,
				OldRecord:  rec,
				IPMismatch: true,
			}
		case IPMismatchFlag:
			mismatch = true
		}
	}

	if err := deps.Store.Touch(ctx, digest, reqCtx.IP, now); err != nil {
		return RefreshResult{
			Failure:   RefreshFailureStore,
			Err:       err,
			UserID:    rec.UserID,
			OldRecord: rec,
		}
	}

	won, err := deps.Store.Deactivate(ctx, digest, token.ReasonNormalRotation, now)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return RefreshResult{
				Failure:    RefreshFailureNotFound,
				Err:        err,
				UserID:     rec.UserID,
				OldRecord:  rec,
				IPMismatch: mismatch,
			}
		}
		return RefreshResult{
			Failure:   RefreshFailureStore,
			Err:       err,
			UserID:    rec.UserID,
			OldRecord: rec,
		}
	}
	if !won {
		return RefreshResult{
			Failure:    RefreshFailureLostRace,
			Err:        token.ErrTokenNotFound,
			UserID:     rec.UserID,
			OldRecord:  rec,
			IPMismatch: mismatch,
		}
	}

	newRaw, newRec, err := RunIssue(ctx, rec.UserID, reqCtx, deps.IssueDeps)
	if err != nil {
		return RefreshResult{
			Failure:    RefreshFailureIssue,
			Err:        err,
			UserID:     rec.UserID,
			OldRecord:  rec,
			IPMismatch: mismatch,
		}
	}

	return RefreshResult{
		UserID:     rec.UserID,
		OldRecord:  rec,
		NewToken:   newRaw,
		NewRecord:  newRec,
		IPMismatch: mismatch,
	}
}
