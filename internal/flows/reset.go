package flows

import (
	"context"
	"errors"
	"time"

	"github.com/authcore-io/authcore/internal/stores"
)

// ResetFailureKind classifies password reset failures for root-level mapping.
type ResetFailureKind int

const (
	ResetFailureNone ResetFailureKind = iota
	ResetFailureShape
	ResetFailureRateLimited
	ResetFailureNotFound
	ResetFailureStore
	ResetFailureProvider
	ResetFailureRevoke
)

// ResetRequestResult reports a reset request. UnknownUser is internal
// state only; callers must return the same generic acknowledgement either
// way.
type ResetRequestResult struct {
	Failure     ResetFailureKind
	Err         error
	UserID      string
	RawToken    string
	UnknownUser bool
}

// ResetConfirmResult reports a reset redemption.
type ResetConfirmResult struct {
	Failure ResetFailureKind
	Err     error
	UserID  string
	Revoked int
}

type ResetRateLimiter interface {
	CheckResetRequest(ctx context.Context, identifier, ip string) error
	CheckResetConfirm(ctx context.Context, ip string) error
}

type ResetChallengeStore interface {
	Save(ctx context.Context, digest string, record *stores.ResetRecord, ttl time.Duration) error
	Consume(ctx context.Context, digest string) (*stores.ResetRecord, error)
}

// ResetDeps captures password reset flow dependencies.
type ResetDeps struct {
	LookupUser     func(ctx context.Context, email string) (string, bool, error)
	UpdatePassword func(ctx context.Context, userID, newPassword string) error
	RevokeAll      func(ctx context.Context, userID string) (int, error)
	NewToken       func() (string, error)
	ValidateShape  func(string) error
	Digest         func(string) string
	Now            func() time.Time
	ResetTTL       time.Duration
	Store          ResetChallengeStore
	RateLimiter    ResetRateLimiter
	RateLimited    error
}

// RunResetRequest issues a reset challenge. For unknown emails the same
// token generation work is performed and then discarded, keeping the
// request's timing profile independent of account existence.
func RunResetRequest(ctx context.Context, email string, reqCtx Context, deps ResetDeps) ResetRequestResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckResetRequest(ctx, email, reqCtx.IP); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return ResetRequestResult{Failure: ResetFailureRateLimited, Err: err}
			}
			return ResetRequestResult{Failure: ResetFailureStore, Err: err}
		}
	}

	userID, found, err := deps.LookupUser(ctx, email)
	if err != nil {
		return ResetRequestResult{Failure: ResetFailureProvider, Err: err}
	}

	raw, err := deps.NewToken()
	if err != nil {
		return ResetRequestResult{Failure: ResetFailureStore, Err: err}
	}
	digest := deps.Digest(raw)

	if !found {
		return ResetRequestResult{UnknownUser: true}
	}

	now := deps.Now()
	record := &stores.ResetRecord{
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(deps.ResetTTL).Unix(),
		RequestIP: reqCtx.IP,
	}
	if err := deps.Store.Save(ctx, digest, record, deps.ResetTTL); err != nil {
		return ResetRequestResult{Failure: ResetFailureStore, Err: err, UserID: userID}
	}

	return ResetRequestResult{UserID: userID, RawToken: raw}
}

// RunResetConfirm redeems a challenge: consume exactly once, update the
// password through the provider, then revoke every active refresh token
// so the password change invalidates all existing sessions.
func RunResetConfirm(ctx context.Context, rawToken, newPassword string, reqCtx Context, deps ResetDeps) ResetConfirmResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckResetConfirm(ctx, reqCtx.IP); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return ResetConfirmResult{Failure: ResetFailureRateLimited, Err: err}
			}
			return ResetConfirmResult{Failure: ResetFailureStore, Err: err}
		}
	}

	if err := deps.ValidateShape(rawToken); err != nil {
		return ResetConfirmResult{Failure: ResetFailureShape, Err: err}
	}

	record, err := deps.Store.Consume(ctx, deps.Digest(rawToken))
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			return ResetConfirmResult{Failure: ResetFailureNotFound, Err: err}
		}
		return ResetConfirmResult{Failure: ResetFailureStore, Err: err}
	}

	if err := deps.UpdatePassword(ctx, record.UserID, newPassword); err != nil {
		return ResetConfirmResult{Failure: ResetFailureProvider, Err: err, UserID: record.UserID}
	}

	revoked, err := deps.RevokeAll(ctx, record.UserID)
	if err != nil {
		return ResetConfirmResult{Failure: ResetFailureRevoke, Err: err, UserID: record.UserID, Revoked: revoked}
	}

	return ResetConfirmResult{UserID: record.UserID, Revoked: revoked}
}
