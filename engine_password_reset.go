package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/flows"
	"github.com/authcore-io/authcore/internal/rate"
	"github.com/authcore-io/authcore/token"
)

func (e *Engine) resetDeps() flows.ResetDeps {
	return flows.ResetDeps{
		LookupUser: func(ctx context.Context, email string) (string, bool, error) {
			user, err := e.userProvider.GetUserByEmail(ctx, email)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					return "", false, nil
				}
				return "", false, err
			}
			return user.UserID, true, nil
		},
		UpdatePassword: func(ctx context.Context, userID, newPassword string) error {
			hash, err := e.passwordHash.Hash(newPassword)
			if err != nil {
				return err
			}
			return e.userProvider.UpdatePasswordHash(ctx, userID, hash)
		},
		RevokeAll: func(ctx context.Context, userID string) (int, error) {
			return e.revokeAllForUser(ctx, userID, token.ReasonPasswordReset)
		},
		NewToken:      internal.NewResetToken,
		ValidateShape: internal.ValidateTokenShape,
		Digest:        internal.DigestToken,
		Now:           time.Now,
		ResetTTL:      e.config.PasswordReset.ResetTTL,
		Store:         e.resetStore,
		RateLimiter:   e.rateLimiter,
		RateLimited:   rate.ErrRateLimited,
	}
}

// RequestPasswordReset issues a one-time reset challenge for the account
// behind the email and returns the raw token for the host to deliver out
// of band. For unknown emails it returns ("", nil): callers must send the
// same generic acknowledgement either way so account existence cannot be
// probed. A new request replaces any outstanding challenge for the user.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.resetStore == nil || !e.config.PasswordReset.Enabled {
		return "", ErrPasswordResetUnavailable
	}

	result := flows.RunResetRequest(ctx, email, requestContext(ctx), e.resetDeps())

	switch result.Failure {
	case flows.ResetFailureNone:
		// handled below

	case flows.ResetFailureRateLimited:
		e.metricInc(MetricResetRateLimited)
		e.emitAudit(ctx, auditEventResetThrottled, false, "", "", ErrPasswordResetRateLimited, func() map[string]string {
			return map[string]string{"identifier": email}
		})
		return "", ErrPasswordResetRateLimited

	case flows.ResetFailureProvider:
		return "", ErrProviderUnavailable

	default:
		return "", ErrPasswordResetUnavailable
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventResetRequested, true, result.UserID, "", nil, func() map[string]string {
		return map[string]string{"known_account": boolLabel(!result.UnknownUser)}
	})

	if result.UnknownUser {
		return "", nil
	}
	return result.RawToken, nil
}

// ConfirmPasswordReset redeems a reset challenge exactly once: the new
// password is hashed and installed, then every refresh token the user
// holds is revoked. Absent, expired, and already-used challenges are all
// rejected with [ErrPasswordResetInvalid].
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.resetStore == nil || !e.config.PasswordReset.Enabled {
		return ErrPasswordResetUnavailable
	}

	result := flows.RunResetConfirm(ctx, resetToken, newPassword, requestContext(ctx), e.resetDeps())

	switch result.Failure {
	case flows.ResetFailureNone:
		e.metricInc(MetricResetConfirmSuccess)
		e.emitAudit(ctx, auditEventResetConfirmed, true, result.UserID, "", nil, func() map[string]string {
			return map[string]string{"revoked": itoa(result.Revoked)}
		})
		return nil

	case flows.ResetFailureRateLimited:
		e.metricInc(MetricResetRateLimited)
		e.emitAudit(ctx, auditEventResetThrottled, false, "", "", ErrPasswordResetRateLimited, nil)
		return ErrPasswordResetRateLimited

	case flows.ResetFailureShape, flows.ResetFailureNotFound:
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetRejected, false, "", "", ErrPasswordResetInvalid, nil)
		return ErrPasswordResetInvalid

	case flows.ResetFailureProvider:
		// The challenge was consumed. Hash policy violations surface as-is
		// so callers can show the reason; provider lookups stay generic.
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetRejected, false, result.UserID, "", result.Err, nil)
		if errors.Is(result.Err, ErrUserNotFound) {
			return ErrPasswordResetInvalid
		}
		return result.Err

	case flows.ResetFailureRevoke:
		// Password already changed; revocation is the part that failed.
		e.logger.Error("session revocation failed after password reset",
			zap.String("user_id", result.UserID), zap.Error(result.Err))
		e.metricInc(MetricResetConfirmFailure)
		return e.mapStoreError(result.Err)

	default:
		e.metricInc(MetricResetConfirmFailure)
		return ErrPasswordResetUnavailable
	}
}
