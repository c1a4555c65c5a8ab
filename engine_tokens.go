package authcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/flows"
	"github.com/authcore-io/authcore/internal/rate"
	"github.com/authcore-io/authcore/internal/uaparse"
	"github.com/authcore-io/authcore/token"
)

func (e *Engine) ipMismatchPolicy(_, _ string) flows.IPMismatchAction {
	switch e.config.Security.IPMismatchPolicy {
	case PolicyAllow:
		return flows.IPMismatchAllow
	case PolicyBlock:
		return flows.IPMismatchBlock
	default:
		return flows.IPMismatchFlag
	}
}

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		IssueDeps:     e.issueDeps(),
		ValidateShape: internal.ValidateTokenShape,
		IPPolicy:      e.ipMismatchPolicy,
		RateLimiter:   e.rateLimiter,
		RateLimited:   rate.ErrRateLimited,
	}
}

// Issue creates a fresh token pair for a user without credential
// verification. Intended for flows where the host has already
// authenticated the user through another channel.
func (e *Engine) Issue(ctx context.Context, userID string) (TokenPair, error) {
	if e == nil || e.tokens == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if userID == "" {
		return TokenPair{}, ErrUserNotFound
	}

	pair, rec, err := e.issuePair(ctx, userID, requestContext(ctx))
	if err != nil {
		return TokenPair{}, e.mapStoreError(err)
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, userID, rec.TokenID, nil, nil)

	return pair, nil
}

// Refresh rotates a refresh token: the presented token is atomically
// deactivated and a new pair is issued. Of N concurrent presentations of
// the same token exactly one succeeds; the rest fail with
// [ErrTokenNotFound], indistinguishable from an expired or unknown token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.tokens == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	result := flows.RunRefresh(ctx, refreshToken, requestContext(ctx), e.refreshDeps())

	oldTokenID := ""
	if result.OldRecord != nil {
		oldTokenID = result.OldRecord.TokenID
	}

	switch result.Failure {
	case flows.RefreshFailureNone:
		// fallthrough to success handling below

	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshThrottled, false, result.UserID, oldTokenID, ErrRefreshRateLimited, nil)
		return TokenPair{}, ErrRefreshRateLimited

	case flows.RefreshFailureInactive, flows.RefreshFailureLostRace:
		// Presentation of an already-rotated token is the replay signal.
		e.metricInc(MetricRefreshRejected)
		e.emitAudit(ctx, auditEventReuseDetected, false, result.UserID, oldTokenID, ErrTokenNotFound, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(result.Failure)}
		})
		return TokenPair{}, ErrTokenNotFound

	case flows.RefreshFailureBlocked:
		e.metricInc(MetricIPMismatchBlocked)
		e.metricInc(MetricRefreshRejected)
		e.emitAudit(ctx, auditEventIPMismatch, false, result.UserID, oldTokenID, ErrTokenNotFound, func() map[string]string {
			meta := map[string]string{"action": "blocked"}
			if result.OldRecord != nil {
				meta["issued_ip"] = result.OldRecord.IssuedIP
			}
			return meta
		})
		return TokenPair{}, ErrTokenNotFound

	case flows.RefreshFailureShape, flows.RefreshFailureNotFound, flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshRejected)
		e.emitAudit(ctx, auditEventRefreshRejected, false, result.UserID, oldTokenID, ErrTokenNotFound, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(result.Failure)}
		})
		return TokenPair{}, ErrTokenNotFound

	default:
		// Store and issuance failures keep their cause visible.
		e.emitAudit(ctx, auditEventRefreshRejected, false, result.UserID, oldTokenID, result.Err, nil)
		return TokenPair{}, e.mapStoreError(result.Err)
	}

	access, err := e.jwtManager.CreateAccess(result.UserID, result.NewRecord.TokenID)
	if err != nil {
		if _, dErr := e.tokens.Deactivate(ctx, result.NewRecord.Digest, token.ReasonSecurityAction, time.Now()); dErr != nil {
			e.logger.Warn("orphaned token rollback failed", zap.Error(dErr))
		}
		return TokenPair{}, err
	}

	if result.IPMismatch {
		e.metricInc(MetricIPMismatchFlagged)
		e.emitAudit(ctx, auditEventIPMismatch, true, result.UserID, oldTokenID, nil, func() map[string]string {
			meta := map[string]string{"action": "flagged"}
			if result.OldRecord != nil {
				meta["issued_ip"] = result.OldRecord.IssuedIP
			}
			return meta
		})
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, result.UserID, result.NewRecord.TokenID, nil, func() map[string]string {
		return map[string]string{"rotated_from": oldTokenID}
	})

	return TokenPair{AccessToken: access, RefreshToken: result.NewToken}, nil
}

func refreshFailureReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureShape:
		return "malformed"
	case flows.RefreshFailureNotFound:
		return "not_found"
	case flows.RefreshFailureInactive:
		return "already_rotated"
	case flows.RefreshFailureExpired:
		return "expired"
	case flows.RefreshFailureLostRace:
		return "lost_race"
	default:
		return "unknown"
	}
}

// Revoke deactivates the presented refresh token. Returns true when this
// call performed the flip, false when the token was already inactive.
// Unknown and malformed tokens fail with [ErrTokenNotFound].
func (e *Engine) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	if e == nil || e.tokens == nil {
		return false, ErrEngineNotReady
	}
	if err := internal.ValidateTokenShape(refreshToken); err != nil {
		return false, ErrTokenNotFound
	}

	digest := internal.DigestToken(refreshToken)
	won, err := e.tokens.Deactivate(ctx, digest, token.ReasonManualRevocation, time.Now())
	if err != nil {
		return false, e.mapStoreError(err)
	}

	if won {
		e.metricInc(MetricTokenRevoked)
	}
	e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", nil, func() map[string]string {
		return map[string]string{"flipped": boolLabel(won)}
	})

	return won, nil
}

// RevokeSession deactivates one of the user's sessions by its public
// token ID, as listed by [Engine.ListSessions]. A token ID belonging to
// a different user fails with [ErrTokenNotFound].
func (e *Engine) RevokeSession(ctx context.Context, userID, tokenID string) (bool, error) {
	if e == nil || e.tokens == nil {
		return false, ErrEngineNotReady
	}

	rec, err := e.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return false, e.mapStoreError(err)
	}
	if rec.UserID != userID {
		return false, ErrTokenNotFound
	}

	won, err := e.tokens.Deactivate(ctx, rec.Digest, token.ReasonManualRevocation, time.Now())
	if err != nil {
		return false, e.mapStoreError(err)
	}

	if won {
		e.metricInc(MetricTokenRevoked)
	}
	e.emitAudit(ctx, auditEventTokenRevoked, true, userID, tokenID, nil, func() map[string]string {
		return map[string]string{"flipped": boolLabel(won)}
	})

	return won, nil
}

// RevokeAllForUser deactivates every active refresh token the user holds
// and returns how many were flipped.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return e.revokeAllForUser(ctx, userID, token.ReasonManualRevocation)
}

func (e *Engine) revokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.tokens.DeactivateAllByUser(ctx, userID, reason, time.Now())
	if err != nil {
		return revoked, e.mapStoreError(err)
	}

	e.metricInc(MetricRevokeAll)
	e.metricAdd(MetricTokenRevoked, uint64(revoked))
	e.emitAudit(ctx, auditEventRevokeAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": itoa(revoked), "reason": reason}
	})

	return revoked, nil
}

// ListSessions returns the user's sessions, most recently used first.
// The refresh token value is never included; callers revoke through the
// token ID.
func (e *Engine) ListSessions(ctx context.Context, userID string, includeInactive bool) ([]SessionInfo, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.tokens.ListByUser(ctx, userID, includeInactive)
	if err != nil {
		return nil, e.mapStoreError(err)
	}

	sessions := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		ua := uaparse.Parse(rec.UserAgent)
		sessions = append(sessions, SessionInfo{
			TokenID:    rec.TokenID,
			CreatedAt:  rec.CreatedAt,
			LastUsedAt: rec.LastUsedAt,
			ExpiresAt:  rec.ExpiresAt,
			UsageCount: rec.UsageCount,
			IPAddress:  rec.IssuedIP,
			LastIP:     rec.LastIP,
			UserAgent:  rec.UserAgent,
			Location:   rec.Location,
			Device: DeviceInfo{
				Browser: ua.Browser,
				OS:      ua.OS,
				Device:  ua.Device,
			},
			Active: rec.Active,
		})
	}

	return sessions, nil
}

// CleanupExpired runs one cleanup pass: expired records are purged
// outright, and inactive records older than the retention window are
// purged as well. Partial results are reported even on error.
func (e *Engine) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	if e == nil || e.tokens == nil {
		return CleanupResult{}, ErrEngineNotReady
	}

	now := time.Now()
	var result CleanupResult

	expired, expErr := e.tokens.PurgeExpired(ctx, now)
	result.Expired = expired

	inactive, inactErr := e.tokens.PurgeInactive(ctx, now.Add(-e.config.Token.InactiveRetention))
	result.Inactive = inactive

	e.metricAdd(MetricSweepDeleted, uint64(expired+inactive))
	e.emitAudit(ctx, auditEventCleanupCompleted, expErr == nil && inactErr == nil, "", "", firstError(expErr, inactErr), func() map[string]string {
		return map[string]string{
			"expired":  itoa(expired),
			"inactive": itoa(inactive),
		}
	})

	if err := firstError(expErr, inactErr); err != nil {
		return result, e.mapStoreError(err)
	}
	return result, nil
}

// TokenStats returns the whole-store active/inactive breakdown.
func (e *Engine) TokenStats(ctx context.Context) (TokenStats, error) {
	if e == nil || e.tokens == nil {
		return TokenStats{}, ErrEngineNotReady
	}

	counts, err := e.tokens.CountByState(ctx)
	if err != nil {
		return TokenStats{}, e.mapStoreError(err)
	}

	return TokenStats{
		Active:   counts.Active,
		Inactive: counts.Inactive,
		Total:    counts.Total,
	}, nil
}

// Ping checks token store availability and reports round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	rtt, err := e.tokens.Ping(ctx)
	if err != nil {
		return 0, e.mapStoreError(err)
	}
	return rtt, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
