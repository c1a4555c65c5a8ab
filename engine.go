package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/flows"
	"github.com/authcore-io/authcore/internal/rate"
	"github.com/authcore-io/authcore/internal/stores"
	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/password"
	"github.com/authcore-io/authcore/token"
)

// Audit event types emitted by the engine.
const (
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventLoginRateLimited  = "login_rate_limited"
	auditEventTokenIssued       = "token_issued"
	auditEventRefreshSuccess    = "refresh_success"
	auditEventRefreshRejected   = "refresh_rejected"
	auditEventRefreshThrottled  = "refresh_rate_limited"
	auditEventReuseDetected     = "refresh_reuse_detected"
	auditEventIPMismatch        = "ip_mismatch"
	auditEventTokenRevoked      = "token_revoked"
	auditEventRevokeAll         = "revoke_all"
	auditEventResetRequested    = "password_reset_requested"
	auditEventResetConfirmed    = "password_reset_confirmed"
	auditEventResetRejected     = "password_reset_rejected"
	auditEventResetThrottled    = "password_reset_rate_limited"
	auditEventPasswordChanged   = "password_changed"
	auditEventCleanupCompleted  = "cleanup_completed"
)

// Engine is the refresh-token lifecycle manager. Construct it with
// [Builder.Build]; zero-value engines are not usable. All methods are
// safe for concurrent use.
type Engine struct {
	config       Config
	tokens       token.Store
	resetStore   *stores.ResetStore
	rateLimiter  *rate.Limiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	userProvider UserProvider
	logger       *zap.Logger
}

// Close flushes and stops the audit dispatcher. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, delta uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, delta)
}

// emitAudit forwards one event to the dispatcher. metaFn is lazy so hot
// paths never build metadata maps when audit is disabled.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, tokenID string, opErr error, metaFn func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: tokenID,
		IP:        clientIPFromContext(ctx),
		Location:  locationFromContext(ctx),
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if metaFn != nil {
		event.Metadata = metaFn()
	}

	e.audit.Emit(ctx, event)
}

// requestContext snapshots the transport metadata the host attached via
// WithClientIP, WithUserAgent, and WithLocation.
func requestContext(ctx context.Context) flows.Context {
	return flows.Context{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Location:  locationFromContext(ctx),
	}
}

// Login verifies credentials and issues a fresh token pair. Wrong
// identifier and wrong password are indistinguishable to callers.
func (e *Engine) Login(ctx context.Context, email, pass string) (TokenPair, error) {
	if e == nil || e.passwordHash == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	reqCtx := requestContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return TokenPair{}, ErrLoginRateLimited
		}
		return TokenPair{}, ErrStoreUnavailable
	}

	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": email, "reason": "empty_input"}
		})
		return TokenPair{}, ErrInvalidCredentials
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"identifier": email, "reason": "user_not_found"}
			})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, ErrProviderUnavailable
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": email, "reason": "password_mismatch"}
		})
		return TokenPair{}, ErrInvalidCredentials
	}

	// Transparent cost upgrade: rehash on login when the stored hash is
	// weaker than the current parameters. Best-effort, never blocks login.
	if needsUpgrade, upErr := e.passwordHash.NeedsUpgrade(user.PasswordHash); upErr == nil && needsUpgrade {
		if newHash, hashErr := e.passwordHash.Hash(pass); hashErr == nil {
			if updErr := e.userProvider.UpdatePasswordHash(ctx, user.UserID, newHash); updErr != nil {
				e.logger.Warn("password hash upgrade failed", zap.Error(updErr))
			}
		}
	}
	pass = ""

	pair, rec, err := e.issuePair(ctx, user.UserID, reqCtx)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"identifier": email, "reason": "issue_failed"}
		})
		return TokenPair{}, e.mapStoreError(err)
	}

	if err := e.rateLimiter.ClearLogin(ctx, email); err != nil {
		e.logger.Warn("login limiter clear failed", zap.Error(err))
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, rec.TokenID, nil, func() map[string]string {
		return map[string]string{"identifier": email}
	})

	return pair, nil
}

// ValidateAccess verifies a signed access token and returns its claims.
// Purely stateless: no store round trip.
func (e *Engine) ValidateAccess(_ context.Context, tokenStr string) (*AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &AccessClaims{
		UserID:  claims.UID,
		TokenID: claims.SID,
	}, nil
}

// ChangePassword verifies the old password, installs the new hash, and
// revokes every refresh token so no session survives the change.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if userID == "" || oldPassword == "" || newPassword == "" {
		return ErrInvalidCredentials
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return ErrProviderUnavailable
	}

	ok, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_change_old_mismatch"}
		})
		return ErrInvalidCredentials
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return ErrProviderUnavailable
	}

	// An outstanding reset challenge would bypass the new password.
	if e.resetStore != nil {
		if err := e.resetStore.InvalidateForUser(ctx, userID); err != nil {
			e.logger.Warn("reset challenge invalidation failed", zap.Error(err))
		}
	}

	revoked, err := e.revokeAllForUser(ctx, userID, token.ReasonSecurityAction)
	if err != nil {
		e.logger.Error("session revocation failed after password change",
			zap.String("user_id", userID), zap.Error(err))
		return e.mapStoreError(err)
	}

	e.emitAudit(ctx, auditEventPasswordChanged, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": itoa(revoked)}
	})

	return nil
}

// issueDeps wires token issuance against the configured store.
func (e *Engine) issueDeps() flows.IssueDeps {
	return flows.IssueDeps{
		NewToken:   internal.NewRefreshToken,
		NewTokenID: newTokenID,
		Digest:     internal.DigestToken,
		Now:        time.Now,
		TokenTTL:   e.config.Token.RefreshTTL,
		Store:      e.tokens,
	}
}

// issuePair creates a refresh record plus the matching access token.
func (e *Engine) issuePair(ctx context.Context, userID string, reqCtx flows.Context) (TokenPair, *token.Record, error) {
	raw, rec, err := flows.RunIssue(ctx, userID, reqCtx, e.issueDeps())
	if err != nil {
		return TokenPair{}, nil, err
	}

	access, err := e.jwtManager.CreateAccess(userID, rec.TokenID)
	if err != nil {
		// Best-effort rollback so the orphaned record does not linger as
		// an active session.
		if _, dErr := e.tokens.Deactivate(ctx, rec.Digest, token.ReasonSecurityAction, time.Now()); dErr != nil {
			e.logger.Warn("orphaned token rollback failed", zap.Error(dErr))
		}
		return TokenPair{}, nil, err
	}

	return TokenPair{AccessToken: access, RefreshToken: raw}, rec, nil
}

func newTokenID() string {
	return uuid.NewString()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// mapStoreError collapses backend failures onto the public sentinels.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrStoreUnavailable), errors.Is(err, rate.ErrRedisUnavailable):
		return ErrStoreUnavailable
	case errors.Is(err, token.ErrTokenNotFound):
		return ErrTokenNotFound
	case errors.Is(err, token.ErrDuplicateToken):
		return ErrDuplicateToken
	default:
		return err
	}
}
