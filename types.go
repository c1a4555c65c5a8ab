package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/authcore-io/authcore/internal/audit"
	internalmetrics "github.com/authcore-io/authcore/internal/metrics"
)

// UserRecord is the account record returned by [UserProvider]. The
// engine only reads the fields it needs: identity, email, and the stored
// password hash.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
}

// UserProvider is the interface callers implement to integrate authcore
// with their user database. The engine never stores credentials itself;
// lookup and password persistence stay on the host's side.
//
// GetUserByEmail and GetUserByID return [ErrUserNotFound] (or an error
// wrapping it) when no account matches.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// DeviceInfo is the parsed user-agent summary attached to session
// listings.
type DeviceInfo struct {
	Browser string
	OS      string
	Device  string
}

// SessionInfo is one entry in a session listing. The refresh token value
// itself is never included; TokenID is the stable public handle used for
// per-session revocation.
type SessionInfo struct {
	TokenID    string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	UsageCount int64
	IPAddress  string
	LastIP     string
	Location   string
	UserAgent  string
	Device     DeviceInfo
	Active     bool
}

// TokenPair is the result of Login and Refresh: a short-lived signed
// access token plus the opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenStats is a whole-store state breakdown for observability.
type TokenStats struct {
	Active   int64
	Inactive int64
	Total    int64
}

// CleanupResult reports one cleanup pass: records removed because their
// lifetime elapsed, and inactive records removed after the retention
// window.
type CleanupResult struct {
	Expired  int
	Inactive int
}

// AccessClaims is the decoded payload of a validated access token.
type AccessClaims struct {
	UserID  string
	TokenID string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter in the in-process metrics
// system.
type MetricID = internalmetrics.MetricID

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricTokenIssued counts refresh tokens created by Issue and Login.
	MetricTokenIssued = internalmetrics.MetricTokenIssued
	// MetricRefreshSuccess counts completed rotations.
	MetricRefreshSuccess = internalmetrics.MetricRefreshSuccess
	// MetricRefreshRejected counts rotations rejected with the generic
	// token error.
	MetricRefreshRejected = internalmetrics.MetricRefreshRejected
	// MetricRefreshRateLimited counts throttled rotations.
	MetricRefreshRateLimited = internalmetrics.MetricRefreshRateLimited
	// MetricIPMismatchFlagged counts rotations flagged for an IP change.
	MetricIPMismatchFlagged = internalmetrics.MetricIPMismatchFlagged
	// MetricIPMismatchBlocked counts rotations blocked by PolicyBlock.
	MetricIPMismatchBlocked = internalmetrics.MetricIPMismatchBlocked
	// MetricTokenRevoked counts single-token revocations.
	MetricTokenRevoked = internalmetrics.MetricTokenRevoked
	// MetricRevokeAll counts revoke-all operations.
	MetricRevokeAll = internalmetrics.MetricRevokeAll
	// MetricResetRequest counts password reset requests.
	MetricResetRequest = internalmetrics.MetricResetRequest
	// MetricResetConfirmSuccess counts successful reset redemptions.
	MetricResetConfirmSuccess = internalmetrics.MetricResetConfirmSuccess
	// MetricResetConfirmFailure counts rejected reset redemptions.
	MetricResetConfirmFailure = internalmetrics.MetricResetConfirmFailure
	// MetricResetRateLimited counts throttled reset calls.
	MetricResetRateLimited = internalmetrics.MetricResetRateLimited
	// MetricSweepRun counts sweeper passes.
	MetricSweepRun = internalmetrics.MetricSweepRun
	// MetricSweepDeleted counts records removed by the sweeper.
	MetricSweepDeleted = internalmetrics.MetricSweepDeleted
	// MetricSweepFailure counts failed sweeper passes.
	MetricSweepFailure = internalmetrics.MetricSweepFailure
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false, all
// recording operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{Enabled: cfg.Enabled})
}
