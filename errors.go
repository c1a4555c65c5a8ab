package authcore

import "errors"

var (
	// ErrTokenNotFound is the single rejection for a refresh token that is
	// absent, expired, revoked, or already rotated. The states are
	// deliberately indistinguishable to callers so token state cannot be
	// probed through the API.
	ErrTokenNotFound = errors.New("token invalid or expired")
	// ErrDuplicateToken is returned when token issuance collides on an
	// existing token value even after retrying with fresh randomness.
	ErrDuplicateToken = errors.New("duplicate token")
	// ErrStoreUnavailable is returned when the token store backend is
	// unreachable. Never conflated with ErrTokenNotFound so monitoring can
	// tell outages from invalid tokens.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrInvalidCredentials is returned by Login for a wrong identifier or
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by UserProvider implementations when no
	// account matches. The engine maps it to generic outcomes before
	// anything crosses the API boundary.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited is returned when the login attempt budget is
	// exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when the refresh attempt budget is
	// exhausted.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrPasswordResetInvalid is the single rejection for a reset token
	// that is absent, expired, or already used.
	ErrPasswordResetInvalid = errors.New("password reset challenge invalid")
	// ErrPasswordResetRateLimited is returned when reset request or
	// confirmation budgets are exhausted.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrPasswordResetUnavailable is returned when the reset challenge
	// backend is unreachable.
	ErrPasswordResetUnavailable = errors.New("password reset backend unavailable")
	// ErrProviderUnavailable wraps UserProvider failures on interactive
	// paths.
	ErrProviderUnavailable = errors.New("user provider unavailable")
	// ErrTokenInvalid is returned by access-token validation for a
	// malformed, mis-signed, or expired JWT.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Builder.Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
