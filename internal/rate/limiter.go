package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. Budgets default to the
// per-endpoint tiers the engine config validates: refresh is lenient,
// password reset is strict.
type Config struct {
	EnableRefreshThrottle   bool
	EnableResetIPThrottle   bool
	MaxRefreshAttempts      int
	RefreshWindow           time.Duration
	MaxLoginAttempts        int
	LoginCooldown           time.Duration
	MaxResetRequests        int
	ResetRequestWindow      time.Duration
	MaxResetConfirmations   int
	ResetConfirmationWindow time.Duration
}

// Limiter enforces sliding attempt budgets using Redis counters with a
// window TTL. Counters live in their own key namespace and never touch
// token records.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func refreshKey(digest string) string {
	return "arl:refresh:" + digest
}

func resetRequestKey(identifier string) string {
	return "arl:reset-req:" + identifier
}

func resetRequestIPKey(ip string) string {
	return "arl:reset-req-ip:" + ip
}

func resetConfirmIPKey(ip string) string {
	return "arl:reset-confirm-ip:" + ip
}

func loginKey(identifier string) string {
	return "arl:login:" + identifier
}

// CheckLogin enforces the per-identifier login budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ClearLogin resets the identifier's login counter after a successful
// authentication.
func (l *Limiter) ClearLogin(ctx context.Context, identifier string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh enforces the per-token refresh budget by incrementing the
// counter and applying the window TTL.
func (l *Limiter) CheckRefresh(ctx context.Context, digest string) error {
	if l == nil || !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshKey(digest), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// CheckResetRequest enforces the reset-request budget per identifier and,
// when enabled, per origin IP.
func (l *Limiter) CheckResetRequest(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, resetRequestKey(identifier), l.config.ResetRequestWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetRequests) {
		return ErrRateLimited
	}

	if l.config.EnableResetIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, resetRequestIPKey(ip), l.config.ResetRequestWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxResetRequests) {
			return ErrRateLimited
		}
	}

	return nil
}

// CheckResetConfirm enforces the reset-confirmation budget per origin IP.
func (l *Limiter) CheckResetConfirm(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableResetIPThrottle || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, resetConfirmIPKey(ip), l.config.ResetConfirmationWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetConfirmations) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = time.Minute
	}

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
