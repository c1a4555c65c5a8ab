package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLoginIssuesWorkingPair(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	pair, err := engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be populated")
	}

	claims, err := engine.ValidateAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("access validation failed: %v", err)
	}
	if claims.UserID != testUserID {
		t.Fatalf("expected user %q, got %q", testUserID, claims.UserID)
	}
	if claims.TokenID == "" {
		t.Fatal("expected session token ID in claims")
	}
}

func TestLoginWrongPasswordAndUnknownUserIndistinguishable(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	_, wrongPassErr := engine.Login(context.Background(), testEmail, "not-the-password")
	_, unknownErr := engine.Login(context.Background(), "nobody@example.com", testPassword)

	if !errors.Is(wrongPassErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPassErr)
	}
	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", unknownErr)
	}
	if wrongPassErr.Error() != unknownErr.Error() {
		t.Fatal("wrong password and unknown user must be indistinguishable")
	}
}

func TestLoginEmptyInputRejected(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	if _, err := engine.Login(context.Background(), "", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty email, got %v", err)
	}
	if _, err := engine.Login(context.Background(), testEmail, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestLoginRateLimitedAfterBudget(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 3
	})
	defer done()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := engine.Login(ctx, testEmail, "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := engine.Login(ctx, testEmail, testPassword)
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited after budget, got %v", err)
	}
}

func TestLoginSuccessClearsAttemptCounter(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 3
	})
	defer done()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = engine.Login(ctx, testEmail, "not-the-password")
	}
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login within budget failed: %v", err)
	}

	// A fresh budget after success: two more failures must not trip the
	// limit that two-plus-one attempts would have.
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, testEmail, "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-clear attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
}

func TestLoginRehashesWeakHash(t *testing.T) {
	engine, provider, done := newTestEngine(t, func(cfg *Config) {
		cfg.Password.Memory = 16 * 1024
	})
	defer done()

	// The seeded hash uses 8 MB; the engine is configured for 16 MB.
	before := provider.Hash(testUserID)
	if _, err := engine.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	after := provider.Hash(testUserID)
	if after == before {
		t.Fatal("expected stored hash to be upgraded on login")
	}
	if _, err := engine.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("login with upgraded hash failed: %v", err)
	}
}

func TestValidateAccessRejectsGarbage(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := engine.ValidateAccess(context.Background(), tok); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", tok, err)
		}
	}
}

func TestValidateAccessIsStateless(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	pair, err := engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Revoke(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	// Access tokens stay valid until they expire; revocation only kills
	// the refresh token.
	if _, err := engine.ValidateAccess(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("expected access token to remain valid after revoke, got %v", err)
	}
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	first, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	second, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	const newPassword = "rotated-password-456"
	if err := engine.ChangePassword(ctx, testUserID, testPassword, newPassword); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	for i, tok := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := engine.Refresh(ctx, tok); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("session %d: expected ErrTokenNotFound after password change, got %v", i, err)
		}
	}

	if _, err := engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
	if _, err := engine.Login(ctx, testEmail, newPassword); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordOldMismatchRejected(t *testing.T) {
	engine, provider, done := newTestEngine(t, nil)
	defer done()

	before := provider.Hash(testUserID)
	err := engine.ChangePassword(context.Background(), testUserID, "not-the-password", "rotated-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if provider.Hash(testUserID) != before {
		t.Fatal("stored hash must not change on rejected attempt")
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	err := engine.ChangePassword(context.Background(), "ghost", testPassword, "rotated-password-456")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMetricsCountLoginOutcomes(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _ = engine.Login(ctx, testEmail, "not-the-password")

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricTokenIssued] != 1 {
		t.Fatalf("expected 1 token issued, got %d", snap.Counters[MetricTokenIssued])
	}
}

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = false
	})
	defer done()

	if _, err := engine.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if n := len(engine.MetricsSnapshot().Counters); n != 0 {
		t.Fatalf("expected empty snapshot with metrics disabled, got %d counters", n)
	}
}

func TestBuilderRejectsSecondBuild(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	builder := New().
		WithConfig(testConfig(t)).
		WithRedis(rdb).
		WithUserProvider(newMemoryProvider())

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRequiresRedisAndProvider(t *testing.T) {
	if _, err := New().WithConfig(testConfig(t)).Build(); err == nil {
		t.Fatal("expected Build without redis to fail")
	}

	mr, rdb := newTestRedis(t)
	defer mr.Close()
	if _, err := New().WithConfig(testConfig(t)).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected Build without user provider to fail")
	}
}
