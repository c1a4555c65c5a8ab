package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRevokeIdempotent(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	won, err := engine.Revoke(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if !won {
		t.Fatal("expected first revoke to flip the token")
	}

	won, err = engine.Revoke(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if won {
		t.Fatal("expected second revoke to report already inactive")
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected revoked token to be unusable, got %v", err)
	}
}

func TestRevokeUnknownAndMalformed(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	if _, err := engine.Revoke(ctx, mustNewOpaqueToken(t)); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for unknown token, got %v", err)
	}
	if _, err := engine.Revoke(ctx, "not-a-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for malformed token, got %v", err)
	}
}

func TestRevokeSessionByID(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	sessions, err := engine.ListSessions(ctx, testUserID, false)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	won, err := engine.RevokeSession(ctx, testUserID, sessions[0].TokenID)
	if err != nil {
		t.Fatalf("revoke session failed: %v", err)
	}
	if !won {
		t.Fatal("expected revoke to flip the session")
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected revoked session token to be unusable, got %v", err)
	}
}

func TestRevokeSessionCrossUserRejected(t *testing.T) {
	engine, provider, done := newTestEngine(t, nil)
	defer done()

	hash, err := newTestHasher(t).Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	provider.Put(UserRecord{
		UserID:       "user-2",
		Email:        "bob@example.com",
		PasswordHash: hash,
	})

	ctx := context.Background()
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	sessions, err := engine.ListSessions(ctx, testUserID, false)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}

	if _, err := engine.RevokeSession(ctx, "user-2", sessions[0].TokenID); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected cross-user revoke to fail with ErrTokenNotFound, got %v", err)
	}

	// The session must survive the failed attempt.
	won, err := engine.RevokeSession(ctx, testUserID, sessions[0].TokenID)
	if err != nil || !won {
		t.Fatalf("owner revoke failed: won=%v err=%v", won, err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	pairs := make([]TokenPair, 0, 3)
	for i := 0; i < 3; i++ {
		pair, err := engine.Login(ctx, testEmail, testPassword)
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
		pairs = append(pairs, pair)
	}

	revoked, err := engine.RevokeAllForUser(ctx, testUserID)
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked, got %d", revoked)
	}

	for i, pair := range pairs {
		if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("session %d: expected ErrTokenNotFound, got %v", i, err)
		}
	}

	revoked, err = engine.RevokeAllForUser(ctx, testUserID)
	if err != nil {
		t.Fatalf("second revoke all failed: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("expected 0 on second pass, got %d", revoked)
	}
}

func TestListSessionsNeverExposesToken(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := WithLocation(
		WithUserAgent(
			WithClientIP(context.Background(), "203.0.113.1"),
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
		),
		"Berlin, DE",
	)
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	sessions, err := engine.ListSessions(ctx, testUserID, false)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	s := sessions[0]
	if s.TokenID == "" {
		t.Fatal("expected public token ID")
	}
	if s.TokenID == pair.RefreshToken {
		t.Fatal("token ID must not be the refresh token")
	}
	if s.IPAddress != "203.0.113.1" {
		t.Fatalf("expected issuing IP, got %q", s.IPAddress)
	}
	if s.Device.Browser == "" || s.Device.OS == "" {
		t.Fatalf("expected parsed device info, got %+v", s.Device)
	}
	if s.Location != "Berlin, DE" {
		t.Fatalf("expected caller-supplied location, got %q", s.Location)
	}
	if !s.Active {
		t.Fatal("expected session to be active")
	}
}

func TestListSessionsIncludeInactive(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	active, err := engine.ListSessions(ctx, testUserID, false)
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}

	all, err := engine.ListSessions(ctx, testUserID, true)
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions including inactive, got %d", len(all))
	}
}

func TestCleanupExpiredRemovesDeadRecords(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Token.RefreshTTL = 20 * time.Millisecond
		cfg.Token.InactiveRetention = 0
	})
	defer done()

	ctx := context.Background()
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if _, err := engine.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	result, err := engine.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Expired+result.Inactive != 2 {
		t.Fatalf("expected 2 records removed, got expired=%d inactive=%d", result.Expired, result.Inactive)
	}

	stats, err := engine.TokenStats(ctx)
	if err != nil {
		t.Fatalf("token stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("expected empty store after cleanup, got %d records", stats.Total)
	}
}

func TestCleanupKeepsLiveRecords(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	result, err := engine.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Expired != 0 || result.Inactive != 0 {
		t.Fatalf("expected nothing removed, got %+v", result)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("live token must survive cleanup, got %v", err)
	}
}

func TestTokenStats(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	ctx := context.Background()
	stats, err := engine.TokenStats(ctx)
	if err != nil {
		t.Fatalf("token stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("expected empty store, got %+v", stats)
	}

	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	stats, err = engine.TokenStats(ctx)
	if err != nil {
		t.Fatalf("token stats failed: %v", err)
	}
	if stats.Active != 1 || stats.Inactive != 1 || stats.Total != 2 {
		t.Fatalf("expected 1 active, 1 inactive, got %+v", stats)
	}
}

func TestPing(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	if _, err := engine.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
