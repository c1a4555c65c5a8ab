package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/password"
)

const (
	testEmail    = "alice@example.com"
	testUserID   = "user-1"
	testPassword = "correct-password-123"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// testConfig returns a config tuned for tests: real signing keys, the
// cheapest Argon2 parameters Validate accepts, metrics on, audit off.
func testConfig(t *testing.T) Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}

	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("argon2 init failed: %v", err)
	}
	return hasher
}

type memoryProvider struct {
	mu      sync.RWMutex
	users   map[string]UserRecord
	byEmail map[string]string

	updateErr error
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		users:   make(map[string]UserRecord),
		byEmail: make(map[string]string),
	}
}

func (p *memoryProvider) Put(u UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.UserID] = u
	p.byEmail[u.Email] = u.UserID
}

func (p *memoryProvider) Hash(userID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.users[userID].PasswordHash
}

func (p *memoryProvider) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.users[id], nil
}

func (p *memoryProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	u, ok := p.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.updateErr != nil {
		return p.updateErr
	}
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	p.users[userID] = u
	return nil
}

// mustNewOpaqueToken returns a well-formed token no store has seen.
func mustNewOpaqueToken(t *testing.T) string {
	t.Helper()

	tok, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	return tok
}

// seedUser registers the canonical test account with testPassword.
func seedUser(t *testing.T, provider *memoryProvider) {
	t.Helper()

	hash, err := newTestHasher(t).Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	provider.Put(UserRecord{
		UserID:       testUserID,
		Email:        testEmail,
		PasswordHash: hash,
	})
}

// newTestEngine builds a full engine on miniredis with the canonical test
// account seeded. mutate may be nil.
func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *memoryProvider, func()) {
	t.Helper()

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	provider := newMemoryProvider()
	seedUser(t, provider)

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, provider, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}
