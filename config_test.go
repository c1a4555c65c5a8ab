package authcore

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with keys",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "access ttl zero",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "unsupported signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "hs256 with long secret",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = make([]byte, 32)
			},
			wantValid: true,
		},
		{
			name: "hs256 short secret",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = make([]byte, 16)
			},
			wantValid: false,
		},
		{
			name: "ed25519 missing keys",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = nil
				c.JWT.PublicKey = nil
			},
			wantValid: false,
		},
		{
			name: "refresh ttl zero",
			mutate: func(c *Config) {
				c.Token.RefreshTTL = 0
			},
			wantValid: false,
		},
		{
			name: "negative inactive retention",
			mutate: func(c *Config) {
				c.Token.InactiveRetention = -time.Hour
			},
			wantValid: false,
		},
		{
			name: "empty token prefix",
			mutate: func(c *Config) {
				c.Token.RedisPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "argon2 memory below floor",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "argon2 short salt",
			mutate: func(c *Config) {
				c.Password.SaltLength = 8
			},
			wantValid: false,
		},
		{
			name: "reset enabled without ttl",
			mutate: func(c *Config) {
				c.PasswordReset.Enabled = true
				c.PasswordReset.ResetTTL = 0
			},
			wantValid: false,
		},
		{
			name: "reset disabled skips reset checks",
			mutate: func(c *Config) {
				c.PasswordReset.Enabled = false
				c.PasswordReset.ResetTTL = 0
				c.PasswordReset.RedisPrefix = ""
			},
			wantValid: true,
		},
		{
			name: "reset ip throttle without budget",
			mutate: func(c *Config) {
				c.PasswordReset.EnableIPThrottle = true
				c.PasswordReset.MaxConfirmations = 0
			},
			wantValid: false,
		},
		{
			name: "sweeper interval zero",
			mutate: func(c *Config) {
				c.Sweeper.Interval = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "ip mismatch policy out of range",
			mutate: func(c *Config) {
				c.Security.IPMismatchPolicy = IPMismatchPolicy(77)
			},
			wantValid: false,
		},
		{
			name: "refresh throttle without window",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = true
				c.Security.RefreshWindow = 0
			},
			wantValid: false,
		},
		{
			name: "refresh throttle disabled skips window check",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = false
				c.Security.RefreshWindow = 0
			},
			wantValid: true,
		},
		{
			name: "unknown storage backend",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageBackend("dynamo")
			},
			wantValid: false,
		},
		{
			name: "mongo backend accepted",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendMongo
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestConfigCloneIsolatesKeys(t *testing.T) {
	cfg := testConfig(t)
	clone := cloneConfig(cfg)

	cfg.JWT.PrivateKey[0] ^= 0xFF
	if clone.JWT.PrivateKey[0] == cfg.JWT.PrivateKey[0] {
		t.Fatal("expected cloned key material to be independent")
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.JWT.AccessTTL != 2*time.Hour {
		t.Fatalf("unexpected access TTL: %v", cfg.JWT.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected refresh TTL: %v", cfg.Token.RefreshTTL)
	}
	if cfg.Token.InactiveRetention != 7*24*time.Hour {
		t.Fatalf("unexpected inactive retention: %v", cfg.Token.InactiveRetention)
	}
	if cfg.PasswordReset.ResetTTL != time.Hour {
		t.Fatalf("unexpected reset TTL: %v", cfg.PasswordReset.ResetTTL)
	}
	if cfg.Sweeper.Interval != 24*time.Hour {
		t.Fatalf("unexpected sweep interval: %v", cfg.Sweeper.Interval)
	}
	if cfg.Security.IPMismatchPolicy != PolicyFlag {
		t.Fatalf("unexpected default IP policy: %v", cfg.Security.IPMismatchPolicy)
	}
	if cfg.Storage.Backend != BackendRedis {
		t.Fatalf("unexpected default backend: %v", cfg.Storage.Backend)
	}
}
