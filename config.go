package authcore

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Token         TokenConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Sweeper       SweeperConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
	Storage       StorageConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls the stateless access-token issuer.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls refresh-token lifetimes and the store key layout.
type TokenConfig struct {
	RefreshTTL        time.Duration
	InactiveRetention time.Duration
	RedisPrefix       string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters for the password hasher the
// engine applies during Login verification and reset redemption.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordResetConfig controls the one-time reset challenge lifecycle.
type PasswordResetConfig struct {
	Enabled            bool
	ResetTTL           time.Duration
	RedisPrefix        string
	EnableIPThrottle   bool
	MaxRequests        int
	RequestWindow      time.Duration
	MaxConfirmations   int
	ConfirmationWindow time.Duration
}

/*
====================================
SWEEPER CONFIG
====================================
*/

// SweeperConfig controls the background cleanup schedule.
type SweeperConfig struct {
	Interval time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// IPMismatchPolicy decides what rotation does when the presenting IP
// differs from the one the token was issued to. The default is
// PolicyFlag: log a suspicious-activity signal and continue, which keeps
// roaming and mobile clients working. Stricter deployments set
// PolicyBlock to reject rotation outright.
type IPMismatchPolicy int

const (
	// PolicyFlag logs the mismatch and allows rotation.
	PolicyFlag IPMismatchPolicy = iota
	// PolicyAllow ignores the mismatch entirely.
	PolicyAllow
	// PolicyBlock rejects rotation with the generic token error.
	PolicyBlock
)

// SecurityConfig holds throttle budgets and the IP mismatch policy.
type SecurityConfig struct {
	IPMismatchPolicy      IPMismatchPolicy
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects the token store implementation.
type StorageBackend string

const (
	// BackendRedis stores token records in Redis (default).
	BackendRedis StorageBackend = "redis"
	// BackendMongo stores token records in MongoDB. Redis is still
	// required for rate limiting and reset challenges.
	BackendMongo StorageBackend = "mongo"
)

// StorageConfig selects the token store backend.
type StorageConfig struct {
	Backend StorageBackend
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: 2h access tokens,
// 30d refresh tokens with 7d inactive retention, hourly reset
// challenges, and a daily sweep. JWT keys must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     2 * time.Hour,
			SigningMethod: "ed25519",
		},
		Token: TokenConfig{
			RefreshTTL:        30 * 24 * time.Hour,
			InactiveRetention: 7 * 24 * time.Hour,
			RedisPrefix:       "rt",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:            true,
			ResetTTL:           time.Hour,
			RedisPrefix:        "apr",
			EnableIPThrottle:   true,
			MaxRequests:        5,
			RequestWindow:      15 * time.Minute,
			MaxConfirmations:   10,
			ConfirmationWindow: 15 * time.Minute,
		},
		Sweeper: SweeperConfig{
			Interval: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			IPMismatchPolicy:      PolicyFlag,
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    20,
			RefreshWindow:         time.Minute,
			MaxLoginAttempts:      5,
			LoginCooldown:         15 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: BackendRedis,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internally inconsistent or
// insecure values. Build calls it; hosts may call it earlier to fail
// fast.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires PrivateKey of at least 32 bytes")
	}

	// Token
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.InactiveRetention < 0 {
		return errors.New("Token InactiveRetention must be >= 0")
	}
	if c.Token.RedisPrefix == "" {
		return errors.New("Token RedisPrefix must not be empty")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Password Reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.ResetTTL <= 0 {
			return errors.New("PasswordReset ResetTTL must be > 0")
		}
		if c.PasswordReset.RedisPrefix == "" {
			return errors.New("PasswordReset RedisPrefix must not be empty")
		}
		if c.PasswordReset.MaxRequests <= 0 {
			return errors.New("PasswordReset MaxRequests must be > 0")
		}
		if c.PasswordReset.RequestWindow <= 0 {
			return errors.New("PasswordReset RequestWindow must be > 0")
		}
		if c.PasswordReset.EnableIPThrottle {
			if c.PasswordReset.MaxConfirmations <= 0 {
				return errors.New("PasswordReset MaxConfirmations must be > 0 when IP throttle is enabled")
			}
			if c.PasswordReset.ConfirmationWindow <= 0 {
				return errors.New("PasswordReset ConfirmationWindow must be > 0 when IP throttle is enabled")
			}
		}
	}

	// Sweeper
	if c.Sweeper.Interval <= 0 {
		return errors.New("Sweeper Interval must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	switch c.Security.IPMismatchPolicy {
	case PolicyAllow, PolicyFlag, PolicyBlock:
		// valid
	default:
		return errors.New("invalid IPMismatchPolicy")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshWindow <= 0 {
			return errors.New("RefreshWindow must be > 0 when refresh throttle is enabled")
		}
	}
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldown <= 0 {
		return errors.New("LoginCooldown must be > 0")
	}

	// Storage
	switch c.Storage.Backend {
	case BackendRedis, BackendMongo:
		// valid
	default:
		return errors.New("Storage Backend must be 'redis' or 'mongo'")
	}

	return nil
}
