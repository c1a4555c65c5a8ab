package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/rate"
	"github.com/authcore-io/authcore/internal/stores"
	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/password"
	"github.com/authcore-io/authcore/token"
)

// Builder assembles an [Engine]. A Builder is single-use: Build returns
// an error on the second call so half-configured engines cannot escape.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	mongo  *mongo.Collection

	userProvider UserProvider
	auditSink    AuditSink
	logger       *zap.Logger

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned so
// later mutations by the caller do not leak into the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client. Redis is always required: even with
// the Mongo token backend it carries rate-limit counters and reset
// challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMongoCollection sets the collection backing the token store when
// Storage.Backend is [BackendMongo]. Ignored for the Redis backend.
func (b *Builder) WithMongoCollection(coll *mongo.Collection) *Builder {
	b.mongo = coll
	return b
}

// WithUserProvider sets the host's account lookup implementation.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit event consumer. When audit is enabled and
// no sink is provided, events are written through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every component, and returns
// the ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- TOKEN STORE --------
	var tokenStore token.Store
	switch cfg.Storage.Backend {
	case BackendMongo:
		if b.mongo == nil {
			return nil, errors.New("mongo backend requires a collection")
		}
		tokenStore = token.NewMongoStore(b.mongo)
	default:
		tokenStore = token.NewRedisStore(b.redis, cfg.Token.RedisPrefix, cfg.Token.InactiveRetention)
	}

	engine := &Engine{
		config: cfg,
		tokens: tokenStore,
		logger: logger,
	}

	engine.userProvider = b.userProvider
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		EnableResetIPThrottle:   cfg.PasswordReset.EnableIPThrottle,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshWindow:           cfg.Security.RefreshWindow,
		MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
		LoginCooldown:           cfg.Security.LoginCooldown,
		MaxResetRequests:        cfg.PasswordReset.MaxRequests,
		ResetRequestWindow:      cfg.PasswordReset.RequestWindow,
		MaxResetConfirmations:   cfg.PasswordReset.MaxConfirmations,
		ResetConfirmationWindow: cfg.PasswordReset.ConfirmationWindow,
	})
	if cfg.PasswordReset.Enabled {
		engine.resetStore = stores.NewResetStore(b.redis, cfg.PasswordReset.RedisPrefix)
	}

	sink := b.auditSink
	if sink == nil {
		sink = newZapAuditSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
