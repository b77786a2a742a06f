package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/microplat/authcore/cache"
	"github.com/microplat/authcore/directory"
	"github.com/microplat/authcore/jwt"
	"github.com/microplat/authcore/logging"
	"github.com/microplat/authcore/store"
)

// Builder wires the Engine's dependencies. A Builder is single-use: Build
// validates the configuration, constructs the subcomponents, and hands
// back an immutable Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	tokens    store.Store
	directory directory.Client
	auditSink AuditSink
	logger    logging.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the revocation cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the durable refresh-token store.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.tokens = s
	return b
}

// WithDirectory sets the user directory client.
func (b *Builder) WithDirectory(d directory.Client) *Builder {
	b.directory = d
	return b
}

// WithAuditSink sets the sink the audit dispatcher delivers to. Setting a
// sink does not enable auditing; Audit.Enabled does.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles the metrics registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-path latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates configuration and dependencies and constructs the
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.tokens == nil {
		return nil, errors.New("token store required")
	}
	if b.directory == nil {
		return nil, errors.New("directory client required")
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	engine := &Engine{
		config:      cfg,
		jwtManager:  jm,
		tokens:      b.tokens,
		revocations: cache.NewRevocations(b.redis, cfg.Cache.KeyPrefix),
		directory:   b.directory,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		log:         logger,
	}

	b.built = true

	return engine, nil
}
