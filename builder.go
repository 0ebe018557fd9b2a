package authcore

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/quantconsole/authcore/internal/eventlog"
	"github.com/quantconsole/authcore/jwt"
	"github.com/quantconsole/authcore/password"
	"github.com/quantconsole/authcore/session"
)

// Builder assembles an Engine. Collaborators come from the host: a Redis
// client for the session registry, a UserStore and EventStore for durable
// state, and optionally an EventSink for async delivery of event copies.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore  UserStore
	eventStore EventStore
	eventSink  EventSink
	logger     *slog.Logger

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

func (b *Builder) WithEventStore(store EventStore) *Builder {
	b.eventStore = store
	return b
}

// WithEventSink registers an async consumer of security event copies.
// Enables the sink dispatcher implicitly.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	b.config.Events.SinkEnabled = sink != nil
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the collaborators, and returns
// an immutable Engine. A Builder can build at most once.
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
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if b.eventStore == nil {
		return nil, errors.New("event store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret:     cloneBytes(cfg.JWT.Secret),
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	ph, err := password.NewHasher(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		userStore:    b.userStore,
		eventStore:   b.eventStore,
		dispatcher:   eventlog.NewDispatcher(cfg.dispatcherConfig(), b.eventSink),
		metrics:      NewMetrics(cfg.Metrics),
		totp:         newTOTPManager(cfg.TOTP),
		passwords:    ph,
		tokens:       jm,
	}

	b.built = true

	return engine, nil
}
