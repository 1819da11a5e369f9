package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/infra/tlsroots"
)

// DefaultOpTimeout bounds a single store operation when the caller's
// context has no earlier deadline.
const DefaultOpTimeout = 5 * time.Second

// Config configures the Redis store.
type Config struct {
	// URL is a redis:// or rediss:// URL.
	URL string
	// OpTimeout bounds each operation.
	OpTimeout time.Duration
	// CAFile adds a CA bundle for rediss:// connections.
	CAFile string
}

// Store is a coord.Store backed by Redis.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    *slog.Logger
}

var _ coord.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// ParseOptions turns cfg into go-redis options.
func ParseOptions(cfg Config) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}

	// The relay speaks RESP2 like the deployments it replaces. Servers
	// that reject HELLO are handled by go-redis falling back on its own.
	opts.Protocol = 2
	opts.DisableIdentity = true

	if cfg.CAFile != "" {
		if opts.TLSConfig == nil {
			return nil, errors.New("redisstore: coord CA file set but url is not rediss://")
		}
		pool, err := tlsroots.TrustFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts.TLSConfig.RootCAs = pool
		if opts.TLSConfig.MinVersion == 0 {
			opts.TLSConfig.MinVersion = tls.VersionTLS12
		}
	}
	return opts, nil
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	ropts, err := ParseOptions(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		client:    redis.NewClient(ropts),
		opTimeout: cfg.OpTimeout,
		logger:    slog.Default(),
	}
	if s.opTimeout <= 0 {
		s.opTimeout = DefaultOpTimeout
	}
	for _, opt := range opts {
		opt(s)
	}

	pingCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}

	s.logger.Info("coordination store connected",
		"addr", ropts.Addr,
		"db", ropts.DB,
		"tls", ropts.TLSConfig != nil,
	)
	return s, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// SetAdd implements coord.Store.
func (s *Store) SetAdd(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.SAdd(ctx, key, member).Result()
	return n > 0, err
}

// SetRemove implements coord.Store.
func (s *Store) SetRemove(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.SRem(ctx, key, member).Result()
	return n > 0, err
}

// SetMembers implements coord.Store.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.SMembers(ctx, key).Result()
}

// SetDelete implements coord.Store.
func (s *Store) SetDelete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Del(ctx, key).Err()
}

// CounterIncrement implements coord.Store.
func (s *Store) CounterIncrement(ctx context.Context, key, field string, delta int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.HIncrBy(ctx, key, field, delta).Result()
}

// CounterDelete implements coord.Store.
func (s *Store) CounterDelete(ctx context.Context, key, field string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.HDel(ctx, key, field).Err()
}

// CounterGet implements coord.Store.
func (s *Store) CounterGet(ctx context.Context, key, field string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.HGet(ctx, key, field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Publish implements coord.Store.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Publish(ctx, channel, payload).Result()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the client pool. Open subscriptions hold their own
// connection and must be closed separately.
func (s *Store) Close() error {
	return s.client.Close()
}
