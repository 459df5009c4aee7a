// Package rediscache wraps an auth.UserStore with a Redis read-through
// cache, so replicas share user lookups instead of each hitting the
// backing store.
//
// Only found users are cached. Redis failures are logged and the lookup
// falls through to the backing store.
//
// Cached entries hold the full user record, bcrypt password hash included,
// since the password provider verifies against it on a cache hit. Treat the
// Redis instance as holding credentials. Changes made in the backing store
// (deactivation, deletion, a new password) are visible only after the entry
// expires or is dropped with Invalidate; the server invalidates every
// configured user at startup.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/debug"
	"github.com/rhuss/securest/pkg/observability"
	"github.com/rhuss/securest/pkg/userstore"
)

// Config holds the Redis connection and cache settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to every cache key. Default: "securest:user:".
	KeyPrefix string

	// TTL bounds how long a cached user is served. Default: 1 minute.
	TTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "securest:user:"
	}
	if c.TTL == 0 {
		c.TTL = time.Minute
	}
}

// Store is a caching auth.UserStore.
type Store struct {
	client  *redis.Client
	backend auth.UserStore
	prefix  string
	ttl     time.Duration
}

var _ auth.UserStore = (*Store)(nil)

// New connects to Redis and wraps backend.
func New(ctx context.Context, cfg Config, backend auth.UserStore) (*Store, error) {
	if backend == nil {
		return nil, errors.New("rediscache: backend store is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewWithClient(client, cfg, backend), nil
}

// NewWithClient wraps backend using an existing client.
func NewWithClient(client *redis.Client, cfg Config, backend auth.UserStore) *Store {
	cfg.applyDefaults()
	return &Store{
		client:  client,
		backend: backend,
		prefix:  cfg.KeyPrefix,
		ttl:     cfg.TTL,
	}
}

// GetUser serves subjectID from the cache, loading it from the backing
// store on a miss.
func (s *Store) GetUser(ctx context.Context, subjectID string) (auth.User, error) {
	key := s.prefix + subjectID

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec userstore.Record
		if uerr := json.Unmarshal(data, &rec); uerr == nil {
			observability.UserLookupsTotal.WithLabelValues("redis", "hit").Inc()
			return rec.User(), nil
		}
		slog.Warn("discarding corrupt cached user", "key", key)
	case errors.Is(err, redis.Nil):
		observability.UserLookupsTotal.WithLabelValues("redis", "miss").Inc()
	default:
		observability.UserLookupsTotal.WithLabelValues("redis", "error").Inc()
		slog.Warn("user cache unavailable, using backing store", "error", err)
	}

	user, err := s.backend.GetUser(ctx, subjectID)
	if err != nil || user == nil {
		return user, err
	}

	if ru, ok := user.(*auth.RegisteredUser); ok {
		s.store(ctx, key, ru)
	}
	return user, nil
}

func (s *Store) store(ctx context.Context, key string, u *auth.RegisteredUser) {
	data, err := json.Marshal(userstore.FromUser(u))
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		slog.Warn("caching user failed", "key", key, "error", err)
		return
	}
	debug.Log("userstore", "user cached", "key", key, "ttl", s.ttl)
}

// Invalidate drops the given subjects from the cache.
func (s *Store) Invalidate(ctx context.Context, subjectIDs ...string) error {
	if len(subjectIDs) == 0 {
		return nil
	}
	keys := make([]string, len(subjectIDs))
	for i, id := range subjectIDs {
		keys[i] = s.prefix + id
	}
	return s.client.Del(ctx, keys...).Err()
}

// HealthCheck pings Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client. The backing store is not closed.
func (s *Store) Close() error {
	return s.client.Close()
}
