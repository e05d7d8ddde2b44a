package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/apextrack/internal/config"
	"github.com/goodtune/apextrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client       *redis.Client
	sessionStore *sessionStore
	assetStore   *assetStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port (e.g. miniredis addresses)
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. An empty prefix defaults to "apextrack".
func NewWithClient(client *redis.Client, prefix string) *Store {
	keys := keyspace{prefix: prefix}
	if keys.prefix == "" {
		keys.prefix = "apextrack"
	}
	return &Store{
		client:       client,
		sessionStore: &sessionStore{client: client, keys: keys},
		assetStore:   &assetStore{client: client, keys: keys},
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return s.sessionStore
}

// Assets returns the AssetStore implementation
func (s *Store) Assets() storage.AssetStore {
	return s.assetStore
}

// keyspace builds every key the store touches. Asset ids are opaque, so each
// per-asset key family gets its own namespace.
type keyspace struct {
	prefix string
}

func (k keyspace) session(id string) string {
	return fmt.Sprintf("%s:session:%s", k.prefix, id)
}

func (k keyspace) liveSessions() string {
	return k.prefix + ":sessions:live"
}

func (k keyspace) assetLive(assetID string) string {
	return fmt.Sprintf("%s:asset-live:%s", k.prefix, assetID)
}

func (k keyspace) assetSessions(assetID string) string {
	return fmt.Sprintf("%s:asset-sessions:%s", k.prefix, assetID)
}

func (k keyspace) asset(id string) string {
	return fmt.Sprintf("%s:asset:%s", k.prefix, id)
}

func (k keyspace) assets() string {
	return k.prefix + ":assets"
}
