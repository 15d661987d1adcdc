package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedConfig configures the memcached tier
type MemcachedConfig struct {
	Hosts        []string
	Timeout      time.Duration
	MaxIdleConns int
}

// MemcachedStore implements DistributedStore on memcached
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a memcached store. The client connects lazily.
func NewMemcachedStore(config *MemcachedConfig) (*MemcachedStore, error) {
	if len(config.Hosts) == 0 {
		return nil, errors.New("memcached: no hosts configured")
	}

	client := memcache.New(config.Hosts...)
	if config.Timeout > 0 {
		client.Timeout = config.Timeout
	}
	if config.MaxIdleConns > 0 {
		client.MaxIdleConns = config.MaxIdleConns
	}

	return &MemcachedStore{client: client}, nil
}

func (s *MemcachedStore) Name() string {
	return "memcached"
}

func (s *MemcachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("memcached: get %s: %w", key, err)
	}
	return item.Value, nil
}

func (s *MemcachedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := s.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("memcached: set %s: %w", key, err)
	}
	return nil
}

func (s *MemcachedStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcached: delete %s: %w", key, err)
	}
	return nil
}

func (s *MemcachedStore) Ping(ctx context.Context) error {
	return s.client.Ping()
}

// Close is a no-op; idle connections go away with the client
func (s *MemcachedStore) Close() error {
	return nil
}
