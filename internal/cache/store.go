// Package cache provides a two-tier series cache: an in-process ccache tier in
// front of an optional distributed store (redis or memcached).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a DistributedStore when a key is absent
var ErrMiss = errors.New("cache miss")

// DistributedStore is the shared cache tier behind the local cache
type DistributedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Name() string
}
