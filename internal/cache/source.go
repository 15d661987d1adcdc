package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v2"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/types"
)

// Config represents cache configuration
type Config struct {
	LocalTTL          time.Duration
	DistributedTTL    time.Duration
	MaxLocalSize      int64
	LocalItemsToPrune uint32
	KeyPrefix         string
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() *Config {
	return &Config{
		LocalTTL:          5 * time.Minute,
		DistributedTTL:    30 * time.Minute,
		MaxLocalSize:      1000,
		LocalItemsToPrune: 100,
		KeyPrefix:         "stock-analyzer:",
	}
}

// CachedSource decorates a Source with a local ccache tier and an optional
// distributed tier. Only successful fetches are cached.
type CachedSource struct {
	next        types.Source
	localCache  *ccache.Cache
	distributed DistributedStore
	config      *Config
	logger      *logrus.Logger
	metrics     monitoring.MetricsService
}

// NewCachedSource wraps next. distributed may be nil.
func NewCachedSource(next types.Source, distributed DistributedStore, config *Config, logger *logrus.Logger, metrics monitoring.MetricsService) *CachedSource {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewNoopMetrics()
	}

	localCache := ccache.New(ccache.Configure().
		MaxSize(config.MaxLocalSize).
		ItemsToPrune(config.LocalItemsToPrune))

	return &CachedSource{
		next:        next,
		localCache:  localCache,
		distributed: distributed,
		config:      config,
		logger:      logger,
		metrics:     metrics,
	}
}

// GetName returns the wrapped source's name
func (c *CachedSource) GetName() string {
	return c.next.GetName()
}

// GetStockPrices returns a cached series or fetches and caches it
func (c *CachedSource) GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if ctx.Err() != nil {
		return models.PriceSeries{}, types.Cancelled("cache: lookup for %s", ticker)
	}

	key := c.buildKey(ticker)

	// 1. Try local cache first
	if item := c.localCache.Get(key); item != nil && !item.Expired() {
		if series, ok := item.Value().(models.PriceSeries); ok {
			c.metrics.RecordCacheLookup("local", true)
			c.logger.WithFields(logrus.Fields{
				"ticker": ticker,
				"source": "local",
			}).Debug("Cache hit")
			return series, nil
		}
	}
	c.metrics.RecordCacheLookup("local", false)

	// 2. Try distributed cache
	if c.distributed != nil {
		if series, ok := c.getDistributed(ctx, key, ticker); ok {
			c.localCache.Set(key, series, c.config.LocalTTL)
			return series, nil
		}
	}

	series, err := c.next.GetStockPrices(ctx, ticker)
	if err != nil {
		return series, err
	}

	c.store(ctx, key, series)
	return series, nil
}

// Invalidate drops ticker from both tiers
func (c *CachedSource) Invalidate(ctx context.Context, ticker string) error {
	key := c.buildKey(ticker)
	c.localCache.Delete(key)

	if c.distributed != nil {
		if err := c.distributed.Delete(ctx, key); err != nil {
			return fmt.Errorf("cache: invalidate %s: %w", ticker, err)
		}
	}
	return nil
}

// Ping checks the distributed tier and the wrapped source
func (c *CachedSource) Ping(ctx context.Context) error {
	if c.distributed != nil {
		if err := c.distributed.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %s unreachable: %w", c.distributed.Name(), err)
		}
	}
	if checker, ok := c.next.(types.HealthChecker); ok {
		return checker.Ping(ctx)
	}
	return nil
}

// Close stops the local cache and closes the distributed store
func (c *CachedSource) Close() error {
	c.localCache.Stop()
	if c.distributed != nil {
		return c.distributed.Close()
	}
	return nil
}

func (c *CachedSource) getDistributed(ctx context.Context, key, ticker string) (models.PriceSeries, bool) {
	data, err := c.distributed.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.WithFields(logrus.Fields{
				"ticker": ticker,
				"store":  c.distributed.Name(),
				"error":  err,
			}).Warn("Distributed cache lookup failed")
		}
		c.metrics.RecordCacheLookup(c.distributed.Name(), false)
		return models.PriceSeries{}, false
	}

	var series models.PriceSeries
	if err := series.FromJSON(data); err != nil {
		c.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"error":  err,
		}).Error("Failed to unmarshal cache entry")
		c.metrics.RecordCacheLookup(c.distributed.Name(), false)
		return models.PriceSeries{}, false
	}

	c.metrics.RecordCacheLookup(c.distributed.Name(), true)
	c.logger.WithFields(logrus.Fields{
		"ticker": ticker,
		"source": c.distributed.Name(),
	}).Debug("Cache hit")
	return series, true
}

func (c *CachedSource) store(ctx context.Context, key string, series models.PriceSeries) {
	c.localCache.Set(key, series, c.config.LocalTTL)

	if c.distributed == nil {
		return
	}

	data, err := series.ToJSON()
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"ticker": series.Ticker,
			"error":  err,
		}).Error("Failed to marshal cache entry")
		return
	}

	// A failed write leaves the local tier serving.
	if err := c.distributed.Set(ctx, key, data, c.config.DistributedTTL); err != nil {
		c.logger.WithFields(logrus.Fields{
			"ticker": series.Ticker,
			"error":  err,
		}).Warn("Failed to set distributed cache")
	}
}

func (c *CachedSource) buildKey(ticker string) string {
	return c.config.KeyPrefix + "series:" + c.next.GetName() + ":" + ticker
}
