// Package providers builds the configured stock price source
package providers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/cache"
	"stock-analyzer/internal/config"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/providers/csvfile"
	"stock-analyzer/internal/providers/mock"
	"stock-analyzer/internal/providers/stocksapi"
	"stock-analyzer/internal/types"
)

// Factory builds sources from configuration
type Factory struct {
	source  config.SourceConfig
	cache   config.CacheConfig
	logger  *logrus.Logger
	metrics monitoring.MetricsService
}

// NewFactory creates a new source factory
func NewFactory(source config.SourceConfig, cacheCfg config.CacheConfig, logger *logrus.Logger, metrics monitoring.MetricsService) *Factory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewNoopMetrics()
	}
	return &Factory{
		source:  source,
		cache:   cacheCfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Build returns the configured source, wrapped in the cache when enabled.
// The result may implement io.Closer.
func (f *Factory) Build() (types.Source, error) {
	source, err := f.newSource(f.source.Name)
	if err != nil {
		return nil, err
	}

	if !f.cache.Enabled {
		return source, nil
	}

	store, err := f.newStore()
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"source":  source.GetName(),
		"backend": f.cache.Backend,
	}).Info("Series cache enabled")

	return cache.NewCachedSource(source, store, &cache.Config{
		LocalTTL:          f.cache.LocalTTL,
		DistributedTTL:    f.cache.DistributedTTL,
		MaxLocalSize:      f.cache.MaxLocalSize,
		LocalItemsToPrune: uint32(max(f.cache.MaxLocalSize/10, 1)),
		KeyPrefix:         f.cache.KeyPrefix,
	}, f.logger, f.metrics), nil
}

func (f *Factory) newSource(name string) (types.Source, error) {
	switch name {
	case types.SourceStocksAPI:
		return stocksapi.NewClient(&stocksapi.Config{
			BaseURL:   f.source.BaseURL,
			Timeout:   f.source.Timeout,
			RateLimit: f.source.RateLimit,
			Burst:     f.source.Burst,
		}, f.logger), nil
	case types.SourceCSV:
		if f.source.CSVPath == "" {
			return nil, fmt.Errorf("csv source requires a file path")
		}
		return csvfile.NewSource(f.source.CSVPath, f.logger), nil
	case types.SourceMock:
		return mock.NewSource().WithDelay(f.source.MockDelay), nil
	default:
		return nil, fmt.Errorf("unknown stock source %q", name)
	}
}

func (f *Factory) newStore() (cache.DistributedStore, error) {
	switch f.cache.Backend {
	case "", "none":
		return nil, nil
	case "redis":
		store, err := cache.NewRedisStore(&cache.RedisConfig{
			Addr:         f.cache.RedisAddr,
			Password:     f.cache.RedisPassword,
			DB:           f.cache.RedisDB,
			PoolSize:     f.cache.RedisPoolSize,
			DialTimeout:  f.cache.Timeout,
			ReadTimeout:  f.cache.Timeout,
			WriteTimeout: f.cache.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memcached":
		store, err := cache.NewMemcachedStore(&cache.MemcachedConfig{
			Hosts:   f.cache.MemcachedHosts,
			Timeout: f.cache.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", f.cache.Backend)
	}
}
