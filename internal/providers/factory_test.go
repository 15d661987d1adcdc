package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analyzer/internal/cache"
	"stock-analyzer/internal/config"
	"stock-analyzer/internal/providers/csvfile"
	"stock-analyzer/internal/providers/mock"
	"stock-analyzer/internal/providers/stocksapi"
)

func TestFactory_Build(t *testing.T) {
	t.Run("builds each source by name", func(t *testing.T) {
		tests := []struct {
			name     string
			expected interface{}
		}{
			{"stocksapi", &stocksapi.Client{}},
			{"csv", &csvfile.Source{}},
			{"mock", &mock.Source{}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				factory := NewFactory(config.SourceConfig{
					Name:    tt.name,
					BaseURL: "http://localhost:1",
					CSVPath: "prices.csv",
					Timeout: time.Second,
				}, config.CacheConfig{}, nil, nil)

				source, err := factory.Build()

				require.NoError(t, err)
				assert.IsType(t, tt.expected, source)
			})
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := NewFactory(config.SourceConfig{Name: "ftp"}, config.CacheConfig{}, nil, nil).Build()
		assert.Error(t, err)
	})

	t.Run("csv without a path", func(t *testing.T) {
		_, err := NewFactory(config.SourceConfig{Name: "csv"}, config.CacheConfig{}, nil, nil).Build()
		assert.Error(t, err)
	})

	t.Run("local-only cache wraps the source", func(t *testing.T) {
		factory := NewFactory(config.SourceConfig{Name: "mock"}, config.CacheConfig{
			Enabled:      true,
			Backend:      "none",
			LocalTTL:     time.Minute,
			MaxLocalSize: 100,
		}, nil, nil)

		source, err := factory.Build()

		require.NoError(t, err)
		cached, ok := source.(*cache.CachedSource)
		require.True(t, ok)
		defer cached.Close()

		series, err := cached.GetStockPrices(context.Background(), "MSFT")
		require.NoError(t, err)
		assert.Equal(t, 2, series.Len())
		assert.Equal(t, "mock", cached.GetName())
	})

	t.Run("unknown cache backend", func(t *testing.T) {
		_, err := NewFactory(config.SourceConfig{Name: "mock"}, config.CacheConfig{Enabled: true, Backend: "etcd"}, nil, nil).Build()
		assert.Error(t, err)
	})
}
