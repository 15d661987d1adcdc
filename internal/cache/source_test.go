package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

// Mock Source
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(models.PriceSeries), args.Error(1)
}

func (m *MockSource) GetName() string {
	return "mock"
}

// memoryStore is an in-memory DistributedStore
type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error { return nil }
func (s *memoryStore) Close() error                   { return nil }
func (s *memoryStore) Name() string                   { return "memory" }

func msftSeries() models.PriceSeries {
	return models.NewPriceSeries("MSFT", []models.PricePoint{
		{Ticker: "MSFT", TradeDate: time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC), Change: decimal.RequireFromString("0.5"), ChangePercent: decimal.RequireFromString("0.75")},
		{Ticker: "MSFT", TradeDate: time.Date(2019, 1, 3, 0, 0, 0, 0, time.UTC), Change: decimal.RequireFromString("0.2"), ChangePercent: decimal.RequireFromString("0.15")},
	})
}

func TestCachedSource_GetStockPrices(t *testing.T) {
	ctx := context.Background()

	t.Run("second call is served locally", func(t *testing.T) {
		next := new(MockSource)
		next.On("GetStockPrices", mock.Anything, "MSFT").Return(msftSeries(), nil).Once()

		cached := NewCachedSource(next, nil, nil, nil, nil)
		defer cached.Close()

		first, err := cached.GetStockPrices(ctx, "MSFT")
		require.NoError(t, err)
		second, err := cached.GetStockPrices(ctx, "MSFT")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		next.AssertNumberOfCalls(t, "GetStockPrices", 1)
	})

	t.Run("distributed tier fills a cold local tier", func(t *testing.T) {
		store := newMemoryStore()

		warm := new(MockSource)
		warm.On("GetStockPrices", mock.Anything, "MSFT").Return(msftSeries(), nil).Once()
		writer := NewCachedSource(warm, store, nil, nil, nil)
		_, err := writer.GetStockPrices(ctx, "MSFT")
		require.NoError(t, err)
		writer.Close()

		cold := new(MockSource)
		reader := NewCachedSource(cold, store, nil, nil, nil)
		defer reader.Close()

		series, err := reader.GetStockPrices(ctx, "MSFT")

		require.NoError(t, err)
		assert.Equal(t, "0.7", series.TotalChange().String())
		cold.AssertNotCalled(t, "GetStockPrices", mock.Anything, mock.Anything)
	})

	t.Run("failing distributed tier falls through to the source", func(t *testing.T) {
		store := newMemoryStore()
		store.failGet = true

		next := new(MockSource)
		next.On("GetStockPrices", mock.Anything, "MSFT").Return(msftSeries(), nil).Once()

		cached := NewCachedSource(next, store, nil, nil, nil)
		defer cached.Close()

		series, err := cached.GetStockPrices(ctx, "MSFT")

		require.NoError(t, err)
		assert.Equal(t, 2, series.Len())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		fetchErr := types.NewFetchError("mock", "MSFT", types.ErrorCodeNetworkError, "refused", nil)

		next := new(MockSource)
		next.On("GetStockPrices", mock.Anything, "MSFT").Return(models.PriceSeries{}, fetchErr).Once()
		next.On("GetStockPrices", mock.Anything, "MSFT").Return(msftSeries(), nil).Once()

		cached := NewCachedSource(next, nil, nil, nil, nil)
		defer cached.Close()

		_, err := cached.GetStockPrices(ctx, "MSFT")
		assert.True(t, types.IsFetchFailure(err))

		series, err := cached.GetStockPrices(ctx, "MSFT")
		require.NoError(t, err)
		assert.Equal(t, 2, series.Len())
	})

	t.Run("cancelled context skips the lookup", func(t *testing.T) {
		next := new(MockSource)
		cached := NewCachedSource(next, nil, nil, nil, nil)
		defer cached.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := cached.GetStockPrices(cancelled, "MSFT")

		assert.True(t, errors.Is(err, types.ErrCancelled))
		next.AssertNotCalled(t, "GetStockPrices", mock.Anything, mock.Anything)
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		store := newMemoryStore()
		next := new(MockSource)
		next.On("GetStockPrices", mock.Anything, "MSFT").Return(msftSeries(), nil).Twice()

		cached := NewCachedSource(next, store, nil, nil, nil)
		defer cached.Close()

		_, err := cached.GetStockPrices(ctx, "MSFT")
		require.NoError(t, err)
		require.NoError(t, cached.Invalidate(ctx, "MSFT"))
		_, err = cached.GetStockPrices(ctx, "MSFT")
		require.NoError(t, err)

		next.AssertNumberOfCalls(t, "GetStockPrices", 2)
	})
}

func TestCachedSource_Ping(t *testing.T) {
	cached := NewCachedSource(new(MockSource), newMemoryStore(), nil, nil, nil)
	defer cached.Close()

	assert.NoError(t, cached.Ping(context.Background()))
	assert.Equal(t, "mock", cached.GetName())
}

func TestNewMemcachedStore(t *testing.T) {
	_, err := NewMemcachedStore(&MemcachedConfig{})
	assert.Error(t, err)

	store, err := NewMemcachedStore(&MemcachedConfig{Hosts: []string{"localhost:11211"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "memcached", store.Name())
}
