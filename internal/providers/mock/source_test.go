package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analyzer/internal/types"
)

func TestSource_GetStockPrices(t *testing.T) {
	ctx := context.Background()
	source := NewSource()

	t.Run("MSFT has two rows summing to 0.7", func(t *testing.T) {
		series, err := source.GetStockPrices(ctx, "MSFT")

		require.NoError(t, err)
		assert.Equal(t, 2, series.Len())
		assert.Equal(t, "0.7", series.TotalChange().String())
	})

	t.Run("GOOGL has two rows", func(t *testing.T) {
		series, err := source.GetStockPrices(ctx, "GOOGL")

		require.NoError(t, err)
		assert.Equal(t, 2, series.Len())
		assert.Equal(t, "0.8", series.TotalChange().String())
	})

	t.Run("unknown ticker is an empty series", func(t *testing.T) {
		series, err := source.GetStockPrices(ctx, "msft")

		require.NoError(t, err)
		assert.Equal(t, "msft", series.Ticker)
		assert.True(t, series.IsEmpty())
	})

	t.Run("delay honours cancellation", func(t *testing.T) {
		slow := NewSource().WithDelay(time.Minute)
		cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := slow.GetStockPrices(cancelled, "MSFT")

		assert.True(t, errors.Is(err, types.ErrCancelled))
	})

	t.Run("name and ping", func(t *testing.T) {
		assert.Equal(t, "mock", source.GetName())
		assert.NoError(t, source.Ping(ctx))
	})
}
