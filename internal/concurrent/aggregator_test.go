package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analyzer/internal/analysis"
	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

func sampleSeries(tickers ...string) []models.PriceSeries {
	out := make([]models.PriceSeries, 0, len(tickers))
	for _, ticker := range tickers {
		out = append(out, seriesOf(ticker, "0.5", "0.2", "-0.1", "0.4"))
	}
	return out
}

func tickersOf(values []models.DerivedValue) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Ticker)
	}
	return out
}

func TestNewAggregator(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		cfg := DefaultAggregatorConfig()
		aggregator := NewAggregator(cfg, nil, nil)

		assert.Equal(t, "MBI", aggregator.sentinel)
		assert.NotNil(t, aggregator.compute)
		assert.NotNil(t, aggregator.logger)
		assert.NotNil(t, aggregator.metrics)
	})
}

func TestAggregator_Aggregate(t *testing.T) {
	ctx := context.Background()

	t.Run("all series complete", func(t *testing.T) {
		cfg := DefaultAggregatorConfig()
		cfg.Workload = analysis.WorkloadConfig{MinRepeat: 1, MaxRepeat: 3}
		aggregator := NewAggregator(cfg, nil, nil)
		series := sampleSeries("MSFT", "GOOGL", "AAPL")

		result, err := aggregator.Aggregate(ctx, series, 4)

		require.NoError(t, err)
		assert.True(t, result.Completed)
		assert.False(t, result.EarlyExit())
		assert.Nil(t, result.Partial())
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, 3, result.Dispatched)
		assert.ElementsMatch(t, []string{"MSFT", "GOOGL", "AAPL"}, tickersOf(result.Values))

		for _, v := range result.Values {
			for _, s := range series {
				if s.Ticker == v.Ticker {
					assert.True(t, analysis.ExpensiveComputation(s, cfg.Workload).Equal(v.Result))
				}
			}
		}
	})

	t.Run("empty input completes with no values", func(t *testing.T) {
		result, err := NewAggregator(DefaultAggregatorConfig(), nil, nil).Aggregate(ctx, nil, 4)

		require.NoError(t, err)
		assert.True(t, result.Completed)
		assert.Empty(t, result.Values)
	})

	t.Run("sentinel stops dispatch early", func(t *testing.T) {
		cfg := DefaultAggregatorConfig()
		cfg.Workload = analysis.WorkloadConfig{MinRepeat: 1, MaxRepeat: 2}
		aggregator := NewAggregator(cfg, nil, nil)

		result, err := aggregator.Aggregate(ctx, sampleSeries("MSFT", "MBI", "GOOGL"), 4)

		require.NoError(t, err)
		assert.Less(t, len(result.Values), 3)
		assert.True(t, result.EarlyExit())
		assert.Equal(t, "MBI", result.StoppedBy)
		assert.NotContains(t, tickersOf(result.Values), "MBI")

		partial := result.Partial()
		require.NotNil(t, partial)
		assert.Equal(t, 3, partial.Total)
		assert.Equal(t, len(result.Values), partial.Completed)
	})

	t.Run("single worker hands out nothing after the sentinel", func(t *testing.T) {
		var computed atomic.Int32
		cfg := DefaultAggregatorConfig()
		cfg.Compute = func(s models.PriceSeries) (decimal.Decimal, error) {
			computed.Add(1)
			return s.TotalChange(), nil
		}
		aggregator := NewAggregator(cfg, nil, nil)

		result, err := aggregator.Aggregate(ctx, sampleSeries("MSFT", "MBI", "GOOGL", "AAPL"), 1)

		require.NoError(t, err)
		assert.Equal(t, []string{"MSFT"}, tickersOf(result.Values))
		assert.Equal(t, 2, result.Dispatched)
		assert.Equal(t, int32(1), computed.Load())
		assert.False(t, result.Completed)
	})

	t.Run("sentinel as last item still marks the run incomplete", func(t *testing.T) {
		aggregator := NewAggregator(DefaultAggregatorConfig(), nil, nil)
		aggregator.compute = func(s models.PriceSeries) (decimal.Decimal, error) {
			return s.TotalChange(), nil
		}

		result, err := aggregator.Aggregate(ctx, sampleSeries("MSFT", "GOOGL", "MBI"), 1)

		require.NoError(t, err)
		assert.Len(t, result.Values, 2)
		assert.False(t, result.Completed)
	})

	t.Run("no sentinel configured", func(t *testing.T) {
		cfg := AggregatorConfig{Compute: func(s models.PriceSeries) (decimal.Decimal, error) {
			return s.TotalChange(), nil
		}}

		result, err := NewAggregator(cfg, nil, nil).Aggregate(ctx, sampleSeries("MSFT", "MBI"), 2)

		require.NoError(t, err)
		assert.True(t, result.Completed)
		assert.Len(t, result.Values, 2)
	})

	t.Run("unit failures are recorded without aborting the batch", func(t *testing.T) {
		cfg := DefaultAggregatorConfig()
		cfg.Compute = func(s models.PriceSeries) (decimal.Decimal, error) {
			switch s.Ticker {
			case "BAD":
				return decimal.Zero, errors.New("bad data")
			case "BOOM":
				panic("boom")
			}
			return s.TotalChange(), nil
		}

		result, err := NewAggregator(cfg, nil, nil).Aggregate(ctx, sampleSeries("MSFT", "BAD", "BOOM", "GOOGL"), 2)

		require.NoError(t, err)
		assert.True(t, result.Completed)
		assert.ElementsMatch(t, []string{"MSFT", "GOOGL"}, tickersOf(result.Values))
		require.Len(t, result.Failures, 2)

		failed := map[string]int{}
		for _, f := range result.Failures {
			failed[f.Ticker] = f.Index
			assert.Error(t, f.Err)
		}
		assert.Equal(t, map[string]int{"BAD": 1, "BOOM": 2}, failed)
	})

	t.Run("defaults concurrency when not positive", func(t *testing.T) {
		cfg := DefaultAggregatorConfig()
		cfg.Compute = func(s models.PriceSeries) (decimal.Decimal, error) { return decimal.Zero, nil }

		result, err := NewAggregator(cfg, nil, nil).Aggregate(ctx, sampleSeries("A", "B", "C", "D", "E"), 0)

		require.NoError(t, err)
		assert.Len(t, result.Values, 5)
	})

	t.Run("cancel before start", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := NewAggregator(DefaultAggregatorConfig(), nil, nil).Aggregate(cancelled, sampleSeries("MSFT"), 4)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, types.ErrCancelled))
	})

	t.Run("cancel lets in-flight units finish then aborts", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		release := make(chan struct{})
		var started, finished atomic.Int32

		cfg := DefaultAggregatorConfig()
		cfg.Compute = func(s models.PriceSeries) (decimal.Decimal, error) {
			started.Add(1)
			<-release
			finished.Add(1)
			return decimal.Zero, nil
		}

		go func() {
			for started.Load() < 2 {
				time.Sleep(time.Millisecond)
			}
			cancel()
			close(release)
		}()

		result, err := NewAggregator(cfg, nil, nil).Aggregate(runCtx, sampleSeries("A", "B", "C", "D", "E", "F"), 2)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, types.ErrCancelled))
		assert.Equal(t, started.Load(), finished.Load())
		assert.Less(t, started.Load(), int32(6))
	})
}

func TestDispatchControl(t *testing.T) {
	t.Run("leaves running once", func(t *testing.T) {
		control := newDispatchControl()
		assert.Equal(t, DispatchRunning, control.State())

		assert.True(t, control.Stop())
		assert.False(t, control.Cancel())
		assert.False(t, control.Stop())
		assert.Equal(t, DispatchStopped, control.State())

		select {
		case <-control.Halted():
		default:
			t.Fatal("halted channel not closed")
		}
	})

	t.Run("cancel from running", func(t *testing.T) {
		control := newDispatchControl()
		assert.True(t, control.Cancel())
		assert.Equal(t, DispatchCancelled, control.State())
		assert.Equal(t, "cancelled", control.State().String())
	})
}
