package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-analyzer/internal/analysis"
	"stock-analyzer/internal/cancellation"
	"stock-analyzer/internal/concurrent"
	"stock-analyzer/internal/models"
	mocksource "stock-analyzer/internal/providers/mock"
	"stock-analyzer/internal/types"
)

// Mock Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) ReportValues(values []models.DerivedValue) {
	m.Called(values)
}

func (m *MockSink) ReportTotal(total decimal.Decimal) {
	m.Called(total)
}

func (m *MockSink) Log(message string) {
	m.Called(message)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Aggregator.Workload = analysis.WorkloadConfig{MinRepeat: 1, MaxRepeat: 3}
	return cfg
}

func hasNote(notes []string, prefix string) bool {
	for _, n := range notes {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

func countNote(notes []string, note string) int {
	n := 0
	for _, line := range notes {
		if line == note {
			n++
		}
	}
	return n
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("successful run reports values and total", func(t *testing.T) {
		service := NewService(mocksource.NewSource(), testConfig(), nil, nil)

		sink := new(MockSink)
		sink.On("ReportValues", mock.MatchedBy(func(values []models.DerivedValue) bool {
			return len(values) == 2
		})).Return().Once()
		sink.On("ReportTotal", mock.MatchedBy(func(total decimal.Decimal) bool {
			return total.Equal(decimal.NewFromInt(3900))
		})).Return().Once()
		sink.On("Log", "Stock price total: 3,900.00").Return().Once()
		sink.On("Log", mock.MatchedBy(func(msg string) bool {
			return strings.HasPrefix(msg, "Loaded stocks for MSFT,GOOGL in ")
		})).Return().Once()

		outcome := service.Run(ctx, Request{Tickers: []string{"MSFT", "GOOGL"}, MaxConcurrency: 4}, cancellation.New(ctx), sink)

		require.NoError(t, outcome.Err)
		assert.Equal(t, StatusSucceeded, outcome.Status)
		assert.False(t, outcome.EarlyExit)
		assert.Len(t, outcome.Values, 2)
		require.NotNil(t, outcome.Total)
		assert.Equal(t, "3900", outcome.Total.String())
		sink.AssertExpectations(t)
	})

	t.Run("sentinel gives a partial outcome", func(t *testing.T) {
		service := NewService(mocksource.NewSource(), testConfig(), nil, nil)
		recorder := NewRecorder()

		outcome := service.Run(ctx, Request{Tickers: []string{"MSFT", "MBI", "GOOGL"}, MaxConcurrency: 4}, nil, recorder)

		assert.Equal(t, StatusPartial, outcome.Status)
		assert.True(t, outcome.EarlyExit)
		assert.Less(t, len(outcome.Values), 3)
		require.NotNil(t, outcome.Partial)
		assert.Equal(t, "MBI", outcome.Partial.StoppedBy)

		_, valuesReported := recorder.Values()
		assert.False(t, valuesReported)
		total, totalReported := recorder.Total()
		assert.True(t, totalReported)
		assert.Equal(t, "3900", total.String())
		assert.Contains(t, recorder.Notes(), NoteIncompleteAggregation)
	})

	t.Run("fetch failure fails the run", func(t *testing.T) {
		source := types.SourceFunc(func(ctx context.Context, ticker string) (models.PriceSeries, error) {
			if ticker == "BAD" {
				return models.PriceSeries{}, types.NewFetchError("func", ticker, types.ErrorCodeHTTPStatus, "HTTP 500", nil)
			}
			return mocksource.NewSource().GetStockPrices(ctx, ticker)
		})
		service := NewService(source, testConfig(), nil, nil)
		recorder := NewRecorder()

		outcome := service.Run(ctx, Request{Tickers: []string{"MSFT", "BAD"}}, nil, recorder)

		assert.Equal(t, StatusFailed, outcome.Status)
		assert.True(t, types.IsFetchFailure(outcome.Err))
		assert.Empty(t, outcome.Values)
		assert.Nil(t, outcome.Total)
		assert.True(t, hasNote(recorder.Notes(), "func: fetch BAD failed"))
		_, totalReported := recorder.Total()
		assert.False(t, totalReported)
	})

	t.Run("cancel before start", func(t *testing.T) {
		service := NewService(mocksource.NewSource(), testConfig(), nil, nil)
		recorder := NewRecorder()
		ctrl := cancellation.New(ctx)
		ctrl.Cancel()

		outcome := service.Run(ctx, Request{Tickers: []string{"MSFT"}}, ctrl, recorder)

		assert.Equal(t, StatusCancelled, outcome.Status)
		assert.True(t, errors.Is(outcome.Err, types.ErrCancelled))
		assert.Empty(t, outcome.Values)
		require.Eventually(t, func() bool {
			return countNote(recorder.Notes(), NoteCancellationRequested) == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("cancel during fetch notes the request once", func(t *testing.T) {
		source := mocksource.NewSource().WithDelay(time.Minute)
		service := NewService(source, testConfig(), nil, nil)
		recorder := NewRecorder()
		ctrl := cancellation.New(ctx)

		go func() {
			time.Sleep(20 * time.Millisecond)
			ctrl.Cancel()
			ctrl.Cancel()
		}()

		outcome := service.Run(ctx, Request{Tickers: []string{"MSFT", "GOOGL"}}, ctrl, recorder)

		assert.Equal(t, StatusCancelled, outcome.Status)
		require.Eventually(t, func() bool {
			return countNote(recorder.Notes(), NoteCancellationRequested) == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("parent context cancellation cancels the run", func(t *testing.T) {
		service := NewService(mocksource.NewSource().WithDelay(time.Minute), testConfig(), nil, nil)
		runCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		outcome := service.Run(runCtx, Request{Tickers: []string{"MSFT"}}, cancellation.New(context.Background()), nil)

		assert.Equal(t, StatusCancelled, outcome.Status)
	})

	t.Run("arrival previews are truncated", func(t *testing.T) {
		cfg := testConfig()
		cfg.PreviewPoints = 1
		service := NewService(mocksource.NewSource(), cfg, nil, nil)
		recorder := NewRecorder()

		service.Run(ctx, Request{Tickers: []string{"MSFT", "GOOGL"}}, nil, recorder)

		previews := recorder.Previews()
		require.Len(t, previews, 2)
		for _, p := range previews {
			assert.Equal(t, 1, p.Len())
		}
	})

	t.Run("empty request succeeds with a zero total", func(t *testing.T) {
		service := NewService(mocksource.NewSource(), testConfig(), nil, nil)

		outcome := service.Run(ctx, Request{Tickers: []string{" ", ""}}, nil, nil)

		assert.Equal(t, StatusSucceeded, outcome.Status)
		assert.Empty(t, outcome.Tickers)
		require.NotNil(t, outcome.Total)
		assert.True(t, outcome.Total.IsZero())
	})

	t.Run("unit failures are kept on the outcome", func(t *testing.T) {
		cfg := testConfig()
		cfg.Aggregator.Compute = func(s models.PriceSeries) (decimal.Decimal, error) {
			if s.Ticker == "GOOGL" {
				return decimal.Zero, errors.New("bad series")
			}
			return s.TotalChange(), nil
		}
		service := NewService(mocksource.NewSource(), cfg, nil, nil)
		recorder := NewRecorder()

		outcome := service.Run(ctx, Request{Tickers: []string{"MSFT", "GOOGL"}}, nil, recorder)

		assert.Equal(t, StatusSucceeded, outcome.Status)
		require.Len(t, outcome.Failures, 1)
		assert.Equal(t, "GOOGL", outcome.Failures[0].Ticker)
		assert.True(t, hasNote(recorder.Notes(), "series 1 (GOOGL)"))
	})

	t.Run("uses the configured concurrency by default", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxConcurrency = 0
		service := NewService(mocksource.NewSource(), cfg, nil, nil)

		assert.Equal(t, concurrent.DefaultMaxConcurrency, service.config.MaxConcurrency)
		assert.Equal(t, "mock", service.Source().GetName())
	})
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"0", "0.00"},
		{"0.5", "0.50"},
		{"999", "999.00"},
		{"3900", "3,900.00"},
		{"1234567.891", "1,234,567.89"},
		{"-1234.5", "-1,234.50"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatAmount(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestParseTickers(t *testing.T) {
	tests := []struct {
		in       string
		expected []string
	}{
		{"MSFT", []string{"MSFT"}},
		{"MSFT,GOOGL", []string{"MSFT", "GOOGL"}},
		{"MSFT, GOOGL  MBI", []string{"MSFT", "GOOGL", "MBI"}},
		{"MSFT,,MSFT", []string{"MSFT", "MSFT"}},
		{" , ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseTickers(tt.in)
			if len(tt.expected) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}
