// Package mock serves a fixed in-memory price fixture
package mock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

// Source returns rows from a fixed fixture, filtered by ticker
type Source struct {
	rows  []models.PricePoint
	delay time.Duration
}

// NewSource creates a mock source over the default four-row fixture
func NewSource() *Source {
	return NewSourceWithRows(DefaultRows())
}

// NewSourceWithRows creates a mock source over custom rows
func NewSourceWithRows(rows []models.PricePoint) *Source {
	return &Source{rows: rows}
}

// WithDelay makes every fetch wait d, honouring cancellation
func (s *Source) WithDelay(d time.Duration) *Source {
	s.delay = d
	return s
}

// DefaultRows returns the fixture: two MSFT rows and two GOOGL rows
func DefaultRows() []models.PricePoint {
	return []models.PricePoint{
		{Ticker: "MSFT", Change: decimal.RequireFromString("0.5"), ChangePercent: decimal.RequireFromString("0.75")},
		{Ticker: "MSFT", Change: decimal.RequireFromString("0.2"), ChangePercent: decimal.RequireFromString("0.15")},
		{Ticker: "GOOGL", Change: decimal.RequireFromString("0.3"), ChangePercent: decimal.RequireFromString("0.25")},
		{Ticker: "GOOGL", Change: decimal.RequireFromString("0.5"), ChangePercent: decimal.RequireFromString("0.65")},
	}
}

// GetName returns the source name
func (s *Source) GetName() string {
	return types.SourceMock
}

// Ping always succeeds
func (s *Source) Ping(ctx context.Context) error {
	return nil
}

// GetStockPrices returns the fixture rows whose ticker matches exactly
func (s *Source) GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return models.PriceSeries{}, types.Cancelled("mock: fetch %s", ticker)
		}
	}
	if ctx.Err() != nil {
		return models.PriceSeries{}, types.Cancelled("mock: fetch %s", ticker)
	}

	var points []models.PricePoint
	for _, row := range s.rows {
		if row.Ticker == ticker {
			points = append(points, row)
		}
	}
	return models.NewPriceSeries(ticker, points), nil
}
