package types

import (
	"context"

	"stock-analyzer/internal/models"
)

// Source defines the interface for stock price data sources
type Source interface {
	// GetStockPrices fetches the full price series for one ticker. It must
	// return promptly with an error matching ErrCancelled once ctx is done.
	GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error)

	// GetName returns the source name used in logs and metrics
	GetName() string
}

// HealthChecker is implemented by sources that can report reachability
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SourceFunc adapts a plain function to the Source interface
type SourceFunc func(ctx context.Context, ticker string) (models.PriceSeries, error)

// GetStockPrices calls f(ctx, ticker)
func (f SourceFunc) GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error) {
	return f(ctx, ticker)
}

// GetName returns a fixed name for function sources
func (f SourceFunc) GetName() string {
	return "func"
}

// Source names
const (
	SourceStocksAPI = "stocksapi"
	SourceCSV       = "csv"
	SourceMock      = "mock"
)
