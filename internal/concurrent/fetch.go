// Package concurrent holds the three parallel stages of a run: the uncapped
// fetch fan-out, the bounded aggregation pool and the shared-total reducer.
package concurrent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/types"
)

// FetchOrchestrator fetches one series per ticker in parallel
type FetchOrchestrator struct {
	source  types.Source
	logger  *logrus.Logger
	metrics monitoring.MetricsService

	// OnArrival, when set, is called once per successful fetch as it lands.
	// Calls are serialised.
	OnArrival func(models.PriceSeries)

	arrivalMu sync.Mutex
}

// NewFetchOrchestrator creates a new fetch orchestrator
func NewFetchOrchestrator(source types.Source, logger *logrus.Logger, metrics monitoring.MetricsService) *FetchOrchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewNoopMetrics()
	}
	return &FetchOrchestrator{
		source:  source,
		logger:  logger,
		metrics: metrics,
	}
}

// FetchAll starts one fetch per ticker and waits for all of them. On success
// the series are returned in input order. On any failure it returns nil and
// the first error observed; if the context was cancelled, or any fetch saw
// the cancellation, the error matches types.ErrCancelled instead.
func (o *FetchOrchestrator) FetchAll(ctx context.Context, tickers []string) ([]models.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled("fetch of %d tickers not started: %v", len(tickers), err)
	}

	results := make([]models.PriceSeries, len(tickers))

	// A plain Group: one failing fetch must not abort its siblings.
	var g errgroup.Group
	var cancelled atomic.Bool

	for i, ticker := range tickers {
		g.Go(func() error {
			start := time.Now()
			series, err := o.source.GetStockPrices(ctx, ticker)
			elapsed := time.Since(start)

			if err != nil {
				status := "failed"
				if types.IsCancellation(err) {
					status = "cancelled"
					cancelled.Store(true)
				}
				o.metrics.RecordFetch(o.source.GetName(), status, elapsed)
				o.logger.WithFields(logrus.Fields{
					"ticker": ticker,
					"source": o.source.GetName(),
					"status": status,
				}).WithError(err).Debug("Fetch did not succeed")
				return err
			}

			o.metrics.RecordFetch(o.source.GetName(), "success", elapsed)
			if series.Ticker == "" {
				series.Ticker = ticker
			}
			results[i] = series
			o.arrived(series)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return results, nil
	}

	if cancelled.Load() || ctx.Err() != nil || types.IsCancellation(err) {
		o.logger.WithField("tickers", len(tickers)).Info("Fetch cancelled")
		return nil, types.Cancelled("fetch of %d tickers", len(tickers))
	}

	o.logger.WithFields(logrus.Fields{
		"tickers": len(tickers),
	}).WithError(err).Warn("Fetch failed")
	return nil, err
}

func (o *FetchOrchestrator) arrived(series models.PriceSeries) {
	if o.OnArrival == nil {
		return
	}
	o.arrivalMu.Lock()
	defer o.arrivalMu.Unlock()
	o.OnArrival(series)
}
