package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stock-analyzer/internal/analysis"
	"stock-analyzer/internal/models"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/types"
)

// TransformFunc reduces one series to its local contribution to the total
type TransformFunc func(series models.PriceSeries) decimal.Decimal

// Reducer accumulates a shared decimal total across bounded workers
type Reducer struct {
	transform TransformFunc
	logger    *logrus.Logger
	metrics   monitoring.MetricsService
}

// NewReducer creates a reducer. A nil transform uses analysis.SeriesTransform.
func NewReducer(transform TransformFunc, logger *logrus.Logger, metrics monitoring.MetricsService) *Reducer {
	if transform == nil {
		transform = analysis.SeriesTransform
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewNoopMetrics()
	}
	return &Reducer{
		transform: transform,
		logger:    logger,
		metrics:   metrics,
	}
}

// ReduceTotal sums the transform of every series with at most maxConcurrency
// units running at once. Each unit builds a local sum and merges it into the
// total under the lock exactly once.
func (r *Reducer) ReduceTotal(ctx context.Context, series []models.PriceSeries, maxConcurrency int) (decimal.Decimal, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	start := time.Now()
	total := decimal.Zero
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	dispatched := 0
	for i, s := range series {
		if ctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = &types.ReduceError{Index: i, Ticker: s.Ticker, Detail: fmt.Sprint(rec)}
				}
			}()

			local := r.transform(s)

			mu.Lock()
			total = total.Add(local)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	elapsed := time.Since(start)

	if err != nil {
		var reduceErr *types.ReduceError
		if errors.As(err, &reduceErr) {
			r.logger.WithFields(logrus.Fields{
				"index":  reduceErr.Index,
				"ticker": reduceErr.Ticker,
			}).WithError(err).Error("Reduction unit failed")
		}
		r.metrics.RecordReduction("failed", elapsed)
		return decimal.Zero, err
	}

	if ctx.Err() != nil {
		r.metrics.RecordReduction("cancelled", elapsed)
		r.logger.WithFields(logrus.Fields{
			"dispatched": dispatched,
			"total":      len(series),
		}).Info("Reduction cancelled")
		return decimal.Zero, types.Cancelled("reduction after %d of %d series", dispatched, len(series))
	}

	r.metrics.RecordReduction("success", elapsed)
	return total, nil
}
