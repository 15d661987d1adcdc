package concurrent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/analysis"
	"stock-analyzer/internal/models"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/types"
)

const (
	// DefaultMaxConcurrency is the worker count used when none is given
	DefaultMaxConcurrency = 4

	// DefaultSentinel is the ticker that stops an aggregation early
	DefaultSentinel = "MBI"
)

// ComputeFunc derives one value from one series
type ComputeFunc func(series models.PriceSeries) (decimal.Decimal, error)

// AggregatorConfig configures the aggregation stage
type AggregatorConfig struct {
	Sentinel string                  `json:"sentinel"`
	Workload analysis.WorkloadConfig `json:"workload"`

	// Compute overrides the per-series workload
	Compute ComputeFunc `json:"-"`
}

// DefaultAggregatorConfig returns the sentinel MBI and the default workload
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Sentinel: DefaultSentinel,
		Workload: analysis.DefaultWorkloadConfig(),
	}
}

// ItemFailure records one unit that failed without aborting the batch
type ItemFailure struct {
	Index  int    `json:"index"`
	Ticker string `json:"ticker"`
	Err    error  `json:"-"`
}

// Error implements the error interface
func (f ItemFailure) Error() string {
	return fmt.Sprintf("series %d (%s): %v", f.Index, f.Ticker, f.Err)
}

// AggregationResult is the outcome of one Aggregate call
type AggregationResult struct {
	// Values are in completion order
	Values     []models.DerivedValue `json:"values"`
	Failures   []ItemFailure         `json:"failures,omitempty"`
	Completed  bool                  `json:"completed"`
	StoppedBy  string                `json:"stopped_by,omitempty"`
	Dispatched int                   `json:"dispatched"`
	Total      int                   `json:"total"`
}

// EarlyExit reports whether dispatch stopped before the end of the input
func (r *AggregationResult) EarlyExit() bool {
	return !r.Completed
}

// Partial returns a PartialError when the aggregation stopped early, nil otherwise
func (r *AggregationResult) Partial() *types.PartialError {
	if r.Completed {
		return nil
	}
	return &types.PartialError{
		Completed: len(r.Values),
		Total:     r.Total,
		StoppedBy: r.StoppedBy,
	}
}

// Aggregator runs the per-series workload on a bounded worker pool
type Aggregator struct {
	sentinel string
	compute  ComputeFunc
	logger   *logrus.Logger
	metrics  monitoring.MetricsService
}

// NewAggregator creates a new aggregator
func NewAggregator(cfg AggregatorConfig, logger *logrus.Logger, metrics monitoring.MetricsService) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewNoopMetrics()
	}

	compute := cfg.Compute
	if compute == nil {
		workload := cfg.Workload
		compute = func(series models.PriceSeries) (decimal.Decimal, error) {
			return analysis.ExpensiveComputation(series, workload), nil
		}
	}

	return &Aggregator{
		sentinel: cfg.Sentinel,
		compute:  compute,
		logger:   logger,
		metrics:  metrics,
	}
}

type aggregationJob struct {
	index  int
	series models.PriceSeries
}

// Aggregate computes one DerivedValue per series on maxConcurrency workers.
//
// The dispatch loop checks the context and the dispatch state before handing
// out each unit. A worker that receives the sentinel ticker stops dispatch
// and produces no value; units already handed out finish and are kept.
// Cancellation lets in-flight units finish and then returns ErrCancelled.
func (a *Aggregator) Aggregate(ctx context.Context, series []models.PriceSeries, maxConcurrency int) (*AggregationResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled("aggregation of %d series not started: %v", len(series), err)
	}

	start := time.Now()
	control := newDispatchControl()
	jobs := make(chan aggregationJob)

	result := &AggregationResult{
		Values: make([]models.DerivedValue, 0, len(series)),
		Total:  len(series),
	}
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < maxConcurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobs {
				if stop := a.process(workerID, job, control, result, &mu); stop {
					return
				}
			}
		}(w)
	}

dispatch:
	for i, s := range series {
		if ctx.Err() != nil {
			control.Cancel()
			break
		}
		if control.State() != DispatchRunning {
			break
		}

		select {
		case jobs <- aggregationJob{index: i, series: s}:
			result.Dispatched++
		case <-control.Halted():
			break dispatch
		case <-ctx.Done():
			control.Cancel()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	state := control.State()
	if ctx.Err() != nil {
		// Cancellation overrides an earlier stop.
		state = DispatchCancelled
	}

	switch state {
	case DispatchCancelled:
		a.metrics.RecordAggregation("cancelled", 0, elapsed)
		a.logger.WithFields(logrus.Fields{
			"dispatched": result.Dispatched,
			"total":      result.Total,
		}).Info("Aggregation cancelled")
		return nil, types.Cancelled("aggregation after %d of %d series", result.Dispatched, result.Total)

	case DispatchStopped:
		result.Completed = false
		result.StoppedBy = a.sentinel
		a.metrics.RecordAggregation("partial", len(result.Values), elapsed)
		a.logger.WithFields(logrus.Fields{
			"stopped_by": a.sentinel,
			"values":     len(result.Values),
			"total":      result.Total,
		}).Info("Aggregation stopped early")

	default:
		result.Completed = true
		status := "success"
		if len(result.Failures) > 0 {
			status = "failures"
		}
		a.metrics.RecordAggregation(status, len(result.Values), elapsed)
		a.logger.WithFields(logrus.Fields{
			"values":   len(result.Values),
			"failures": len(result.Failures),
			"duration": elapsed,
		}).Debug("Aggregation completed")
	}

	return result, nil
}

// process runs one unit and reports whether the worker should retire
func (a *Aggregator) process(workerID int, job aggregationJob, control *dispatchControl, result *AggregationResult, mu *sync.Mutex) bool {
	ticker := job.series.Ticker

	if a.sentinel != "" && ticker == a.sentinel {
		if control.Stop() {
			a.logger.WithFields(logrus.Fields{
				"worker": workerID,
				"index":  job.index,
				"ticker": ticker,
			}).Debug("Sentinel received, stopping dispatch")
		}
		return true
	}

	value, err := a.safeCompute(job.series)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		result.Failures = append(result.Failures, ItemFailure{Index: job.index, Ticker: ticker, Err: err})
		a.logger.WithFields(logrus.Fields{
			"worker": workerID,
			"ticker": ticker,
		}).WithError(err).Warn("Aggregation unit failed")
		return false
	}
	result.Values = append(result.Values, models.DerivedValue{Ticker: ticker, Result: value})
	return false
}

func (a *Aggregator) safeCompute(series models.PriceSeries) (value decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic computing %s: %v", series.Ticker, r)
		}
	}()
	return a.compute(series)
}
