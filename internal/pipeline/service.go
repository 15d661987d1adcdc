// Package pipeline runs the full fetch, aggregate and reduce sequence for a
// set of tickers and reports the outcome to a Sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/cancellation"
	"stock-analyzer/internal/concurrent"
	"stock-analyzer/internal/models"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/types"
)

// Status is the terminal state of a run
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Note lines written to the sink
const (
	NoteCancellationRequested = "Cancellation requested"
	NoteIncompleteAggregation = "Parallel computation of stocks did not complete successfully"
)

// Request is one pipeline run
type Request struct {
	Tickers        []string `json:"tickers"`
	MaxConcurrency int      `json:"max_concurrency"`
}

// Outcome is what a run produced. Values are set only when the aggregation
// ran to completion or stopped early; Total only when the reduction finished.
type Outcome struct {
	Status    Status                   `json:"status"`
	Tickers   []string                 `json:"tickers"`
	Values    []models.DerivedValue    `json:"values,omitempty"`
	Total     *decimal.Decimal         `json:"total,omitempty"`
	EarlyExit bool                     `json:"early_exit"`
	Partial   *types.PartialError      `json:"partial,omitempty"`
	Failures  []concurrent.ItemFailure `json:"-"`
	Err       error                    `json:"-"`
	Elapsed   time.Duration            `json:"-"`
}

// Config configures the pipeline service
type Config struct {
	MaxConcurrency int
	PreviewPoints  int
	Aggregator     concurrent.AggregatorConfig
}

// DefaultConfig returns a concurrency of 4, five preview points and the
// default aggregator
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: concurrent.DefaultMaxConcurrency,
		PreviewPoints:  5,
		Aggregator:     concurrent.DefaultAggregatorConfig(),
	}
}

// Service runs pipelines against one source
type Service struct {
	source     types.Source
	config     Config
	aggregator *concurrent.Aggregator
	reducer    *concurrent.Reducer
	logger     *logrus.Logger
	metrics    monitoring.MetricsService
}

// NewService creates a new pipeline service
func NewService(source types.Source, config Config, logger *logrus.Logger, metrics monitoring.MetricsService) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewNoopMetrics()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = concurrent.DefaultMaxConcurrency
	}

	return &Service{
		source:     source,
		config:     config,
		aggregator: concurrent.NewAggregator(config.Aggregator, logger, metrics),
		reducer:    concurrent.NewReducer(nil, logger, metrics),
		logger:     logger,
		metrics:    metrics,
	}
}

// Source returns the source the service fetches from
func (s *Service) Source() types.Source {
	return s.source
}

// Run fetches every ticker, then aggregates and reduces the series
// concurrently. Cancelling ctx or ctrl stops the run at the next checkpoint.
// Run always returns an Outcome.
func (s *Service) Run(ctx context.Context, req Request, ctrl *cancellation.Controller, sink Sink) (outcome *Outcome) {
	start := time.Now()
	if sink == nil {
		sink = NopSink{}
	}
	if ctrl == nil {
		ctrl = cancellation.New(ctx)
	}

	tickers := normalizeTickers(req.Tickers)
	concurrency := req.MaxConcurrency
	if concurrency <= 0 {
		concurrency = s.config.MaxConcurrency
	}

	log := s.logger.WithFields(logrus.Fields{
		"tickers":     strings.Join(tickers, ","),
		"concurrency": concurrency,
		"source":      s.source.GetName(),
	})

	stopLink := context.AfterFunc(ctx, func() { ctrl.Cancel() })
	defer stopLink()
	var noteOnce sync.Once
	noteCancellation := func() {
		noteOnce.Do(func() { sink.Log(NoteCancellationRequested) })
	}
	ctrl.OnRequested(noteCancellation)
	defer ctrl.Release()

	s.metrics.IncrementActiveRuns()
	defer s.metrics.DecrementActiveRuns()

	defer func() {
		if r := recover(); r != nil {
			outcome = &Outcome{Status: StatusFailed, Err: fmt.Errorf("pipeline panic: %v", r)}
			outcome.Tickers = tickers
			sink.Log(outcome.Err.Error())
			log.WithField("panic", r).Error("Pipeline run panicked")
		}
		if ctrl.IsRequested() {
			noteCancellation()
		}
		outcome.Elapsed = time.Since(start)
		sink.Log(fmt.Sprintf("Loaded stocks for %s in %dms", strings.Join(tickers, ","), outcome.Elapsed.Milliseconds()))
		s.metrics.RecordRun(string(outcome.Status), outcome.Elapsed)
		log.WithFields(logrus.Fields{
			"status":  outcome.Status,
			"elapsed": outcome.Elapsed,
		}).Info("Pipeline run finished")
	}()

	runCtx := ctrl.Context()

	fetcher := concurrent.NewFetchOrchestrator(s.source, s.logger, s.metrics)
	if arrival, ok := sink.(ArrivalSink); ok && s.config.PreviewPoints > 0 {
		fetcher.OnArrival = func(series models.PriceSeries) {
			arrival.ReportArrival(series.Head(s.config.PreviewPoints))
		}
	}

	series, err := fetcher.FetchAll(runCtx, tickers)
	if err != nil {
		return s.stopped(tickers, err, sink)
	}

	var (
		wg        sync.WaitGroup
		aggResult *concurrent.AggregationResult
		aggErr    error
		total     decimal.Decimal
		reduceErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		aggResult, aggErr = s.aggregator.Aggregate(runCtx, series, concurrency)
	}()
	go func() {
		defer wg.Done()
		total, reduceErr = s.reducer.ReduceTotal(runCtx, series, concurrency)
	}()
	wg.Wait()

	if types.IsCancellation(aggErr) || types.IsCancellation(reduceErr) || runCtx.Err() != nil {
		cause := aggErr
		if cause == nil {
			cause = reduceErr
		}
		if cause == nil {
			cause = types.Cancelled("run for %d tickers", len(tickers))
		}
		return s.stopped(tickers, cause, sink)
	}

	outcome = &Outcome{Status: StatusSucceeded, Tickers: tickers}

	if aggErr != nil {
		outcome.Status = StatusFailed
		outcome.Err = aggErr
		sink.Log(aggErr.Error())
	} else {
		outcome.Values = aggResult.Values
		outcome.Failures = aggResult.Failures
		for _, failure := range aggResult.Failures {
			sink.Log(failure.Error())
		}

		if aggResult.Completed {
			sink.ReportValues(aggResult.Values)
		} else {
			outcome.Status = StatusPartial
			outcome.EarlyExit = true
			outcome.Partial = aggResult.Partial()
			sink.Log(NoteIncompleteAggregation)
		}
	}

	if reduceErr != nil {
		outcome.Status = StatusFailed
		outcome.Err = errors.Join(outcome.Err, reduceErr)
		sink.Log(reduceErr.Error())
		return outcome
	}

	outcome.Total = &total
	sink.ReportTotal(total)
	sink.Log("Stock price total: " + FormatAmount(total))

	return outcome
}

// stopped builds the outcome for a run that ended before both stages finished
func (s *Service) stopped(tickers []string, err error, sink Sink) *Outcome {
	outcome := &Outcome{Tickers: tickers, Err: err}
	if types.IsCancellation(err) {
		outcome.Status = StatusCancelled
	} else {
		outcome.Status = StatusFailed
	}
	sink.Log(err.Error())
	return outcome
}

// FormatAmount renders d with two decimals and thousands separators
func FormatAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	return sign + b.String() + "." + frac
}
