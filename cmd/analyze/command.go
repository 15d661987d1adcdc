package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stock-analyzer/internal/cancellation"
	"stock-analyzer/internal/config"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/pipeline"
	"stock-analyzer/internal/providers"
	"stock-analyzer/pkg/logger"
)

// Exit codes by outcome
const (
	exitFailed    = 1
	exitPartial   = 2
	exitCancelled = 130
)

type exitError struct {
	status pipeline.Status
	code   int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("run %s", e.status)
}

type options struct {
	tickers     string
	concurrency int
	source      string
	csvPath     string
	baseURL     string
	verbose     bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch, aggregate and total stock prices once",
		Long: `analyze fetches the price history of every ticker, runs the bounded
aggregation and the shared reduction, and prints notes, values and the total.
Press Ctrl+C once to cancel the run, twice to exit immediately.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts, stdout, stderr)
		},
	}

	cmd.Flags().StringVarP(&opts.tickers, "tickers", "t", "MSFT,GOOGL", "Tickers separated by commas or spaces")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "Aggregation and reduction workers (default from PIPELINE_MAX_CONCURRENCY)")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Stock source: stocksapi, csv or mock (default from STOCK_SOURCE)")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "CSV file for the csv source")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Base URL of the stocks API")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	return cmd
}

func runAnalyze(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	if opts.source != "" {
		cfg.Source.Name = opts.source
	}
	if opts.csvPath != "" {
		cfg.Source.CSVPath = opts.csvPath
	}
	if opts.baseURL != "" {
		cfg.Source.BaseURL = opts.baseURL
	}
	if opts.concurrency > 0 {
		cfg.Pipeline.MaxConcurrency = opts.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.Logger.Format = "text"
	cfg.Logger.Output = "stdout"
	cfg.Logger.Level = "warn"
	if opts.verbose {
		cfg.Logger.Level = "debug"
	}
	log := logger.New(cfg.Logger)
	log.SetOutput(stderr)

	source, err := providers.NewFactory(cfg.Source, cfg.Cache, log, monitoring.NewNoopMetrics()).Build()
	if err != nil {
		return err
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	tickers := pipeline.ParseTickers(opts.tickers)
	if len(tickers) == 0 {
		return fmt.Errorf("no tickers given")
	}

	if cfg.Pipeline.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
		defer cancel()
	}

	ctrl := cancellation.New(ctx)
	stopSignals := watchInterrupts(ctrl, stderr, log)
	defer stopSignals()

	service := pipeline.NewService(source, pipeline.ConfigFrom(cfg.Pipeline), log, nil)
	outcome := service.Run(ctx, pipeline.Request{
		Tickers:        tickers,
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
	}, ctrl, pipeline.NewWriterSink(stdout))

	switch outcome.Status {
	case pipeline.StatusSucceeded:
		return nil
	case pipeline.StatusPartial:
		return &exitError{status: outcome.Status, code: exitPartial}
	case pipeline.StatusCancelled:
		return &exitError{status: outcome.Status, code: exitCancelled}
	default:
		return &exitError{status: outcome.Status, code: exitFailed}
	}
}

// watchInterrupts cancels the run on the first interrupt and exits on the second
func watchInterrupts(ctrl *cancellation.Controller, stderr io.Writer, log *logrus.Logger) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-signals:
			}

			if ctrl.Cancel() {
				fmt.Fprintln(stderr, "Cancelling, press Ctrl+C again to exit")
				log.Debug("Run cancellation requested by interrupt")
				continue
			}
			os.Exit(exitCancelled)
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}
