// Package csvfile serves price series from a local CSV export
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

// Column positions in the export
const (
	colTicker        = 0
	colTradeDate     = 1
	colVolume        = 6
	colChange        = 7
	colChangePercent = 8

	minColumns = colChangePercent + 1
)

// Source reads stock prices from a CSV file on every call
type Source struct {
	path   string
	logger *logrus.Logger
}

// NewSource creates a CSV source backed by path
func NewSource(path string, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Source{path: path, logger: logger}
}

// GetName returns the source name
func (s *Source) GetName() string {
	return types.SourceCSV
}

// Ping checks that the file can be opened
func (s *Source) Ping(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return f.Close()
}

// GetStockPrices scans the file and parses the rows whose ticker matches
// exactly. The header row is skipped and the context is checked on every line.
func (s *Source) GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceSeries{}, types.Cancelled("csv: read for %s", ticker)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return models.PriceSeries{}, types.NewFetchError(s.GetName(), ticker, types.ErrorCodeNetworkError, "failed to open file", err)
	}
	defer f.Close()

	start := time.Now()
	points, err := s.readMatching(ctx, f, ticker)
	if err != nil {
		return models.PriceSeries{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticker": ticker,
		"points": len(points),
		"path":   s.path,
		"took":   time.Since(start),
	}).Debug("Loaded stock prices from file")

	return models.NewPriceSeries(ticker, points), nil
}

func (s *Source) readMatching(ctx context.Context, r io.Reader, ticker string) ([]models.PricePoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var points []models.PricePoint
	for row := 0; ; row++ {
		if ctx.Err() != nil {
			return nil, types.Cancelled("csv: read for %s stopped at row %d", ticker, row)
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.NewFetchError(s.GetName(), ticker, types.ErrorCodeInvalidResponse, fmt.Sprintf("malformed row %d", row), err)
		}
		if row == 0 {
			continue
		}

		if trim(record[colTicker]) != ticker {
			continue
		}

		point, err := parseRow(ticker, row, record)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}

	return points, nil
}

func parseRow(ticker string, row int, record []string) (models.PricePoint, error) {
	fail := func(field, value string, err error) (models.PricePoint, error) {
		return models.PricePoint{}, &types.ParseError{Ticker: ticker, Row: row, Field: field, Value: value, Err: err}
	}

	if len(record) < minColumns {
		return fail("row", strings.Join(record, ","), fmt.Errorf("expected at least %d columns, got %d", minColumns, len(record)))
	}

	tradeDate, err := models.ParseTradeDate(trim(record[colTradeDate]))
	if err != nil {
		return fail("TradeDate", record[colTradeDate], err)
	}

	volume, err := strconv.ParseInt(trim(record[colVolume]), 10, 64)
	if err != nil {
		return fail("Volume", record[colVolume], err)
	}

	change, err := decimal.NewFromString(trim(record[colChange]))
	if err != nil {
		return fail("Change", record[colChange], err)
	}

	changePercent, err := decimal.NewFromString(trim(record[colChangePercent]))
	if err != nil {
		return fail("ChangePercent", record[colChangePercent], err)
	}

	return models.PricePoint{
		Ticker:        ticker,
		TradeDate:     tradeDate,
		Volume:        volume,
		Change:        change,
		ChangePercent: changePercent,
	}, nil
}

func trim(field string) string {
	return strings.Trim(strings.TrimSpace(field), `'"`)
}
