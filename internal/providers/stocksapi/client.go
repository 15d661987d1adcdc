package stocksapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

// DefaultBaseURL is the public stock price service
const DefaultBaseURL = "https://ps-async.fekberg.com"

// Client represents a stock price API client
type Client struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Logger
}

// Config represents stock price API client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per second
	Burst     int
	UserAgent string
}

// NewClient creates a new stock price API client
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20
	}
	if config.Burst == 0 {
		config.Burst = config.RateLimit
	}
	if config.UserAgent == "" {
		config.UserAgent = "stock-analyzer/1.0"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		userAgent: config.UserAgent,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		logger:      logger,
	}
}

// GetName returns the source name
func (c *Client) GetName() string {
	return types.SourceStocksAPI
}

// GetBaseURL returns the base URL requests are made against
func (c *Client) GetBaseURL() string {
	return c.baseURL
}

// GetStockPrices fetches the full price history of one ticker
func (c *Client) GetStockPrices(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if strings.TrimSpace(ticker) == "" {
		return models.PriceSeries{}, types.NewFetchError(c.GetName(), ticker, types.ErrorCodeInvalidTicker, "empty ticker", nil)
	}

	start := time.Now()
	data, err := c.makeRequest(ctx, ticker, "/api/stocks/"+url.PathEscape(ticker))
	if err != nil {
		return models.PriceSeries{}, err
	}

	var rows []stockPriceRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return models.PriceSeries{}, types.NewFetchError(c.GetName(), ticker, types.ErrorCodeInvalidResponse, "failed to parse response", err)
	}

	points, err := toPricePoints(ticker, rows)
	if err != nil {
		return models.PriceSeries{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"ticker":  ticker,
		"points":  len(points),
		"latency": time.Since(start),
	}).Debug("Fetched stock prices")

	return models.NewPriceSeries(ticker, points), nil
}

// Ping checks if the stock price API is reachable
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("stocksapi: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stocksapi: network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("stocksapi: unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// makeRequest makes an HTTP request to the stock price API
func (c *Client) makeRequest(ctx context.Context, ticker, endpoint string) ([]byte, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, types.Cancelled("stocksapi: rate limit wait for %s", ticker)
		}
		return nil, types.NewFetchError(c.GetName(), ticker, types.ErrorCodeRateLimit, "rate limit wait failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, types.NewFetchError(c.GetName(), ticker, types.ErrorCodeNetworkError, "failed to create request", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.Cancelled("stocksapi: request for %s", ticker)
		}
		return nil, types.NewFetchError(c.GetName(), ticker, types.ErrorCodeNetworkError, "network error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, types.Cancelled("stocksapi: reading response for %s", ticker)
		}
		return nil, types.NewFetchError(c.GetName(), ticker, types.ErrorCodeNetworkError, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(ticker, resp.StatusCode, body)
	}

	return body, nil
}

// handleErrorResponse handles error responses from the API
func (c *Client) handleErrorResponse(ticker string, statusCode int, body []byte) error {
	var errorMsg string
	code := types.ErrorCodeHTTPStatus

	switch statusCode {
	case http.StatusTooManyRequests:
		errorMsg = "Rate limit exceeded"
		code = types.ErrorCodeRateLimit
	case http.StatusNotFound:
		errorMsg = "Ticker not found"
		code = types.ErrorCodeNoData
	case http.StatusBadRequest:
		errorMsg = "Bad request"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		errorMsg = "Server error"
	default:
		errorMsg = fmt.Sprintf("HTTP %d", statusCode)
	}

	if detail := strings.TrimSpace(string(body)); detail != "" && len(detail) < 200 {
		errorMsg = fmt.Sprintf("%s: %s", errorMsg, detail)
	}

	fetchErr := types.NewFetchError(c.GetName(), ticker, code, errorMsg, nil)
	fetchErr.StatusCode = statusCode
	return fetchErr
}
