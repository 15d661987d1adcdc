package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks an operation abandoned because cancellation was requested
	ErrCancelled = errors.New("operation cancelled")

	// ErrFetchFailed marks a broken fetch: transport, status or payload failure
	ErrFetchFailed = errors.New("fetch failed")

	// ErrParseFailed marks a series rejected because one of its rows did not parse
	ErrParseFailed = errors.New("parse failed")
)

// Common error codes
const (
	ErrorCodeNetworkError    = "NETWORK_ERROR"
	ErrorCodeHTTPStatus      = "HTTP_STATUS"
	ErrorCodeInvalidResponse = "INVALID_RESPONSE"
	ErrorCodeParse           = "PARSE_ERROR"
	ErrorCodeNoData          = "NO_DATA"
	ErrorCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrorCodeInvalidTicker   = "INVALID_TICKER"
)

// FetchError represents a failed fetch for one ticker
type FetchError struct {
	Source     string `json:"source"`
	Ticker     string `json:"ticker"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

// NewFetchError creates a new fetch error
func NewFetchError(source, ticker, code, message string, err error) *FetchError {
	return &FetchError{
		Source:  source,
		Ticker:  ticker,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: fetch %s failed: %s", e.Source, e.Ticker, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// ParseError represents a row of source data that could not be parsed
type ParseError struct {
	Ticker string `json:"ticker"`
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Err    error  `json:"-"`
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s row %d field %s (%q): %v", e.Ticker, e.Row, e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying cause
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches both ErrParseFailed and ErrFetchFailed: a parse failure fails the fetch
func (e *ParseError) Is(target error) bool {
	return target == ErrParseFailed || target == ErrFetchFailed
}

// PartialError reports an aggregation that stopped dispatching before the end
type PartialError struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	StoppedBy string `json:"stopped_by"`
}

// Error implements the error interface
func (e *PartialError) Error() string {
	return fmt.Sprintf("aggregation stopped early at %s: %d of %d series completed", e.StoppedBy, e.Completed, e.Total)
}

// ReduceError reports a failure inside one reduction unit
type ReduceError struct {
	Index  int    `json:"index"`
	Ticker string `json:"ticker"`
	Detail string `json:"detail"`
}

// Error implements the error interface
func (e *ReduceError) Error() string {
	return fmt.Sprintf("reduce %s (series %d): %s", e.Ticker, e.Index, e.Detail)
}

// Cancelled wraps ErrCancelled with context about what was abandoned
func Cancelled(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCancelled, fmt.Sprintf(format, args...))
}

// IsCancellation reports whether err means "stopped" rather than "broken".
// A FetchError is never a cancellation even when it wraps a context error,
// e.g. an http.Client timeout.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	if errors.Is(err, ErrFetchFailed) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsFetchFailure reports whether err is a fetch or parse failure
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrFetchFailed)
}
