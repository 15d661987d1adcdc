package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewFetchError(SourceStocksAPI, "MSFT", ErrorCodeNetworkError, "network error", cause)

	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.False(t, errors.Is(err, ErrParseFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "MSFT")
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("fetch all: %w", err)
	var fe *FetchError
	assert.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, ErrorCodeNetworkError, fe.Code)
}

func TestParseError(t *testing.T) {
	err := &ParseError{Ticker: "MSFT", Row: 3, Field: "change", Value: "abc", Err: errors.New("bad decimal")}

	assert.True(t, errors.Is(err, ErrParseFailed))
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.Contains(t, err.Error(), "row 3")
}

func TestIsCancellation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrCancelled, true},
		{"wrapped sentinel", Cancelled("fetch %s", "MSFT"), true},
		{"context canceled", context.Canceled, true},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), true},
		{"fetch error wrapping deadline", NewFetchError("x", "MSFT", ErrorCodeNetworkError, "timeout", context.DeadlineExceeded), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCancellation(tt.err))
		})
	}
}

func TestPartialError(t *testing.T) {
	err := &PartialError{Completed: 1, Total: 3, StoppedBy: "MBI"}
	assert.Equal(t, "aggregation stopped early at MBI: 1 of 3 series completed", err.Error())
}
