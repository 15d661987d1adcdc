package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stock-analyzer/internal/dto"
	"stock-analyzer/internal/pipeline"
	"stock-analyzer/internal/runs"
	"stock-analyzer/internal/types"
)

// StatusClientClosedRequest is reported when the caller cancelled the work
const StatusClientClosedRequest = 499

func respondError(c *gin.Context, status int, message string, err error) {
	response := dto.ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}

	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) {
		response.Code = fetchErr.Code
	}
	var parseErr *types.ParseError
	if errors.As(err, &parseErr) {
		response.Code = types.ErrorCodeParse
	}

	c.JSON(status, response)
}

// fetchErrorStatus maps a source error to an HTTP status
func fetchErrorStatus(err error) int {
	if types.IsCancellation(err) {
		return StatusClientClosedRequest
	}

	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Code {
		case types.ErrorCodeInvalidTicker:
			return http.StatusBadRequest
		case types.ErrorCodeNoData:
			return http.StatusNotFound
		case types.ErrorCodeRateLimit:
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
	if types.IsFetchFailure(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// outcomeStatus maps a run outcome to an HTTP status
func outcomeStatus(outcome *pipeline.Outcome) int {
	switch outcome.Status {
	case pipeline.StatusSucceeded, pipeline.StatusPartial:
		return http.StatusOK
	case pipeline.StatusCancelled:
		return StatusClientClosedRequest
	default:
		return fetchErrorStatus(outcome.Err)
	}
}

func toOutcomeResponse(outcome *pipeline.Outcome, notes []string) *dto.OutcomeResponse {
	response := &dto.OutcomeResponse{
		Status:    string(outcome.Status),
		Tickers:   outcome.Tickers,
		Values:    outcome.Values,
		Total:     outcome.Total,
		EarlyExit: outcome.EarlyExit,
		Partial:   outcome.Partial,
		ElapsedMs: outcome.Elapsed.Milliseconds(),
		Notes:     notes,
	}
	if outcome.Err != nil {
		response.Error = outcome.Err.Error()
	}
	for _, failure := range outcome.Failures {
		response.Failures = append(response.Failures, failure.Error())
	}
	return response
}

func toRunResponse(run *runs.Run) *dto.RunResponse {
	notes := run.Recorder().Notes()
	if notes == nil {
		notes = []string{}
	}

	response := &dto.RunResponse{
		RunID:           run.ID,
		Status:          run.Status(),
		Tickers:         run.Request.Tickers,
		MaxConcurrency:  run.Request.MaxConcurrency,
		CancelRequested: run.CancelRequested(),
		CreatedAt:       run.CreatedAt,
		Notes:           notes,
	}

	if outcome := run.Outcome(); outcome != nil {
		finished := run.FinishedAt()
		response.FinishedAt = &finished
		response.Result = toOutcomeResponse(outcome, nil)
		response.Tickers = outcome.Tickers
	}
	return response
}
