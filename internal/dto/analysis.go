package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

// AnalysisQuery is the query string of a synchronous analysis
type AnalysisQuery struct {
	Tickers        string `form:"tickers" binding:"required"`
	MaxConcurrency int    `form:"max_concurrency" binding:"omitempty,min=1,max=256"`
}

// StartRunRequest is the body of POST /runs
type StartRunRequest struct {
	Tickers        []string `json:"tickers" binding:"required,min=1,max=100,dive,required,max=16"`
	MaxConcurrency int      `json:"max_concurrency" binding:"omitempty,min=1,max=256"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// OutcomeResponse is the body of a finished analysis
type OutcomeResponse struct {
	Status    string                `json:"status"`
	Tickers   []string              `json:"tickers"`
	Values    []models.DerivedValue `json:"values,omitempty"`
	Total     *decimal.Decimal      `json:"total,omitempty"`
	EarlyExit bool                  `json:"early_exit"`
	Partial   *types.PartialError   `json:"partial,omitempty"`
	Failures  []string              `json:"failures,omitempty"`
	Error     string                `json:"error,omitempty"`
	ElapsedMs int64                 `json:"elapsed_ms"`
	Notes     []string              `json:"notes,omitempty"`
}

type StartRunResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RunResponse is the state of an asynchronous run
type RunResponse struct {
	RunID           string     `json:"run_id"`
	Status          string     `json:"status"`
	Tickers         []string   `json:"tickers"`
	MaxConcurrency  int        `json:"max_concurrency,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`

	Result *OutcomeResponse `json:"result,omitempty"`
	Notes  []string         `json:"notes"`
}

type SeriesResponse struct {
	Ticker      string              `json:"ticker"`
	Source      string              `json:"source"`
	Count       int                 `json:"count"`
	From        *time.Time          `json:"from,omitempty"`
	To          *time.Time          `json:"to,omitempty"`
	TotalChange decimal.Decimal     `json:"total_change"`
	Points      []models.PricePoint `json:"points"`
}
