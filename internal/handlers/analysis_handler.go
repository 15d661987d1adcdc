package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/dto"
	"stock-analyzer/internal/pipeline"
	"stock-analyzer/internal/runs"
)

type AnalysisHandler struct {
	runner runs.Runner
	logger *logrus.Logger
}

func NewAnalysisHandler(runner runs.Runner, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{runner: runner, logger: logger}
}

// Analyze runs the pipeline synchronously. A client disconnect cancels the run.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var query dto.AnalysisQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, "invalid query", err)
		return
	}

	tickers := pipeline.ParseTickers(query.Tickers)
	if len(tickers) == 0 {
		respondError(c, http.StatusBadRequest, "at least one ticker is required", nil)
		return
	}

	recorder := pipeline.NewRecorder()
	defer recorder.Close()

	outcome := h.runner.Run(c.Request.Context(), pipeline.Request{
		Tickers:        tickers,
		MaxConcurrency: query.MaxConcurrency,
	}, nil, recorder)

	if outcome.Status == pipeline.StatusFailed {
		h.logger.WithError(outcome.Err).WithField("tickers", tickers).Warn("Analysis failed")
	}

	c.JSON(outcomeStatus(outcome), toOutcomeResponse(outcome, recorder.Notes()))
}
