package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/dto"
	"stock-analyzer/internal/types"
)

type StocksHandler struct {
	source types.Source
	logger *logrus.Logger
}

func NewStocksHandler(source types.Source, logger *logrus.Logger) *StocksHandler {
	return &StocksHandler{source: source, logger: logger}
}

// GetSeries returns the full price series of one ticker
func (h *StocksHandler) GetSeries(c *gin.Context) {
	ticker := strings.TrimSpace(c.Param("ticker"))
	if ticker == "" {
		respondError(c, http.StatusBadRequest, "ticker is required", nil)
		return
	}

	series, err := h.source.GetStockPrices(c.Request.Context(), ticker)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to fetch stock prices")
		respondError(c, fetchErrorStatus(err), "failed to fetch stock prices", err)
		return
	}

	response := dto.SeriesResponse{
		Ticker:      series.Ticker,
		Source:      h.source.GetName(),
		Count:       series.Len(),
		TotalChange: series.TotalChange(),
		Points:      series.Points,
	}
	if !series.IsEmpty() {
		from, to := series.TimeRange()
		response.From, response.To = &from, &to
	}

	c.JSON(http.StatusOK, response)
}
