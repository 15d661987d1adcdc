package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-analyzer/internal/types"
)

// ActiveRunsCounter reports how many runs are in progress
type ActiveRunsCounter interface {
	Active() int
}

type HealthHandler struct {
	source      types.Source
	runs        ActiveRunsCounter
	environment string
	version     string
}

type HealthResponse struct {
	Status      string                   `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	Version     string                   `json:"version"`
	Uptime      string                   `json:"uptime"`
	Environment string                   `json:"environment"`
	ActiveRuns  int                      `json:"active_runs"`
	Services    map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status       string    `json:"status"`
	ResponseTime string    `json:"response_time,omitempty"`
	Error        string    `json:"error,omitempty"`
	LastCheck    time.Time `json:"last_check"`
}

var startTime = time.Now()

func NewHealthHandler(source types.Source, runs ActiveRunsCounter, environment, version string) *HealthHandler {
	return &HealthHandler{
		source:      source,
		runs:        runs,
		environment: environment,
		version:     version,
	}
}

// Health checks the stock source and reports overall status
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	services := map[string]ServiceHealth{
		"source": h.checkSource(ctx),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status != "healthy" && service.Status != "not_applicable" {
			overallStatus = "unhealthy"
			break
		}
	}

	response := &HealthResponse{
		Status:      overallStatus,
		Timestamp:   time.Now(),
		Version:     h.version,
		Uptime:      time.Since(startTime).Round(time.Second).String(),
		Environment: h.environment,
		Services:    services,
	}
	if h.runs != nil {
		response.ActiveRuns = h.runs.Active()
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// Liveness only reports that the process serves requests
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true})
}

func (h *HealthHandler) checkSource(ctx context.Context) ServiceHealth {
	start := time.Now()
	health := ServiceHealth{LastCheck: start}

	checker, ok := h.source.(types.HealthChecker)
	if !ok {
		health.Status = "not_applicable"
		return health
	}

	err := checker.Ping(ctx)
	health.ResponseTime = time.Since(start).String()
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}

	health.Status = "healthy"
	return health
}

// MetricsHandler serves the prometheus metrics of gatherer
func MetricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
