package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/handlers"
	"stock-analyzer/internal/middleware"
	"stock-analyzer/internal/monitoring"
)

type Router struct {
	engine          *gin.Engine
	healthHandler   *handlers.HealthHandler
	stocksHandler   *handlers.StocksHandler
	analysisHandler *handlers.AnalysisHandler
	runsHandler     *handlers.RunsHandler
	gatherer        prometheus.Gatherer
	metrics         monitoring.MetricsService
	logger          *logrus.Logger
}

type RouterConfig struct {
	Debug          bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func NewRouter(
	healthHandler *handlers.HealthHandler,
	stocksHandler *handlers.StocksHandler,
	analysisHandler *handlers.AnalysisHandler,
	runsHandler *handlers.RunsHandler,
	gatherer prometheus.Gatherer,
	metrics monitoring.MetricsService,
	logger *logrus.Logger,
	config *RouterConfig,
) *Router {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Router{
		engine:          gin.New(),
		healthHandler:   healthHandler,
		stocksHandler:   stocksHandler,
		analysisHandler: analysisHandler,
		runsHandler:     runsHandler,
		gatherer:        gatherer,
		metrics:         metrics,
		logger:          logger,
	}
}

func (r *Router) SetupRoutes(config *RouterConfig) {
	r.setupGlobalMiddleware(config)
	r.setupHealthRoutes()

	v1 := r.engine.Group("/api/v1")
	r.setupAPIRoutes(v1)
}

func (r *Router) setupGlobalMiddleware(config *RouterConfig) {
	r.engine.Use(gin.Recovery())
	r.engine.Use(requestid.New())
	r.engine.Use(middleware.ExposeRequestID())
	r.engine.Use(middleware.Logger(r.logger))
	r.engine.Use(middleware.Metrics(r.metrics))

	corsConfig := cors.Config{
		AllowOrigins:  config.AllowedOrigins,
		AllowMethods:  config.AllowedMethods,
		AllowHeaders:  config.AllowedHeaders,
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}

	if len(corsConfig.AllowOrigins) == 0 || (len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}

	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	}

	if len(corsConfig.AllowHeaders) == 0 {
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"X-Requested-With",
			"X-Request-ID",
		}
	}

	r.engine.Use(cors.New(corsConfig))

	// Security headers
	r.engine.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})
}

func (r *Router) setupHealthRoutes() {
	health := r.engine.Group("/health")
	{
		health.GET("", r.healthHandler.Health)
		health.GET("/live", r.healthHandler.Liveness)
	}

	r.engine.GET("/metrics", handlers.MetricsHandler(r.gatherer))
}

func (r *Router) setupAPIRoutes(v1 *gin.RouterGroup) {
	v1.GET("/stocks/:ticker", r.stocksHandler.GetSeries)
	v1.GET("/analysis", r.analysisHandler.Analyze)

	runs := v1.Group("/runs")
	{
		runs.POST("", r.runsHandler.Start)
		runs.GET("/:id", r.runsHandler.Get)
		runs.DELETE("/:id", r.runsHandler.Cancel)
		runs.GET("/:id/notes/ws", r.runsHandler.StreamNotes)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
